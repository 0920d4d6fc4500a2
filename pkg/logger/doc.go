// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// Every subscription lifecycle operation is tagged with correlation
// identifiers (subscription, store, user) so that a single billing flow can be
// traced across the event store, transaction manager, and billing gateway.
// Attribute helpers keep those keys consistent across packages:
//
//	log := logger.New(logger.WithProduction("billing"))
//	log.InfoContext(ctx, "transition applied",
//	    logger.SubscriptionID(subID),
//	    logger.StoreID(storeID),
//	    logger.Transition(prev, next),
//	)
//
// Context extractors inject request-scoped values (request id, acting user)
// into every record without threading them through call sites:
//
//	log := logger.New(
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//
// Helper functions Error and Errors produce attributes only when the supplied
// error value is non-nil allowing calls like:
//
//	log.Info("operation finished", logger.Error(err))
//
// without an additional nil check.
package logger

// Package retry wraps retryable operations with bounded attempts and
// configurable backoff.
//
// The lifecycle engine talks to two eventually-available collaborators — the
// REST data store and the billing gateway — and both can fail transiently.
// Do re-runs an operation until it succeeds, the attempt budget is exhausted,
// the context is canceled, or the error is classified as permanent:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return gateway.FetchSubscriptionSnapshot(ctx, ref)
//	},
//	    retry.WithMaxAttempts(5),
//	    retry.WithBackoff(retry.ExponentialBackoff{InitialInterval: 200 * time.Millisecond}),
//	    retry.WithOnRetry(func(attempt int, err error) {
//	        log.WarnContext(ctx, "retrying gateway call", logger.RetryCount(attempt), logger.Error(err))
//	    }),
//	)
//
// Errors wrapped with Permanent, and errors exposing Temporary() bool that
// report false, are never retried. Card-declined style payment failures and
// validation errors fall in this category; connection failures and timeouts
// do not.
package retry

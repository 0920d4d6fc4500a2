// Package datastore abstracts the hosted relational data store the catalog
// application persists into.
//
// The store is reached over REST with table-scoped operations and equality
// match predicates; it has no multi-statement transaction primitive, which is
// why the txn package exists on top of this one. RowStore is the narrow
// interface the rest of the engine consumes:
//
//	rows, err := store.Select(ctx, "subscription_events",
//	    datastore.Match{"subscription_id": subID},
//	    datastore.WithOrderAsc("version"),
//	)
//
// Two implementations ship with the package: RESTStore speaks the hosted
// store's PostgREST-style HTTP API, and MemoryStore backs tests and local
// development. A third, pg.Store, lives in the pg package for deployments
// that reach Postgres directly.
//
// Errors carry a Temporary classification so the retry package can
// distinguish transient connectivity failures from validation problems.
package datastore

// Package eventstore is the append-only log of subscription lifecycle events
// and the source of truth for subscription state.
//
// Every change to a subscription is recorded as an immutable Event with a
// per-subscription version number, contiguous from 1. Current state is a pure
// fold over the ordered event list (Reconstruct); a denormalized snapshot row
// caches the fold result for O(1) reads and is recomputed synchronously after
// every append. A failed recompute is logged, never returned: the event is
// already durable and the snapshot can be rebuilt by replay at any time.
//
// Versions are assigned by read-then-increment, so appends for one
// subscription are serialized through a per-key lock.
package eventstore

// Package subscription is the application-facing façade over the
// subscription lifecycle. It composes the snapshot read path with a
// process-local TTL cache, delegates every status change to the lifecycle
// engine, gates plan features through the capability catalog, and bridges
// billing processor webhooks back into lifecycle triggers.
//
// The cache is advisory: every read tolerates a miss by falling back to the
// snapshot projection, and any mutation invalidates both index keys plus the
// subscription's feature keys. Derived fields like days-until-due are
// computed from wall-clock time at read time and never stored.
package subscription

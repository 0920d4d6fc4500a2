// Package lifecycle defines the subscription state machine and the engine
// that executes validated transitions.
//
// The transition graph is the single authority for "is this change allowed":
// only listed (status, trigger) pairs are legal, everything else is rejected
// before any storage is touched. A validated transition appends the matching
// lifecycle event, then atomically updates the subscription row, the mirrored
// billing-status row, and the append-only transition record through a
// transaction plan. Post-transition notifications are best effort and never
// roll back a committed transition.
package lifecycle

// Package txn provides application-level atomic execution of multi-table
// mutations against a data store that has no native transaction primitive.
//
// A Planner collects ordered steps (insert, update, delete, upsert) and
// resolves each step's compensating operation BEFORE anything executes:
// updates and deletes snapshot the current rows so they can be restored,
// inserts compensate with a delete of the created row, and upserts probe
// for existence first to decide between update-back and delete. Plan then
// returns an immutable execution plan.
//
// Execute runs the steps strictly in order. On the first failure it runs the
// compensations of all previously applied steps in reverse order, best
// effort: a failed compensation is logged and counted but never aborts the
// remaining ones. The caller always receives a single structured ExecError
// naming the failed step and the compensation outcome.
//
// This is eventual atomicity, not isolation. Compensation snapshots are taken
// at plan time, so a concurrent writer touching the same rows during the
// execution window can have its changes reverted by a rollback. Callers that
// need serialization should hold a per-entity lock around Plan and Execute.
// Plans are not idempotent across retries: re-executing a partially
// compensated plan re-applies every step from scratch.
package txn

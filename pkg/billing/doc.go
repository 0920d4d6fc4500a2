// Package billing is the narrow adapter to the external payment processor.
// The processor is a black box reachable only through checkout session
// creation, customer portal session creation, subscription snapshot fetch,
// and webhook parsing; everything else about payments stays on the
// processor's side.
//
// Errors are classified for retry decisions: card-level failures (declined,
// expired, insufficient funds) are permanent, connection and API failures
// are temporary.
package billing

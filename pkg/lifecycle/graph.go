package lifecycle

// Graph is the declarative transition table. Only listed (status, trigger)
// pairs are legal; all others are rejected. The graph is immutable and safe
// for concurrent use.
type Graph struct {
	table map[Status]map[Trigger]Status
}

// DefaultGraph returns the subscription lifecycle transition table.
//
// There is no single terminal state: canceled can re-enter active via
// reactivate or trialing via create, and incomplete_expired can restart
// via create.
func DefaultGraph() Graph {
	return Graph{table: map[Status]map[Trigger]Status{
		StatusInactive: {
			TriggerCreate: StatusTrialing,
		},
		StatusTrialing: {
			TriggerPaymentSucceeded: StatusActive,
			TriggerPaymentFailed:    StatusIncomplete,
			TriggerTrialEnded:       StatusIncomplete,
			TriggerManualCancel:     StatusCanceled,
		},
		StatusActive: {
			TriggerPaymentSucceeded: StatusActive,
			TriggerPaymentFailed:    StatusPastDue,
			TriggerManualCancel:     StatusCanceled,
			TriggerAutoCancel:       StatusCanceled,
			TriggerPlanChanged:      StatusActive,
		},
		StatusPastDue: {
			TriggerPaymentRetrySucceeded: StatusActive,
			TriggerPaymentRetryFailed:    StatusUnpaid,
			TriggerManualCancel:          StatusCanceled,
		},
		StatusUnpaid: {
			TriggerPaymentRetrySucceeded: StatusActive,
			TriggerManualCancel:          StatusCanceled,
			TriggerAutoCancel:            StatusCanceled,
			TriggerReactivate:            StatusActive,
		},
		StatusCanceled: {
			TriggerReactivate: StatusActive,
			TriggerCreate:     StatusTrialing,
		},
		StatusIncomplete: {
			TriggerPaymentSucceeded: StatusActive,
			TriggerPaymentFailed:    StatusIncompleteExpired,
			TriggerManualCancel:     StatusCanceled,
		},
		StatusIncompleteExpired: {
			TriggerManualCancel: StatusCanceled,
			TriggerCreate:       StatusTrialing,
		},
	}}
}

// Target returns the resulting status for a (status, trigger) pair and
// whether the pair is legal.
func (g Graph) Target(from Status, trigger Trigger) (Status, bool) {
	to, ok := g.table[from][trigger]
	return to, ok
}

// Can reports whether the trigger is legal in the given status.
func (g Graph) Can(from Status, trigger Trigger) bool {
	_, ok := g.Target(from, trigger)
	return ok
}

// Triggers returns the triggers legal in the given status.
func (g Graph) Triggers(from Status) []Trigger {
	row := g.table[from]
	out := make([]Trigger, 0, len(row))
	for t := range row {
		out = append(out, t)
	}
	return out
}

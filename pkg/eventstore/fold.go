package eventstore

import (
	"time"
)

// Projected status values. These are plain strings rather than a typed enum
// so the fold stays decoupled from the transition authority that consumes it.
const (
	StatusInactive          = "inactive"
	StatusTrialing          = "trialing"
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusUnpaid            = "unpaid"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
)

// ProjectedState is the materialized view of one subscription: the result of
// folding its ordered event list. It is always re-derivable from events and
// never hand-edited.
type ProjectedState struct {
	SubscriptionID string
	StoreID        string
	Status         string
	IsActive       bool
	PlanType       string
	Version        int64

	CreatedAt time.Time
	UpdatedAt time.Time

	TrialEndsAt   *time.Time
	TrialEndedAt  *time.Time
	NextBillingAt *time.Time
	LastPaymentAt *time.Time
	CanceledAt    *time.Time
	CancelReason  string

	PaymentAttempts int

	Metadata map[string]any
}

// PlanHistoryKey is the metadata key under which plan changes accumulate.
const PlanHistoryKey = "plan_history"

// Fold replays events in the given order over a zero state and returns the
// result, or nil for an empty list. The fold is a pure function of the
// ordered event sequence: replaying the same list always produces an
// identical state.
func Fold(events []Event) *ProjectedState {
	if len(events) == 0 {
		return nil
	}

	state := &ProjectedState{
		SubscriptionID: events[0].SubscriptionID,
		StoreID:        events[0].StoreID,
		Status:         StatusInactive,
		Metadata:       make(map[string]any),
	}
	for _, ev := range events {
		apply(state, ev)
	}
	return state
}

// apply advances the state by one event. Every event, known or not, advances
// the version and timestamp; the payload switch is exhaustive over the
// closed payload set.
func apply(s *ProjectedState, ev Event) {
	s.Version = ev.Version
	s.UpdatedAt = ev.Timestamp

	switch p := ev.Payload.(type) {
	case *CreatedPayload:
		status := p.Status
		if status == "" {
			status = StatusTrialing
		}
		s.Status = status
		s.IsActive = status == StatusActive || status == StatusTrialing
		s.CreatedAt = ev.Timestamp
		if p.PlanType != "" {
			s.PlanType = p.PlanType
		}
		if p.StoreID != "" {
			s.StoreID = p.StoreID
		}
		if p.TrialEndsAt != nil {
			s.TrialEndsAt = p.TrialEndsAt
		}

	case *UpdatedPayload:
		if p.Status != nil {
			s.Status = *p.Status
		}
		if p.IsActive != nil {
			s.IsActive = *p.IsActive
		}
		for k, v := range p.Metadata {
			s.Metadata[k] = v
		}

	case *CanceledPayload:
		s.Status = StatusCanceled
		s.IsActive = false
		s.CancelReason = p.Reason
		at := ev.Timestamp
		s.CanceledAt = &at

	case *PaymentSucceededPayload:
		if s.Status == StatusPastDue || s.Status == StatusUnpaid {
			s.Status = StatusActive
			s.IsActive = true
		}
		at := ev.Timestamp
		s.LastPaymentAt = &at
		if p.NextBillingAt != nil {
			s.NextBillingAt = p.NextBillingAt
		}

	case *PaymentFailedPayload:
		attempts := p.AttemptCount
		if attempts == 0 {
			attempts = s.PaymentAttempts + 1
		}
		s.PaymentAttempts = attempts
		switch {
		case s.Status == StatusActive:
			s.Status = StatusPastDue
		case s.Status == StatusPastDue && attempts > 1:
			s.Status = StatusUnpaid
			s.IsActive = false
		}

	case *TrialStartedPayload:
		s.Status = StatusTrialing
		s.IsActive = true
		if p.TrialEndsAt != nil {
			s.TrialEndsAt = p.TrialEndsAt
		}

	case *TrialEndedPayload:
		if s.Status == StatusTrialing {
			if p.PaymentSucceeded {
				s.Status = StatusActive
			} else {
				s.Status = StatusIncomplete
			}
		}
		s.IsActive = p.PaymentSucceeded
		at := ev.Timestamp
		s.TrialEndedAt = &at

	case *PlanChangedPayload:
		entry := map[string]any{"to": p.To, "at": ev.Timestamp.UTC().Format(time.RFC3339Nano)}
		if p.From != "" {
			entry["from"] = p.From
		}
		history, _ := s.Metadata[PlanHistoryKey].([]any)
		s.Metadata[PlanHistoryKey] = append(history, entry)
		s.PlanType = p.To

	default:
		// Unknown event type: version and timestamp already advanced.
	}
}

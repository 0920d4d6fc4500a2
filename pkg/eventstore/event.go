package eventstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a kind of lifecycle event.
type EventType string

const (
	EventCreated          EventType = "created"
	EventUpdated          EventType = "updated"
	EventCanceled         EventType = "canceled"
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventTrialStarted     EventType = "trial_started"
	EventTrialEnded       EventType = "trial_ended"
	EventPlanChanged      EventType = "plan_changed"
)

// Payload is the closed set of event-specific payload shapes. Each event
// type has exactly one payload struct, which makes the fold an exhaustive
// switch over concrete types.
type Payload interface {
	eventType() EventType
}

// CreatedPayload starts a subscription's history.
type CreatedPayload struct {
	Status      string     `json:"status,omitempty"` // defaults to "trialing" in the fold
	PlanType    string     `json:"plan_type,omitempty"`
	StoreID     string     `json:"store_id,omitempty"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}

// UpdatedPayload carries partial field overrides; nil fields leave the
// projected value untouched.
type UpdatedPayload struct {
	Status   *string        `json:"status,omitempty"`
	IsActive *bool          `json:"is_active,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CanceledPayload records why a subscription was canceled.
type CanceledPayload struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentSucceededPayload records a successful charge.
type PaymentSucceededPayload struct {
	NextBillingAt *time.Time `json:"next_billing_at,omitempty"`
}

// PaymentFailedPayload records a failed charge. AttemptCount is the running
// failure count; zero means "previous count plus one".
type PaymentFailedPayload struct {
	AttemptCount int `json:"attempt_count,omitempty"`
}

// TrialStartedPayload records the start of a trial period.
type TrialStartedPayload struct {
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}

// TrialEndedPayload records how a trial concluded.
type TrialEndedPayload struct {
	PaymentSucceeded bool `json:"payment_succeeded"`
}

// PlanChangedPayload records a plan switch.
type PlanChangedPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

func (*CreatedPayload) eventType() EventType          { return EventCreated }
func (*UpdatedPayload) eventType() EventType          { return EventUpdated }
func (*CanceledPayload) eventType() EventType         { return EventCanceled }
func (*PaymentSucceededPayload) eventType() EventType { return EventPaymentSucceeded }
func (*PaymentFailedPayload) eventType() EventType    { return EventPaymentFailed }
func (*TrialStartedPayload) eventType() EventType     { return EventTrialStarted }
func (*TrialEndedPayload) eventType() EventType       { return EventTrialEnded }
func (*PlanChangedPayload) eventType() EventType      { return EventPlanChanged }

// Event is one immutable lifecycle fact.
type Event struct {
	ID             string
	SubscriptionID string
	StoreID        string
	UserID         string
	Type           EventType
	Version        int64
	Timestamp      time.Time
	Payload        Payload // nil for events of unknown type
	Meta           map[string]any
}

// decodePayload rebuilds the typed payload from its stored JSON form.
// Unknown event types return (nil, nil): the fold treats them as no-ops that
// still advance version and timestamp.
func decodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var p Payload
	switch t {
	case EventCreated:
		p = &CreatedPayload{}
	case EventUpdated:
		p = &UpdatedPayload{}
	case EventCanceled:
		p = &CanceledPayload{}
	case EventPaymentSucceeded:
		p = &PaymentSucceededPayload{}
	case EventPaymentFailed:
		p = &PaymentFailedPayload{}
	case EventTrialStarted:
		p = &TrialStartedPayload{}
	case EventTrialEnded:
		p = &TrialEndedPayload{}
	case EventPlanChanged:
		p = &PlanChangedPayload{}
	default:
		return nil, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("eventstore: decode %s payload: %w", t, err)
	}
	return p, nil
}

package subscription

import (
	"math"
	"time"

	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
	"github.com/dmitrymomot/catalogkit/pkg/lifecycle"
	"github.com/dmitrymomot/catalogkit/pkg/plans"
)

// Details is the application-facing view of a subscription. DaysUntilDue and
// DaysUntilTrialEnd are derived from wall-clock time when the value is built.
type Details struct {
	SubscriptionID  string
	StoreID         string
	Status          lifecycle.Status
	IsActive        bool
	PlanType        plans.PlanType
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TrialEndsAt     *time.Time
	NextBillingAt   *time.Time
	CanceledAt      *time.Time
	CancelReason    string
	PaymentAttempts int
	Metadata        map[string]any

	// Derived at read time, never persisted.
	DaysUntilDue      int
	DaysUntilTrialEnd int
}

// detailsFromState builds Details from a projected state, computing the
// derived day counts against now.
func detailsFromState(state *eventstore.ProjectedState, now time.Time) *Details {
	d := &Details{
		SubscriptionID:  state.SubscriptionID,
		StoreID:         state.StoreID,
		Status:          lifecycle.Status(state.Status),
		IsActive:        state.IsActive,
		PlanType:        plans.PlanType(state.PlanType),
		Version:         state.Version,
		CreatedAt:       state.CreatedAt,
		UpdatedAt:       state.UpdatedAt,
		TrialEndsAt:     state.TrialEndsAt,
		NextBillingAt:   state.NextBillingAt,
		CanceledAt:      state.CanceledAt,
		CancelReason:    state.CancelReason,
		PaymentAttempts: state.PaymentAttempts,
		Metadata:        state.Metadata,
	}
	d.DaysUntilDue = daysUntil(state.NextBillingAt, now)
	d.DaysUntilTrialEnd = daysUntil(state.TrialEndsAt, now)
	return d
}

// daysUntil counts whole days remaining until t, rounding partial days up.
// A nil or elapsed deadline counts as zero.
func daysUntil(t *time.Time, now time.Time) int {
	if t == nil {
		return 0
	}
	remaining := t.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

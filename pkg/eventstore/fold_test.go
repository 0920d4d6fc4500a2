package eventstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
)

var foldBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(version int64, payload eventstore.Payload) eventstore.Event {
	var t eventstore.EventType
	if payload != nil {
		switch payload.(type) {
		case *eventstore.CreatedPayload:
			t = eventstore.EventCreated
		case *eventstore.UpdatedPayload:
			t = eventstore.EventUpdated
		case *eventstore.CanceledPayload:
			t = eventstore.EventCanceled
		case *eventstore.PaymentSucceededPayload:
			t = eventstore.EventPaymentSucceeded
		case *eventstore.PaymentFailedPayload:
			t = eventstore.EventPaymentFailed
		case *eventstore.TrialStartedPayload:
			t = eventstore.EventTrialStarted
		case *eventstore.TrialEndedPayload:
			t = eventstore.EventTrialEnded
		case *eventstore.PlanChangedPayload:
			t = eventstore.EventPlanChanged
		}
	}
	return eventstore.Event{
		SubscriptionID: "sub-1",
		StoreID:        "st-1",
		Type:           t,
		Version:        version,
		Timestamp:      foldBase.Add(time.Duration(version) * time.Minute),
		Payload:        payload,
	}
}

func TestFold(t *testing.T) {
	t.Parallel()

	t.Run("empty list folds to nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, eventstore.Fold(nil))
	})

	t.Run("created defaults to trialing", func(t *testing.T) {
		t.Parallel()
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{PlanType: "free"}),
		})
		require.NotNil(t, state)
		assert.Equal(t, eventstore.StatusTrialing, state.Status)
		assert.True(t, state.IsActive)
		assert.Equal(t, "free", state.PlanType)
		assert.Equal(t, int64(1), state.Version)
		assert.Equal(t, foldBase.Add(time.Minute), state.CreatedAt)
	})

	t.Run("created with explicit status", func(t *testing.T) {
		t.Parallel()
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{Status: eventstore.StatusActive}),
		})
		assert.Equal(t, eventstore.StatusActive, state.Status)
		assert.True(t, state.IsActive)
	})

	t.Run("updated overrides only present fields", func(t *testing.T) {
		t.Parallel()
		inactive := false
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{}),
			ev(2, &eventstore.UpdatedPayload{
				IsActive: &inactive,
				Metadata: map[string]any{"note": "suspended"},
			}),
		})
		assert.Equal(t, eventstore.StatusTrialing, state.Status)
		assert.False(t, state.IsActive)
		assert.Equal(t, "suspended", state.Metadata["note"])
	})

	t.Run("canceled records reason and time", func(t *testing.T) {
		t.Parallel()
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{}),
			ev(2, &eventstore.CanceledPayload{Reason: "user request"}),
		})
		assert.Equal(t, eventstore.StatusCanceled, state.Status)
		assert.False(t, state.IsActive)
		assert.Equal(t, "user request", state.CancelReason)
		require.NotNil(t, state.CanceledAt)
		assert.Equal(t, foldBase.Add(2*time.Minute), *state.CanceledAt)
	})

	t.Run("payment succeeded recovers past_due", func(t *testing.T) {
		t.Parallel()
		next := foldBase.Add(30 * 24 * time.Hour)
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{Status: eventstore.StatusActive}),
			ev(2, &eventstore.PaymentFailedPayload{}),
			ev(3, &eventstore.PaymentSucceededPayload{NextBillingAt: &next}),
		})
		assert.Equal(t, eventstore.StatusActive, state.Status)
		assert.True(t, state.IsActive)
		require.NotNil(t, state.NextBillingAt)
		assert.Equal(t, next, *state.NextBillingAt)
		require.NotNil(t, state.LastPaymentAt)
	})

	t.Run("payment succeeded on active stays active", func(t *testing.T) {
		t.Parallel()
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{Status: eventstore.StatusActive}),
			ev(2, &eventstore.PaymentSucceededPayload{}),
		})
		assert.Equal(t, eventstore.StatusActive, state.Status)
	})

	t.Run("repeated payment failures reach unpaid", func(t *testing.T) {
		t.Parallel()
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{Status: eventstore.StatusActive}),
			ev(2, &eventstore.PaymentFailedPayload{}),
		})
		assert.Equal(t, eventstore.StatusPastDue, state.Status)
		assert.Equal(t, 1, state.PaymentAttempts)

		state = eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{Status: eventstore.StatusActive}),
			ev(2, &eventstore.PaymentFailedPayload{}),
			ev(3, &eventstore.PaymentFailedPayload{}),
		})
		assert.Equal(t, eventstore.StatusUnpaid, state.Status)
		assert.False(t, state.IsActive)
		assert.Equal(t, 2, state.PaymentAttempts)
	})

	t.Run("trial started sets trial end", func(t *testing.T) {
		t.Parallel()
		trialEnd := foldBase.Add(14 * 24 * time.Hour)
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{}),
			ev(2, &eventstore.TrialStartedPayload{TrialEndsAt: &trialEnd}),
		})
		assert.Equal(t, eventstore.StatusTrialing, state.Status)
		assert.True(t, state.IsActive)
		require.NotNil(t, state.TrialEndsAt)
		assert.Equal(t, trialEnd, *state.TrialEndsAt)
	})

	t.Run("trial ended follows payment outcome", func(t *testing.T) {
		t.Parallel()
		paid := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{}),
			ev(2, &eventstore.TrialEndedPayload{PaymentSucceeded: true}),
		})
		assert.Equal(t, eventstore.StatusActive, paid.Status)
		assert.True(t, paid.IsActive)

		unpaid := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{}),
			ev(2, &eventstore.TrialEndedPayload{PaymentSucceeded: false}),
		})
		assert.Equal(t, eventstore.StatusIncomplete, unpaid.Status)
		assert.False(t, unpaid.IsActive)
		require.NotNil(t, unpaid.TrialEndedAt)
	})

	t.Run("plan changed appends history and keeps status", func(t *testing.T) {
		t.Parallel()
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{Status: eventstore.StatusActive, PlanType: "starter"}),
			ev(2, &eventstore.PlanChangedPayload{From: "starter", To: "pro"}),
		})
		assert.Equal(t, eventstore.StatusActive, state.Status)
		assert.True(t, state.IsActive)
		assert.Equal(t, "pro", state.PlanType)

		history, ok := state.Metadata[eventstore.PlanHistoryKey].([]any)
		require.True(t, ok)
		require.Len(t, history, 1)
		entry, ok := history[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "pro", entry["to"])
	})

	t.Run("unknown event type advances version and timestamp only", func(t *testing.T) {
		t.Parallel()
		unknown := eventstore.Event{
			SubscriptionID: "sub-1",
			Type:           eventstore.EventType("legacy_migration"),
			Version:        2,
			Timestamp:      foldBase.Add(2 * time.Minute),
		}
		state := eventstore.Fold([]eventstore.Event{
			ev(1, &eventstore.CreatedPayload{}),
			unknown,
		})
		assert.Equal(t, eventstore.StatusTrialing, state.Status)
		assert.Equal(t, int64(2), state.Version)
		assert.Equal(t, foldBase.Add(2*time.Minute), state.UpdatedAt)
	})

	t.Run("fold is idempotent over the same sequence", func(t *testing.T) {
		t.Parallel()
		events := []eventstore.Event{
			ev(1, &eventstore.CreatedPayload{PlanType: "starter"}),
			ev(2, &eventstore.TrialEndedPayload{PaymentSucceeded: true}),
			ev(3, &eventstore.PaymentFailedPayload{}),
			ev(4, &eventstore.PlanChangedPayload{From: "starter", To: "pro"}),
			ev(5, &eventstore.PaymentSucceededPayload{}),
		}

		first := eventstore.Fold(events)
		second := eventstore.Fold(events)
		assert.Equal(t, first, second)
	})
}

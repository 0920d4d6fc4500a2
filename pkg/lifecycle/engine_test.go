package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
	"github.com/dmitrymomot/catalogkit/pkg/lifecycle"
	"github.com/dmitrymomot/catalogkit/pkg/notifications"
)

type engineFixture struct {
	rows     *datastore.MemoryStore
	events   *eventstore.Store
	engine   *lifecycle.Engine
	notifier *notifications.Manager
	inbox    *notifications.MemoryStorage
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	rows := datastore.NewMemoryStore()
	events := eventstore.New(rows)
	inbox := notifications.NewMemoryStorage()
	notifier := notifications.NewManager(inbox)
	engine := lifecycle.NewEngine(rows, events,
		lifecycle.WithNotifier(notifier),
	)
	return &engineFixture{rows: rows, events: events, engine: engine, notifier: notifier, inbox: inbox}
}

// createTrialing drives a subscription into trialing through the engine.
func (f *engineFixture) createTrialing(t *testing.T, subID string) {
	t.Helper()
	res, err := f.engine.Transition(context.Background(), subID, lifecycle.TriggerCreate, lifecycle.Meta{
		"store_id":  "st-1",
		"user_id":   "user-1",
		"plan_type": "starter",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, lifecycle.StatusTrialing, res.NewStatus)
}

func TestEngine_Transition(t *testing.T) {
	t.Parallel()

	t.Run("create starts a trial", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		res, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerCreate, lifecycle.Meta{
			"store_id":      "st-1",
			"user_id":       "user-1",
			"plan_type":     "free",
			"trial_ends_at": time.Now().Add(14 * 24 * time.Hour).UTC(),
		})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, lifecycle.StatusInactive, res.PreviousStatus)
		assert.Equal(t, lifecycle.StatusTrialing, res.NewStatus)

		rows, err := f.rows.Select(context.Background(), lifecycle.DefaultSubscriptionsTable,
			datastore.Match{"id": "sub-1"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "trialing", rows[0]["status"])
		assert.Equal(t, true, rows[0]["is_active"])
		assert.Equal(t, "st-1", rows[0]["store_id"])

		snapshot, err := f.events.Snapshot(context.Background(), "sub-1")
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Equal(t, "trialing", snapshot.Status)
	})

	t.Run("payment success during trial activates", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")

		res, err := f.engine.Transition(context.Background(), "sub-1",
			lifecycle.TriggerPaymentSucceeded, nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, lifecycle.StatusTrialing, res.PreviousStatus)
		assert.Equal(t, lifecycle.StatusActive, res.NewStatus)

		// The projection agrees with the mirror row.
		snapshot, err := f.events.Snapshot(context.Background(), "sub-1")
		require.NoError(t, err)
		assert.Equal(t, "active", snapshot.Status)
		assert.True(t, snapshot.IsActive)

		// A payment-success notification was attempted for the tenant's user.
		inbox, err := f.notifier.List(context.Background(), "user-1", notifications.ListOptions{
			Types: []notifications.Type{notifications.TypePaymentSuccess},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, inbox)
	})

	t.Run("plan change keeps active and records history", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")
		_, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerPaymentSucceeded, nil)
		require.NoError(t, err)

		res, err := f.engine.Transition(context.Background(), "sub-1",
			lifecycle.TriggerPlanChanged, lifecycle.Meta{"new_plan_type": "pro"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, lifecycle.StatusActive, res.PreviousStatus)
		assert.Equal(t, lifecycle.StatusActive, res.NewStatus)

		state, err := f.events.Reconstruct(context.Background(), "sub-1", 0)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "pro", state.PlanType)

		history, ok := state.Metadata[eventstore.PlanHistoryKey].([]any)
		require.True(t, ok)
		require.Len(t, history, 1)
		entry, ok := history[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "pro", entry["to"])
	})

	t.Run("illegal trigger is rejected without mutation", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")
		_, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerManualCancel, nil)
		require.NoError(t, err)

		res, err := f.engine.Transition(context.Background(), "sub-1",
			lifecycle.TriggerPaymentFailed, nil)
		require.Error(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, lifecycle.StatusCanceled, res.PreviousStatus)

		notAllowed, ok := lifecycle.IsTransitionNotAllowed(err)
		require.True(t, ok)
		assert.Equal(t, lifecycle.StatusCanceled, notAllowed.Status)
		assert.Equal(t, lifecycle.TriggerPaymentFailed, notAllowed.Trigger)

		// Status unchanged, no transition record written for the rejection.
		snapshot, err := f.events.Snapshot(context.Background(), "sub-1")
		require.NoError(t, err)
		assert.Equal(t, "canceled", snapshot.Status)

		records, err := f.rows.Select(context.Background(), lifecycle.DefaultTransitionsTable,
			datastore.Match{"subscription_id": "sub-1"})
		require.NoError(t, err)
		assert.Len(t, records, 2) // create + cancel only
	})

	t.Run("missing subscription rejects non-create triggers", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, err := f.engine.Transition(context.Background(), "sub-missing",
			lifecycle.TriggerPaymentSucceeded, nil)
		assert.ErrorIs(t, err, lifecycle.ErrSubscriptionNotFound)
	})

	t.Run("repeated payment failures walk to unpaid", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")
		_, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerPaymentSucceeded, nil)
		require.NoError(t, err)

		res, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerPaymentFailed, nil)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusPastDue, res.NewStatus)

		res, err = f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerPaymentRetryFailed, nil)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusUnpaid, res.NewStatus)

		snapshot, err := f.events.Snapshot(context.Background(), "sub-1")
		require.NoError(t, err)
		assert.Equal(t, "unpaid", snapshot.Status)
		assert.False(t, snapshot.IsActive)

		res, err = f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerPaymentRetrySucceeded, nil)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusActive, res.NewStatus)
	})

	t.Run("reactivate from canceled", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")
		_, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerManualCancel, nil)
		require.NoError(t, err)

		res, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerReactivate, nil)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusActive, res.NewStatus)

		snapshot, err := f.events.Snapshot(context.Background(), "sub-1")
		require.NoError(t, err)
		assert.Equal(t, "active", snapshot.Status)
		assert.True(t, snapshot.IsActive)
	})

	t.Run("billing status mirror tracks transitions", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")
		_, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerManualCancel, nil)
		require.NoError(t, err)

		mirror, err := f.rows.Select(context.Background(), lifecycle.DefaultBillingStatusTable,
			datastore.Match{"subscription_id": "sub-1"})
		require.NoError(t, err)
		require.Len(t, mirror, 1)
		assert.Equal(t, "canceled", mirror[0]["status"])
		assert.Equal(t, false, mirror[0]["is_active"])
	})

	t.Run("transition record carries trigger and statuses", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")

		records, err := f.rows.Select(context.Background(), lifecycle.DefaultTransitionsTable,
			datastore.Match{"subscription_id": "sub-1"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "inactive", records[0]["from_status"])
		assert.Equal(t, "trialing", records[0]["to_status"])
		assert.Equal(t, "create", records[0]["trigger"])
	})

	t.Run("cancellation notifies the user", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.createTrialing(t, "sub-1")

		_, err := f.engine.Transition(context.Background(), "sub-1", lifecycle.TriggerManualCancel, nil)
		require.NoError(t, err)

		inbox, err := f.notifier.List(context.Background(), "user-1", notifications.ListOptions{
			Types: []notifications.Type{notifications.TypeSubscriptionCanceled},
		})
		require.NoError(t, err)
		assert.Len(t, inbox, 1)
	})
}

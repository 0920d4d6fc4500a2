package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
	"github.com/dmitrymomot/catalogkit/pkg/logger"
	"github.com/dmitrymomot/catalogkit/pkg/metrics"
	"github.com/dmitrymomot/catalogkit/pkg/notifications"
	"github.com/dmitrymomot/catalogkit/pkg/txn"
)

// Default table names; override with options when the schema differs.
const (
	DefaultSubscriptionsTable = "subscriptions"
	DefaultBillingStatusTable = "billing_status"
	DefaultTransitionsTable   = "subscription_transitions"
)

// Notifier sends post-transition notifications. Satisfied by
// *notifications.Manager.
type Notifier interface {
	Send(ctx context.Context, notif notifications.Notification) (notifications.Notification, error)
}

// Result is the outcome of a transition attempt.
type Result struct {
	Success        bool
	PreviousStatus Status
	NewStatus      Status
}

// Meta carries free-form transition context. Known keys, all optional:
// store_id, user_id, plan_type, new_plan_type, reason, trial_ends_at,
// next_billing_at (time.Time or RFC 3339 string).
type Meta map[string]any

// Engine validates transitions against the graph and persists them: it
// appends the matching lifecycle event, then atomically updates the
// subscription row, the billing-status mirror, and the transition record.
type Engine struct {
	rows     datastore.RowStore
	events   *eventstore.Store
	graph    Graph
	notifier Notifier
	log      *slog.Logger
	mtr      *metrics.Collector
	now      func() time.Time

	subscriptions string
	billingStatus string
	transitions   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics wires transition counters and duration histograms.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.mtr = m }
}

// WithNotifier sets the post-transition notification sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithGraph overrides the transition table.
func WithGraph(g Graph) Option {
	return func(e *Engine) { e.graph = g }
}

// WithTables overrides the subscription, billing-status and transition
// table names. Empty names keep the defaults.
func WithTables(subscriptions, billingStatus, transitions string) Option {
	return func(e *Engine) {
		if subscriptions != "" {
			e.subscriptions = subscriptions
		}
		if billingStatus != "" {
			e.billingStatus = billingStatus
		}
		if transitions != "" {
			e.transitions = transitions
		}
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a transition engine.
// Panics when rows or events is nil to fail fast during initialization.
func NewEngine(rows datastore.RowStore, events *eventstore.Store, opts ...Option) *Engine {
	if rows == nil {
		panic("lifecycle: row store is required")
	}
	if events == nil {
		panic("lifecycle: event store is required")
	}

	e := &Engine{
		rows:          rows,
		events:        events,
		graph:         DefaultGraph(),
		log:           slog.Default(),
		now:           time.Now,
		subscriptions: DefaultSubscriptionsTable,
		billingStatus: DefaultBillingStatusTable,
		transitions:   DefaultTransitionsTable,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the engine's transition table.
func (e *Engine) Graph() Graph { return e.graph }

// Transition validates and executes one state transition.
//
// The current status is loaded from the event projection; a missing
// subscription is only legal for the create trigger, which starts from
// inactive. Rejections return before any storage is touched. A validated
// transition first appends the lifecycle event (the log is the source of
// truth), then runs a three-step transaction plan for the mirror rows and
// the audit record. Post-transition notifications are best effort.
func (e *Engine) Transition(ctx context.Context, subscriptionID string, trigger Trigger, meta Meta) (Result, error) {
	if subscriptionID == "" {
		return Result{}, ErrMissingSubscriptionID
	}

	started := e.now()

	state, err := e.events.Reconstruct(ctx, subscriptionID, 0)
	if err != nil {
		return Result{}, err
	}

	current := StatusInactive
	if state != nil {
		current = Status(state.Status)
	} else if trigger != TriggerCreate {
		return Result{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
	}

	target, ok := e.graph.Target(current, trigger)
	if !ok {
		e.mtr.ObserveTransition(current.String(), "", trigger.String(), "rejected", e.now().Sub(started))
		return Result{Success: false, PreviousStatus: current},
			&TransitionNotAllowedError{Status: current, Trigger: trigger}
	}

	eventType, payload := eventFor(current, target, trigger, state, meta)
	appended, err := e.events.Append(ctx, eventstore.AppendParams{
		SubscriptionID: subscriptionID,
		StoreID:        metaString(meta, "store_id", stateStoreID(state)),
		UserID:         metaString(meta, "user_id", ""),
		Type:           eventType,
		Payload:        payload,
		Meta:           meta,
	})
	if err != nil {
		e.mtr.ObserveTransition(current.String(), target.String(), trigger.String(), "failure", e.now().Sub(started))
		return Result{}, err
	}

	if err := e.persist(ctx, subscriptionID, current, target, trigger, state, meta); err != nil {
		// The event is already durable; the mirror rows lag until repaired
		// by snapshot replay or a retried transition.
		e.log.ErrorContext(ctx, "transition committed to event log but mirror update failed",
			logger.Component("lifecycle"),
			logger.SubscriptionID(subscriptionID),
			logger.Transition(current.String(), target.String()),
			logger.Trigger(trigger.String()),
			logger.Version(appended.Version),
			logger.Error(err),
		)
		e.mtr.ObserveTransition(current.String(), target.String(), trigger.String(), "failure", e.now().Sub(started))
		return Result{}, err
	}

	e.notify(ctx, subscriptionID, current, target, trigger, state, meta)

	e.mtr.ObserveTransition(current.String(), target.String(), trigger.String(), "success", e.now().Sub(started))
	e.log.InfoContext(ctx, "subscription transitioned",
		logger.Component("lifecycle"),
		logger.SubscriptionID(subscriptionID),
		logger.Transition(current.String(), target.String()),
		logger.Trigger(trigger.String()),
		logger.Version(appended.Version),
	)

	return Result{Success: true, PreviousStatus: current, NewStatus: target}, nil
}

// persist runs the three-step mirror plan: subscription row, billing-status
// mirror, transition record.
func (e *Engine) persist(ctx context.Context, subscriptionID string, from, to Status, trigger Trigger, state *eventstore.ProjectedState, meta Meta) error {
	now := e.now().UTC().Format(time.RFC3339Nano)

	subChanges := datastore.Row{
		"status":     to.String(),
		"is_active":  to.IsActive(),
		"updated_at": now,
	}
	if plan := metaString(meta, "new_plan_type", ""); plan != "" && trigger == TriggerPlanChanged {
		subChanges["plan_type"] = plan
	}

	planner := txn.NewPlanner(e.rows, txn.WithLogger(e.log), txn.WithMetrics(e.mtr))

	if state == nil {
		// First transition for this subscription: the row does not exist yet.
		subRow := datastore.Row{
			"id":         subscriptionID,
			"store_id":   metaString(meta, "store_id", ""),
			"user_id":    metaString(meta, "user_id", ""),
			"plan_type":  metaString(meta, "plan_type", ""),
			"status":     to.String(),
			"is_active":  to.IsActive(),
			"created_at": now,
			"updated_at": now,
		}
		if ts := metaTime(meta, "trial_ends_at"); ts != nil {
			subRow["trial_ends_at"] = ts.Format(time.RFC3339Nano)
		}
		planner.Upsert(e.subscriptions, datastore.Match{"id": subscriptionID}, subRow)
	} else {
		planner.Update(e.subscriptions, datastore.Match{"id": subscriptionID}, subChanges)
	}

	planner.Upsert(e.billingStatus,
		datastore.Match{"subscription_id": subscriptionID},
		datastore.Row{
			"subscription_id": subscriptionID,
			"status":          to.String(),
			"is_active":       to.IsActive(),
			"updated_at":      now,
		})

	record := datastore.Row{
		"id":              uuid.New().String(),
		"subscription_id": subscriptionID,
		"from_status":     from.String(),
		"to_status":       to.String(),
		"trigger":         trigger.String(),
		"created_at":      now,
	}
	if len(meta) > 0 {
		record["metadata"] = map[string]any(meta)
	}
	planner.Insert(e.transitions, record)

	plan, err := planner.Plan(ctx)
	if err != nil {
		return err
	}
	_, err = plan.Execute(ctx)
	return err
}

// eventFor maps a validated (status, trigger) pair to the lifecycle event
// whose fold effect produces the target status, keeping the event projection
// and the mirror rows in agreement.
func eventFor(current, target Status, trigger Trigger, state *eventstore.ProjectedState, meta Meta) (eventstore.EventType, eventstore.Payload) {
	switch trigger {
	case TriggerCreate:
		return eventstore.EventCreated, &eventstore.CreatedPayload{
			Status:      target.String(),
			PlanType:    metaString(meta, "plan_type", ""),
			StoreID:     metaString(meta, "store_id", ""),
			TrialEndsAt: metaTime(meta, "trial_ends_at"),
		}

	case TriggerManualCancel, TriggerAutoCancel:
		reason := metaString(meta, "reason", "")
		if reason == "" {
			if trigger == TriggerAutoCancel {
				reason = "automatic cancellation"
			} else {
				reason = "canceled by user"
			}
		}
		return eventstore.EventCanceled, &eventstore.CanceledPayload{Reason: reason}

	case TriggerPlanChanged:
		from := ""
		if state != nil {
			from = state.PlanType
		}
		return eventstore.EventPlanChanged, &eventstore.PlanChangedPayload{
			From: from,
			To:   metaString(meta, "new_plan_type", ""),
		}

	case TriggerTrialEnded:
		return eventstore.EventTrialEnded, &eventstore.TrialEndedPayload{
			PaymentSucceeded: target == StatusActive,
		}

	case TriggerPaymentFailed, TriggerPaymentRetryFailed:
		if current == StatusTrialing {
			// A failed first charge ends the trial unpaid.
			return eventstore.EventTrialEnded, &eventstore.TrialEndedPayload{PaymentSucceeded: false}
		}
		if current == StatusIncomplete {
			// The fold has no payment path out of incomplete; record the
			// expiry as an explicit status override.
			return updatedEvent(target)
		}
		return eventstore.EventPaymentFailed, &eventstore.PaymentFailedPayload{
			AttemptCount: metaInt(meta, "attempt_count"),
		}

	case TriggerPaymentSucceeded, TriggerPaymentRetrySucceeded:
		if current == StatusTrialing {
			// A successful first charge converts the trial.
			return eventstore.EventTrialEnded, &eventstore.TrialEndedPayload{PaymentSucceeded: true}
		}
		if current == StatusIncomplete {
			return updatedEvent(target)
		}
		return eventstore.EventPaymentSucceeded, &eventstore.PaymentSucceededPayload{
			NextBillingAt: metaTime(meta, "next_billing_at"),
		}

	default: // TriggerReactivate
		return updatedEvent(target)
	}
}

func updatedEvent(target Status) (eventstore.EventType, eventstore.Payload) {
	status := target.String()
	active := target.IsActive()
	return eventstore.EventUpdated, &eventstore.UpdatedPayload{Status: &status, IsActive: &active}
}

// notify creates the post-transition notification keyed by the status pair.
// Failures are logged, never propagated: a committed transition is final.
func (e *Engine) notify(ctx context.Context, subscriptionID string, from, to Status, trigger Trigger, state *eventstore.ProjectedState, meta Meta) {
	if e.notifier == nil {
		return
	}

	userID := metaString(meta, "user_id", "")
	if userID == "" {
		userID = e.subscriptionUserID(ctx, subscriptionID)
	}
	if userID == "" {
		return
	}

	notif, ok := notificationFor(from, to, trigger)
	if !ok {
		return
	}
	notif.UserID = userID
	notif.StoreID = metaString(meta, "store_id", stateStoreID(state))
	notif.Data = map[string]any{
		"subscription_id": subscriptionID,
		"from":            from.String(),
		"to":              to.String(),
		"trigger":         trigger.String(),
	}

	if _, err := e.notifier.Send(ctx, notif); err != nil {
		e.log.WarnContext(ctx, "post-transition notification failed",
			logger.Component("lifecycle"),
			logger.SubscriptionID(subscriptionID),
			logger.UserID(userID),
			logger.Transition(from.String(), to.String()),
			logger.Error(err),
		)
	}
}

func (e *Engine) subscriptionUserID(ctx context.Context, subscriptionID string) string {
	rows, err := e.rows.Select(ctx, e.subscriptions,
		datastore.Match{"id": subscriptionID}, datastore.WithLimit(1))
	if err != nil || len(rows) == 0 {
		return ""
	}
	userID, _ := rows[0]["user_id"].(string)
	return userID
}

// notificationFor maps a (previous, new) status pair to the notification to
// attempt. Pairs without an entry produce no notification.
func notificationFor(from, to Status, trigger Trigger) (notifications.Notification, bool) {
	switch {
	case to == StatusActive && from != StatusActive:
		return notifications.Notification{
			Type:    notifications.TypePaymentSuccess,
			Title:   "Payment received",
			Message: "Your subscription is now active.",
		}, true
	case to == StatusActive && trigger == TriggerPaymentSucceeded:
		return notifications.Notification{
			Type:    notifications.TypePaymentSuccess,
			Title:   "Payment received",
			Message: "Your subscription has been renewed.",
		}, true
	case to == StatusPastDue || to == StatusUnpaid || to == StatusIncomplete || to == StatusIncompleteExpired:
		return notifications.Notification{
			Type:    notifications.TypePaymentFailed,
			Title:   "Payment failed",
			Message: "We could not process your payment. Please update your payment method.",
		}, true
	case to == StatusCanceled:
		return notifications.Notification{
			Type:    notifications.TypeSubscriptionCanceled,
			Title:   "Subscription canceled",
			Message: "Your subscription has been canceled.",
		}, true
	case trigger == TriggerPlanChanged:
		return notifications.Notification{
			Type:    notifications.TypePlanChanged,
			Title:   "Plan changed",
			Message: "Your subscription plan has been updated.",
		}, true
	default:
		return notifications.Notification{}, false
	}
}

func stateStoreID(state *eventstore.ProjectedState) string {
	if state == nil {
		return ""
	}
	return state.StoreID
}

func metaString(meta Meta, key, fallback string) string {
	if v, ok := meta[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func metaInt(meta Meta, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metaTime(meta Meta, key string) *time.Time {
	switch v := meta[key].(type) {
	case time.Time:
		t := v.UTC()
		return &t
	case *time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}

package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
	"github.com/dmitrymomot/catalogkit/pkg/lock"
	"github.com/dmitrymomot/catalogkit/pkg/logger"
	"github.com/dmitrymomot/catalogkit/pkg/metrics"
)

var (
	// ErrMissingSubscriptionID is returned when a call lacks the subscription id.
	ErrMissingSubscriptionID = errors.New("eventstore: subscription id is required")

	// ErrMissingPayload is returned when Append is called without a payload.
	ErrMissingPayload = errors.New("eventstore: payload is required")

	// ErrPayloadMismatch is returned when the payload shape does not belong
	// to the declared event type.
	ErrPayloadMismatch = errors.New("eventstore: payload does not match event type")
)

// Default table names; override with options when the schema differs.
const (
	DefaultEventsTable    = "subscription_events"
	DefaultSnapshotsTable = "subscription_snapshots"
)

// Store appends lifecycle events and maintains the snapshot projection.
type Store struct {
	store     datastore.RowStore
	locker    lock.KeyedLocker
	log       *slog.Logger
	mtr       *metrics.Collector
	now       func() time.Time
	events    string
	snapshots string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for projection warnings.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics wires append and projection-failure counters.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.mtr = m }
}

// WithLocker overrides the per-subscription lock used to serialize appends.
func WithLocker(l lock.KeyedLocker) Option {
	return func(s *Store) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithTables overrides the event and snapshot table names.
func WithTables(events, snapshots string) Option {
	return func(s *Store) {
		if events != "" {
			s.events = events
		}
		if snapshots != "" {
			s.snapshots = snapshots
		}
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over the given row store.
// Panics when store is nil to fail fast during initialization.
func New(store datastore.RowStore, opts ...Option) *Store {
	if store == nil {
		panic("eventstore: row store is required")
	}

	s := &Store{
		store:     store,
		locker:    lock.NewMemoryLocker(),
		log:       slog.Default(),
		now:       time.Now,
		events:    DefaultEventsTable,
		snapshots: DefaultSnapshotsTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendParams describes one event to append.
type AppendParams struct {
	SubscriptionID string
	StoreID        string
	UserID         string
	Type           EventType
	Payload        Payload
	Meta           map[string]any
}

// Append assigns the next version, inserts the event row, then synchronously
// recomputes the subscription's snapshot by full replay. A failed recompute
// is logged as a warning and does not fail the append: the event log is
// authoritative even when the projection lags.
//
// Appends for one subscription are serialized through the keyed lock, so
// version assignment is race-free within the lock's scope.
func (s *Store) Append(ctx context.Context, params AppendParams) (Event, error) {
	if params.SubscriptionID == "" {
		return Event{}, ErrMissingSubscriptionID
	}
	if params.Payload == nil {
		return Event{}, ErrMissingPayload
	}
	if params.Payload.eventType() != params.Type {
		return Event{}, fmt.Errorf("%w: %T for %s", ErrPayloadMismatch, params.Payload, params.Type)
	}

	release, err := s.locker.Acquire(ctx, params.SubscriptionID)
	if err != nil {
		return Event{}, err
	}
	defer release()

	version, err := s.nextVersion(ctx, params.SubscriptionID)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		ID:             uuid.New().String(),
		SubscriptionID: params.SubscriptionID,
		StoreID:        params.StoreID,
		UserID:         params.UserID,
		Type:           params.Type,
		Version:        version,
		Timestamp:      s.now().UTC(),
		Payload:        params.Payload,
		Meta:           params.Meta,
	}

	row, err := eventRow(ev)
	if err != nil {
		return Event{}, err
	}
	if _, err := s.store.Insert(ctx, s.events, row); err != nil {
		return Event{}, err
	}
	s.mtr.ObserveEventAppended(string(ev.Type))

	if err := s.recomputeSnapshot(ctx, params.SubscriptionID); err != nil {
		s.mtr.ObserveProjectionFailure()
		s.log.WarnContext(ctx, "snapshot recompute failed, event remains appended",
			logger.Component("eventstore"),
			logger.SubscriptionID(params.SubscriptionID),
			logger.EventType(string(ev.Type)),
			logger.Version(ev.Version),
			logger.Error(err),
		)
	}

	return ev, nil
}

func (s *Store) nextVersion(ctx context.Context, subscriptionID string) (int64, error) {
	rows, err := s.store.Select(ctx, s.events,
		datastore.Match{"subscription_id": subscriptionID},
		datastore.WithOrderDesc("version"), datastore.WithLimit(1))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 1, nil
	}
	max, err := versionFromRow(rows[0])
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// EventsOption narrows the version range of an Events call.
type EventsOption func(*eventsQuery)

type eventsQuery struct {
	from, to int64
}

// FromVersion sets the inclusive lower version bound.
func FromVersion(v int64) EventsOption {
	return func(q *eventsQuery) { q.from = v }
}

// ToVersion sets the inclusive upper version bound.
func ToVersion(v int64) EventsOption {
	return func(q *eventsQuery) { q.to = v }
}

// Events returns the subscription's events ordered ascending by version,
// optionally bounded (inclusive on both ends).
func (s *Store) Events(ctx context.Context, subscriptionID string, opts ...EventsOption) ([]Event, error) {
	if subscriptionID == "" {
		return nil, ErrMissingSubscriptionID
	}

	var q eventsQuery
	for _, opt := range opts {
		opt(&q)
	}

	rows, err := s.store.Select(ctx, s.events,
		datastore.Match{"subscription_id": subscriptionID},
		datastore.WithOrderAsc("version"))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev, err := eventFromRow(row)
		if err != nil {
			return nil, err
		}
		if q.from > 0 && ev.Version < q.from {
			continue
		}
		if q.to > 0 && ev.Version > q.to {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Reconstruct folds the subscription's events up to toVersion (0 means all)
// and returns the projected state, or nil when no events exist.
func (s *Store) Reconstruct(ctx context.Context, subscriptionID string, toVersion int64) (*ProjectedState, error) {
	var opts []EventsOption
	if toVersion > 0 {
		opts = append(opts, ToVersion(toVersion))
	}
	events, err := s.Events(ctx, subscriptionID, opts...)
	if err != nil {
		return nil, err
	}
	return Fold(events), nil
}

// Snapshot returns the denormalized projection row, or nil when none exists.
// The snapshot is a cache of the fold and may lag behind the event log.
func (s *Store) Snapshot(ctx context.Context, subscriptionID string) (*ProjectedState, error) {
	if subscriptionID == "" {
		return nil, ErrMissingSubscriptionID
	}

	rows, err := s.store.Select(ctx, s.snapshots,
		datastore.Match{"subscription_id": subscriptionID},
		datastore.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return stateFromRow(rows[0])
}

// SnapshotByStore returns the snapshot row for the store's subscription, or
// nil when the store has none. Stores hold at most one subscription.
func (s *Store) SnapshotByStore(ctx context.Context, storeID string) (*ProjectedState, error) {
	if storeID == "" {
		return nil, errors.New("eventstore: store id is required")
	}

	rows, err := s.store.Select(ctx, s.snapshots,
		datastore.Match{"store_id": storeID},
		datastore.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return stateFromRow(rows[0])
}

// recomputeSnapshot replays the full event list and upserts the result.
func (s *Store) recomputeSnapshot(ctx context.Context, subscriptionID string) error {
	state, err := s.Reconstruct(ctx, subscriptionID, 0)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	_, err = s.store.Upsert(ctx, s.snapshots,
		datastore.Match{"subscription_id": subscriptionID},
		snapshotRow(state))
	return err
}

// eventRow flattens an Event for storage. The payload is stored as a JSON
// object keyed by the event type's schema.
func eventRow(ev Event) (datastore.Row, error) {
	payload, err := toJSONMap(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("eventstore: encode %s payload: %w", ev.Type, err)
	}

	row := datastore.Row{
		"id":              ev.ID,
		"subscription_id": ev.SubscriptionID,
		"store_id":        ev.StoreID,
		"user_id":         ev.UserID,
		"event_type":      string(ev.Type),
		"version":         ev.Version,
		"created_at":      ev.Timestamp.Format(time.RFC3339Nano),
		"payload":         payload,
	}
	if len(ev.Meta) > 0 {
		row["metadata"] = ev.Meta
	}
	return row, nil
}

func eventFromRow(row datastore.Row) (Event, error) {
	version, err := versionFromRow(row)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		ID:             asString(row["id"]),
		SubscriptionID: asString(row["subscription_id"]),
		StoreID:        asString(row["store_id"]),
		UserID:         asString(row["user_id"]),
		Type:           EventType(asString(row["event_type"])),
		Version:        version,
	}

	if ts := asString(row["created_at"]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Event{}, fmt.Errorf("eventstore: parse event timestamp: %w", err)
		}
		ev.Timestamp = t
	}

	raw, err := json.Marshal(row["payload"])
	if err != nil {
		return Event{}, fmt.Errorf("eventstore: re-encode stored payload: %w", err)
	}
	payload, err := decodePayload(ev.Type, raw)
	if err != nil {
		return Event{}, err
	}
	ev.Payload = payload

	if meta, ok := row["metadata"].(map[string]any); ok {
		ev.Meta = meta
	}
	return ev, nil
}

// snapshotRow flattens a ProjectedState into the denormalized snapshot row.
func snapshotRow(state *ProjectedState) datastore.Row {
	row := datastore.Row{
		"subscription_id":  state.SubscriptionID,
		"store_id":         state.StoreID,
		"status":           state.Status,
		"is_active":        state.IsActive,
		"plan_type":        state.PlanType,
		"version":          state.Version,
		"payment_attempts": state.PaymentAttempts,
		"cancel_reason":    state.CancelReason,
		"created_at":       state.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       state.UpdatedAt.Format(time.RFC3339Nano),
		"metadata":         state.Metadata,
	}
	putTime(row, "trial_ends_at", state.TrialEndsAt)
	putTime(row, "trial_ended_at", state.TrialEndedAt)
	putTime(row, "next_billing_at", state.NextBillingAt)
	putTime(row, "last_payment_at", state.LastPaymentAt)
	putTime(row, "canceled_at", state.CanceledAt)
	return row
}

func stateFromRow(row datastore.Row) (*ProjectedState, error) {
	version, err := versionFromRow(row)
	if err != nil {
		return nil, err
	}

	state := &ProjectedState{
		SubscriptionID: asString(row["subscription_id"]),
		StoreID:        asString(row["store_id"]),
		Status:         asString(row["status"]),
		PlanType:       asString(row["plan_type"]),
		CancelReason:   asString(row["cancel_reason"]),
		Version:        version,
		Metadata:       make(map[string]any),
	}
	if active, ok := row["is_active"].(bool); ok {
		state.IsActive = active
	}
	if attempts, ok := asInt64(row["payment_attempts"]); ok {
		state.PaymentAttempts = int(attempts)
	}
	if meta, ok := row["metadata"].(map[string]any); ok {
		state.Metadata = meta
	}

	for _, f := range []struct {
		col string
		dst **time.Time
	}{
		{col: "trial_ends_at", dst: &state.TrialEndsAt},
		{col: "trial_ended_at", dst: &state.TrialEndedAt},
		{col: "next_billing_at", dst: &state.NextBillingAt},
		{col: "last_payment_at", dst: &state.LastPaymentAt},
		{col: "canceled_at", dst: &state.CanceledAt},
	} {
		if ts := asString(row[f.col]); ts != "" {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("eventstore: parse snapshot %s: %w", f.col, err)
			}
			*f.dst = &t
		}
	}
	if ts := asString(row["created_at"]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("eventstore: parse snapshot created_at: %w", err)
		}
		state.CreatedAt = t
	}
	if ts := asString(row["updated_at"]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("eventstore: parse snapshot updated_at: %w", err)
		}
		state.UpdatedAt = t
	}

	return state, nil
}

func putTime(row datastore.Row, col string, t *time.Time) {
	if t != nil {
		row[col] = t.Format(time.RFC3339Nano)
	}
}

func versionFromRow(row datastore.Row) (int64, error) {
	v, ok := asInt64(row["version"])
	if !ok {
		return 0, fmt.Errorf("eventstore: row has no numeric version (got %T)", row["version"])
	}
	return v, nil
}

// toJSONMap round-trips a value through JSON into a generic map, the shape
// the row store persists.
func toJSONMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

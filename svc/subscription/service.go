package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/catalogkit/pkg/billing"
	"github.com/dmitrymomot/catalogkit/pkg/datastore"
	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
	"github.com/dmitrymomot/catalogkit/pkg/lifecycle"
	"github.com/dmitrymomot/catalogkit/pkg/logger"
	"github.com/dmitrymomot/catalogkit/pkg/metrics"
	"github.com/dmitrymomot/catalogkit/pkg/plans"
)

var (
	// ErrSubscriptionAlreadyExists is returned when a trial is requested for
	// a store that already has a subscription.
	ErrSubscriptionAlreadyExists = errors.New("subscription: already exists")

	// ErrMissingStoreID is returned when a call lacks the store id.
	ErrMissingStoreID = errors.New("subscription: store id is required")

	// ErrMissingUserID is returned when trial creation lacks the user id.
	ErrMissingUserID = errors.New("subscription: user id is required")

	// ErrBillingNotConfigured is returned by billing passthroughs when no
	// provider was wired in.
	ErrBillingNotConfigured = errors.New("subscription: billing provider not configured")
)

// Service is the subscription façade. All status changes go through the
// lifecycle engine; the service never writes status columns directly.
type Service struct {
	rows    datastore.RowStore
	events  *eventstore.Store
	engine  *lifecycle.Engine
	catalog plans.Source
	billing billing.Provider
	cache   *stateCache
	log     *slog.Logger
	mtr     *metrics.Collector
	now     func() time.Time

	subscriptions string
	trialPlan     plans.PlanType
	cacheTTL      time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithBilling wires the payment processor adapter. Without it the checkout,
// portal and webhook operations return ErrBillingNotConfigured.
func WithBilling(p billing.Provider) Option {
	return func(s *Service) { s.billing = p }
}

// WithPlans overrides the capability catalog (defaults to the built-in one).
func WithPlans(src plans.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.catalog = src
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics wires cache and payment observability.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.mtr = m }
}

// WithCacheTTL overrides the default 5-minute cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithTrialPlan sets the plan used by CreateTrialSubscription.
// Defaults to the free plan.
func WithTrialPlan(p plans.PlanType) Option {
	return func(s *Service) {
		if p != "" {
			s.trialPlan = p
		}
	}
}

// WithSubscriptionsTable overrides the subscriptions table name.
func WithSubscriptionsTable(table string) Option {
	return func(s *Service) {
		if table != "" {
			s.subscriptions = table
		}
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the subscription façade. The cache instance is owned by
// the returned Service; callers needing isolation construct separate
// services. Panics when rows, events or engine is nil to fail fast during
// initialization.
func NewService(rows datastore.RowStore, events *eventstore.Store, engine *lifecycle.Engine, opts ...Option) *Service {
	if rows == nil {
		panic("subscription: row store is required")
	}
	if events == nil {
		panic("subscription: event store is required")
	}
	if engine == nil {
		panic("subscription: lifecycle engine is required")
	}

	s := &Service{
		rows:          rows,
		events:        events,
		engine:        engine,
		catalog:       plans.MustMemorySource(nil),
		log:           slog.Default(),
		now:           time.Now,
		subscriptions: lifecycle.DefaultSubscriptionsTable,
		trialPlan:     plans.PlanFree,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = newStateCache(s.cacheTTL, s.mtr)
	return s
}

// GetSubscription returns the store's subscription details, or nil when the
// store has none. Reads go through the cache; a miss falls back to the
// snapshot projection. Derived day counts are recomputed on every call.
func (s *Service) GetSubscription(ctx context.Context, storeID string) (*Details, error) {
	if storeID == "" {
		return nil, ErrMissingStoreID
	}

	if state, ok := s.cache.getByStore(storeID); ok {
		return detailsFromState(state, s.now()), nil
	}

	state, err := s.events.SnapshotByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	s.cache.put(state)
	return detailsFromState(state, s.now()), nil
}

// Transition delegates to the lifecycle engine and invalidates the cached
// state and feature keys for the subscription.
func (s *Service) Transition(ctx context.Context, subscriptionID string, trigger lifecycle.Trigger, meta lifecycle.Meta) (lifecycle.Result, error) {
	result, err := s.engine.Transition(ctx, subscriptionID, trigger, meta)

	storeID, _ := meta["store_id"].(string)
	if storeID == "" {
		if state, ok := s.cache.getBySubscription(subscriptionID); ok {
			storeID = state.StoreID
		}
	}
	s.cache.invalidate(subscriptionID, storeID)

	return result, err
}

// IsFeatureAvailable reports whether the subscription's plan grants the
// feature. Unknown features, unknown plans and missing subscriptions all
// report false. Results are cached per feature key.
func (s *Service) IsFeatureAvailable(ctx context.Context, subscriptionID string, feature plans.Feature) bool {
	if subscriptionID == "" {
		return false
	}
	if enabled, ok := s.cache.getFeature(subscriptionID, feature); ok {
		return enabled
	}

	state, err := s.stateBySubscription(ctx, subscriptionID)
	if err != nil || state == nil {
		return false
	}

	capability, ok := s.catalog.Capability(plans.PlanType(state.PlanType))
	if !ok {
		return false
	}
	enabled := capability.HasFeature(feature)
	s.cache.putFeature(subscriptionID, feature, enabled)
	return enabled
}

// IsTrialEndingSoon reports whether the store's subscription is trialing with
// at most thresholdDays left.
func (s *Service) IsTrialEndingSoon(ctx context.Context, storeID string, thresholdDays int) (bool, error) {
	details, err := s.GetSubscription(ctx, storeID)
	if err != nil {
		return false, err
	}
	if details == nil || details.Status != lifecycle.StatusTrialing || details.TrialEndsAt == nil {
		return false, nil
	}
	return details.DaysUntilTrialEnd <= thresholdDays, nil
}

// TrialResult is the outcome of CreateTrialSubscription.
type TrialResult struct {
	SubscriptionID string
	TrialEndsAt    time.Time
}

// CreateTrialSubscription starts a trial for the store. A store holds at most
// one subscription; a second call returns ErrSubscriptionAlreadyExists and
// appends nothing.
func (s *Service) CreateTrialSubscription(ctx context.Context, userID, storeID string) (*TrialResult, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if storeID == "" {
		return nil, ErrMissingStoreID
	}

	existing, err := s.events.SnapshotByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing, err = s.subscriptionRowState(ctx, storeID)
		if err != nil {
			return nil, err
		}
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: store %s", ErrSubscriptionAlreadyExists, storeID)
	}

	capability, ok := s.catalog.Capability(s.trialPlan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", plans.ErrUnknownPlanType, s.trialPlan)
	}

	subscriptionID := uuid.New().String()
	trialEndsAt := capability.TrialEndsAt(s.now().UTC())

	meta := lifecycle.Meta{
		"store_id":  storeID,
		"user_id":   userID,
		"plan_type": string(s.trialPlan),
	}
	if capability.TrialDays > 0 {
		meta["trial_ends_at"] = trialEndsAt
	}

	if _, err := s.engine.Transition(ctx, subscriptionID, lifecycle.TriggerCreate, meta); err != nil {
		return nil, err
	}
	s.cache.invalidate(subscriptionID, storeID)

	s.log.InfoContext(ctx, "trial subscription created",
		logger.Component("subscription"),
		logger.SubscriptionID(subscriptionID),
		logger.StoreID(storeID),
		logger.UserID(userID),
	)
	return &TrialResult{SubscriptionID: subscriptionID, TrialEndsAt: trialEndsAt}, nil
}

// CreateCheckoutSession passes through to the billing provider.
func (s *Service) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	if s.billing == nil {
		return nil, ErrBillingNotConfigured
	}
	return s.billing.CreateCheckoutSession(ctx, params)
}

// CreatePortalSession passes through to the billing provider.
func (s *Service) CreatePortalSession(ctx context.Context, params billing.PortalParams) (*billing.PortalSession, error) {
	if s.billing == nil {
		return nil, ErrBillingNotConfigured
	}
	return s.billing.CreatePortalSession(ctx, params)
}

// stateBySubscription resolves a projected state through the cache, falling
// back to the snapshot projection.
func (s *Service) stateBySubscription(ctx context.Context, subscriptionID string) (*eventstore.ProjectedState, error) {
	if state, ok := s.cache.getBySubscription(subscriptionID); ok {
		return state, nil
	}
	state, err := s.events.Snapshot(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.cache.put(state)
	}
	return state, nil
}

// subscriptionRowState guards trial creation against a lagging snapshot by
// also checking the mirror row.
func (s *Service) subscriptionRowState(ctx context.Context, storeID string) (*eventstore.ProjectedState, error) {
	rows, err := s.rows.Select(ctx, s.subscriptions,
		datastore.Match{"store_id": storeID}, datastore.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	id, _ := rows[0]["id"].(string)
	status, _ := rows[0]["status"].(string)
	return &eventstore.ProjectedState{
		SubscriptionID: id,
		StoreID:        storeID,
		Status:         status,
	}, nil
}

package subscription

import (
	"time"

	"github.com/dmitrymomot/catalogkit/pkg/cache"
	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
	"github.com/dmitrymomot/catalogkit/pkg/metrics"
	"github.com/dmitrymomot/catalogkit/pkg/plans"
)

// Cache key prefixes. States are indexed twice so lookups by store and by
// subscription id both hit; the two entries are always written together.
const (
	byStorePrefix = "store:"
	bySubPrefix   = "sub:"
	featurePrefix = "feature:"
)

// stateCache is the subscription-specific cache manager: projected states
// under two index keys plus per-feature boolean keys. It is owned by the
// Service instance; there is no package-level cache.
type stateCache struct {
	states   *cache.TTLCache[*eventstore.ProjectedState]
	features *cache.TTLCache[bool]
	mtr      *metrics.Collector
}

func newStateCache(ttl time.Duration, mtr *metrics.Collector) *stateCache {
	var opts []cache.Option
	if ttl > 0 {
		opts = append(opts, cache.WithTTL(ttl))
	}
	return &stateCache{
		states:   cache.New[*eventstore.ProjectedState](opts...),
		features: cache.New[bool](opts...),
		mtr:      mtr,
	}
}

func (c *stateCache) getByStore(storeID string) (*eventstore.ProjectedState, bool) {
	return c.observe(c.states.Get(byStorePrefix + storeID))
}

func (c *stateCache) getBySubscription(subscriptionID string) (*eventstore.ProjectedState, bool) {
	return c.observe(c.states.Get(bySubPrefix + subscriptionID))
}

// put stores the state under both indices.
func (c *stateCache) put(state *eventstore.ProjectedState) {
	if state == nil {
		return
	}
	c.states.Set(bySubPrefix+state.SubscriptionID, state)
	if state.StoreID != "" {
		c.states.Set(byStorePrefix+state.StoreID, state)
	}
}

func (c *stateCache) getFeature(subscriptionID string, f plans.Feature) (bool, bool) {
	enabled, ok := c.features.Get(featureKey(subscriptionID, f))
	if ok {
		c.mtr.ObserveCache("hit")
	} else {
		c.mtr.ObserveCache("miss")
	}
	return enabled, ok
}

func (c *stateCache) putFeature(subscriptionID string, f plans.Feature, enabled bool) {
	c.features.Set(featureKey(subscriptionID, f), enabled)
}

// invalidate drops both index entries and every feature key for the
// subscription. Called on any mutation.
func (c *stateCache) invalidate(subscriptionID, storeID string) {
	c.states.Delete(bySubPrefix + subscriptionID)
	if storeID != "" {
		c.states.Delete(byStorePrefix + storeID)
	}
	c.features.DeleteByPrefix(featurePrefix + subscriptionID + ":")
	c.mtr.ObserveCache("invalidate")
}

func (c *stateCache) observe(state *eventstore.ProjectedState, ok bool) (*eventstore.ProjectedState, bool) {
	if ok {
		c.mtr.ObserveCache("hit")
	} else {
		c.mtr.ObserveCache("miss")
	}
	return state, ok
}

func featureKey(subscriptionID string, f plans.Feature) string {
	return featurePrefix + subscriptionID + ":" + string(f)
}

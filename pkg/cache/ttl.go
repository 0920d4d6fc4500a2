package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is applied to entries set without an explicit TTL.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity bounds the number of cached entries.
	DefaultCapacity = 1000

	// cleanupInterval is the wall-time trigger for the lazy sweep.
	cleanupInterval = 5 * time.Minute
	// overflowFactor triggers a sweep when size exceeds capacity by 20%.
	overflowFactor = 1.2
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a thread-safe in-memory cache with per-entry expiry and a
// bounded item count. Keys are strings so entries can be invalidated by
// prefix, which the subscription cache manager relies on for feature keys.
type TTLCache[V any] struct {
	mu          sync.Mutex
	items       map[string]entry[V]
	ttl         time.Duration
	capacity    int
	lastCleanup time.Time

	// now is replaceable in tests to exercise expiry deterministically.
	now func() time.Time
}

// Option configures a TTLCache during construction.
type Option func(*options)

type options struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// WithTTL overrides the default entry TTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCapacity overrides the default capacity. Non-positive values are ignored.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// WithNowFunc replaces the clock, primarily for tests. Nil is ignored.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a TTLCache with the given options.
func New[V any](opts ...Option) *TTLCache[V] {
	o := &options{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &TTLCache[V]{
		items:       make(map[string]entry[V]),
		ttl:         o.ttl,
		capacity:    o.capacity,
		lastCleanup: o.now(),
		now:         o.now,
	}
}

// Get retrieves a value. Expired entries are treated as misses and removed.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the default TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL.
// A write may trigger the lazy cleanup sweep.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.maybeCleanup()
}

// Delete removes a single entry.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// DeleteByPrefix removes every entry whose key starts with prefix and returns
// the number of removed entries.
func (c *TTLCache[V]) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Clear removes all entries.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V])
}

// Len returns the current number of entries, including any not yet swept.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// maybeCleanup runs the sweep when the wall-time interval elapsed or the cache
// overflowed its bound by 20%. Must be called with the lock held.
func (c *TTLCache[V]) maybeCleanup() {
	now := c.now()
	overflow := len(c.items) > int(float64(c.capacity)*overflowFactor)
	if !overflow && now.Sub(c.lastCleanup) < cleanupInterval {
		return
	}
	c.lastCleanup = now

	// Expired entries go first.
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}

	if len(c.items) <= c.capacity {
		return
	}

	// Still over the bound: evict entries closest to expiry.
	type keyed struct {
		key       string
		expiresAt time.Time
	}
	ordered := make([]keyed, 0, len(c.items))
	for k, e := range c.items {
		ordered = append(ordered, keyed{key: k, expiresAt: e.expiresAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].expiresAt.Before(ordered[j].expiresAt)
	})

	for _, e := range ordered {
		if len(c.items) <= c.capacity {
			break
		}
		delete(c.items, e.key)
	}
}

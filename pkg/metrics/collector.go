package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector wraps Prometheus metrics for the subscription lifecycle engine.
// It owns a dedicated registry so multiple engines can run in one process
// without metric name collisions.
type Collector struct {
	registry *prometheus.Registry

	TransitionsTotal    *prometheus.CounterVec
	TransitionDuration  *prometheus.HistogramVec
	EventsAppended      *prometheus.CounterVec
	ProjectionFailures  prometheus.Counter
	PaymentOutcomes     *prometheus.CounterVec
	PlanSteps           *prometheus.CounterVec
	PlanRollbacks       prometheus.Counter
	CacheRequests       *prometheus.CounterVec
	ActiveSubscriptions *prometheus.GaugeVec
}

// NewCollector creates a Collector with its own Prometheus registry.
// The namespace prefixes every metric name.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_transitions_total",
			Help:      "Total number of attempted subscription state transitions",
		}, []string{"from", "to", "trigger", "outcome"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subscription_transition_duration_seconds",
			Help:      "Duration of subscription state transitions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_appended_total",
			Help:      "Total number of lifecycle events appended to the event store",
		}, []string{"event_type"}),
		ProjectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_projection_failures_total",
			Help:      "Total number of snapshot recomputations that failed after a successful append",
		}),
		PaymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_outcomes_total",
			Help:      "Total number of payment outcomes observed from the billing gateway",
		}, []string{"outcome"}),
		PlanSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_plan_steps_total",
			Help:      "Total number of executed transaction plan steps",
		}, []string{"table", "operation", "outcome"}),
		PlanRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_plan_rollbacks_total",
			Help:      "Total number of transaction plans that were rolled back",
		}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Total number of cache lookups partitioned by result",
		}, []string{"result"}),
		ActiveSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Number of subscriptions currently known to this instance, by status",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.TransitionsTotal,
		c.TransitionDuration,
		c.EventsAppended,
		c.ProjectionFailures,
		c.PaymentOutcomes,
		c.PlanSteps,
		c.PlanRollbacks,
		c.CacheRequests,
		c.ActiveSubscriptions,
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an http.Handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTransition records one transition attempt. A nil collector is a no-op.
func (c *Collector) ObserveTransition(from, to, trigger, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(from, to, trigger, outcome).Inc()
	c.TransitionDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// ObserveEventAppended records one appended lifecycle event. A nil collector is a no-op.
func (c *Collector) ObserveEventAppended(eventType string) {
	if c == nil {
		return
	}
	c.EventsAppended.WithLabelValues(eventType).Inc()
}

// ObserveProjectionFailure records a failed snapshot recompute. A nil collector is a no-op.
func (c *Collector) ObserveProjectionFailure() {
	if c == nil {
		return
	}
	c.ProjectionFailures.Inc()
}

// ObservePayment records a payment outcome. A nil collector is a no-op.
func (c *Collector) ObservePayment(outcome string) {
	if c == nil {
		return
	}
	c.PaymentOutcomes.WithLabelValues(outcome).Inc()
}

// ObservePlanStep records one executed plan step. A nil collector is a no-op.
func (c *Collector) ObservePlanStep(table, operation, outcome string) {
	if c == nil {
		return
	}
	c.PlanSteps.WithLabelValues(table, operation, outcome).Inc()
}

// ObserveRollback records one rolled-back plan. A nil collector is a no-op.
func (c *Collector) ObserveRollback() {
	if c == nil {
		return
	}
	c.PlanRollbacks.Inc()
}

// ObserveCache records a cache lookup result ("hit" or "miss"). A nil collector is a no-op.
func (c *Collector) ObserveCache(result string) {
	if c == nil {
		return
	}
	c.CacheRequests.WithLabelValues(result).Inc()
}

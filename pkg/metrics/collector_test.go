package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/metrics"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	t.Run("transition counter", func(t *testing.T) {
		t.Parallel()
		col := metrics.NewCollector("test")

		col.ObserveTransition("trialing", "active", "payment_succeeded", "success", 25*time.Millisecond)
		col.ObserveTransition("trialing", "active", "payment_succeeded", "success", 10*time.Millisecond)

		v := testutil.ToFloat64(col.TransitionsTotal.WithLabelValues("trialing", "active", "payment_succeeded", "success"))
		assert.Equal(t, float64(2), v)
	})

	t.Run("cache hit rate counters", func(t *testing.T) {
		t.Parallel()
		col := metrics.NewCollector("test")

		col.ObserveCache("hit")
		col.ObserveCache("hit")
		col.ObserveCache("miss")

		assert.Equal(t, float64(2), testutil.ToFloat64(col.CacheRequests.WithLabelValues("hit")))
		assert.Equal(t, float64(1), testutil.ToFloat64(col.CacheRequests.WithLabelValues("miss")))
	})

	t.Run("plan step and rollback counters", func(t *testing.T) {
		t.Parallel()
		col := metrics.NewCollector("test")

		col.ObservePlanStep("subscriptions", "update", "success")
		col.ObserveRollback()

		assert.Equal(t, float64(1), testutil.ToFloat64(col.PlanSteps.WithLabelValues("subscriptions", "update", "success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(col.PlanRollbacks))
	})

	t.Run("nil collector is a no-op", func(t *testing.T) {
		t.Parallel()
		var col *metrics.Collector
		require.NotPanics(t, func() {
			col.ObserveTransition("a", "b", "c", "success", time.Millisecond)
			col.ObserveEventAppended("created")
			col.ObserveProjectionFailure()
			col.ObservePayment("succeeded")
			col.ObservePlanStep("t", "insert", "success")
			col.ObserveRollback()
			col.ObserveCache("hit")
		})
	})

	t.Run("handler serves registry", func(t *testing.T) {
		t.Parallel()
		col := metrics.NewCollector("test")
		assert.NotNil(t, col.Handler())
		assert.NotNil(t, col.Registry())
	})
}

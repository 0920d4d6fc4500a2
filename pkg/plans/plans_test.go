package plans_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/plans"
)

func TestCapability_HasFeature(t *testing.T) {
	t.Parallel()

	source := plans.MustMemorySource(nil)

	t.Run("granted feature", func(t *testing.T) {
		t.Parallel()
		pro, ok := source.Capability(plans.PlanPro)
		require.True(t, ok)
		assert.True(t, pro.HasFeature(plans.FeatureAPIAccess))
		assert.True(t, pro.HasFeature(plans.FeatureCustomDomain))
	})

	t.Run("feature not granted by tier", func(t *testing.T) {
		t.Parallel()
		free, ok := source.Capability(plans.PlanFree)
		require.True(t, ok)
		assert.False(t, free.HasFeature(plans.FeatureAPIAccess))

		starter, ok := source.Capability(plans.PlanStarter)
		require.True(t, ok)
		assert.True(t, starter.HasFeature(plans.FeatureCustomBranding))
		assert.False(t, starter.HasFeature(plans.FeaturePrioritySupport))
	})

	t.Run("unknown feature fails closed", func(t *testing.T) {
		t.Parallel()
		enterprise, ok := source.Capability(plans.PlanEnterprise)
		require.True(t, ok)
		assert.False(t, enterprise.HasFeature(plans.Feature("teleportation")))
	})
}

func TestCapability_TrialEndsAt(t *testing.T) {
	t.Parallel()

	source := plans.MustMemorySource(nil)
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	free, _ := source.Capability(plans.PlanFree)
	assert.Equal(t, started.AddDate(0, 0, 14), free.TrialEndsAt(started))

	pro, _ := source.Capability(plans.PlanPro)
	assert.Equal(t, started, pro.TrialEndsAt(started))
}

func TestMemorySource(t *testing.T) {
	t.Parallel()

	t.Run("unknown plan type not found", func(t *testing.T) {
		t.Parallel()
		source := plans.MustMemorySource(nil)

		_, ok := source.Capability(plans.PlanType("platinum"))
		assert.False(t, ok)
	})

	t.Run("rejects catalog with unknown plan type", func(t *testing.T) {
		t.Parallel()
		_, err := plans.NewMemorySource(map[plans.PlanType]plans.Capability{
			plans.PlanType("platinum"): {Plan: "platinum"},
		})
		assert.ErrorIs(t, err, plans.ErrUnknownPlanType)
	})

	t.Run("rejects empty catalog", func(t *testing.T) {
		t.Parallel()
		_, err := plans.NewMemorySource(map[plans.PlanType]plans.Capability{})
		assert.ErrorIs(t, err, plans.ErrEmptyCatalog)
	})

	t.Run("rejects unknown feature", func(t *testing.T) {
		t.Parallel()
		_, err := plans.NewMemorySource(map[plans.PlanType]plans.Capability{
			plans.PlanFree: {
				Plan:     plans.PlanFree,
				Features: map[plans.Feature]bool{"teleportation": true},
			},
		})
		assert.Error(t, err)
	})
}

func TestNewYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("parses catalog", func(t *testing.T) {
		t.Parallel()
		doc := []byte(`
plans:
  - plan: free
    name: Free
    trial_days: 14
    features: {}
    limits:
      products: 25
  - plan: pro
    name: Pro
    price_ref: price_pro_monthly
    interval: monthly
    price:
      amount: 2990
      currency: USD
    features:
      api_access: true
      custom_domain: true
    limits:
      products: -1
`)

		source, err := plans.NewYAMLSource(doc)
		require.NoError(t, err)

		pro, ok := source.Capability(plans.PlanPro)
		require.True(t, ok)
		assert.True(t, pro.HasFeature(plans.FeatureAPIAccess))
		assert.Equal(t, "price_pro_monthly", pro.PriceRef)
		assert.Equal(t, plans.Unlimited, pro.Limit(plans.ResourceProducts))
		assert.Equal(t, int64(2990), pro.Price.Amount)

		free, ok := source.Capability(plans.PlanFree)
		require.True(t, ok)
		assert.Equal(t, 14, free.TrialDays)
		assert.Equal(t, int64(25), free.Limit(plans.ResourceProducts))
	})

	t.Run("rejects duplicate plan entries", func(t *testing.T) {
		t.Parallel()
		doc := []byte(`
plans:
  - plan: free
  - plan: free
`)
		_, err := plans.NewYAMLSource(doc)
		assert.Error(t, err)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := plans.NewYAMLSource([]byte("plans: ["))
		assert.Error(t, err)
	})
}

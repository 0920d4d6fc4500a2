package plans

import (
	"time"
)

// Capability describes what one plan type grants. PriceRef is the payment
// provider's price ID for paid plans, used during checkout and webhook
// mapping.
type Capability struct {
	Plan        PlanType           `yaml:"plan" json:"plan"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	PriceRef    string             `yaml:"price_ref,omitempty" json:"price_ref,omitempty"`
	Features    map[Feature]bool   `yaml:"features" json:"features"`
	Limits      map[Resource]int64 `yaml:"limits" json:"limits"`
	TrialDays   int                `yaml:"trial_days,omitempty" json:"trial_days,omitempty"`
	Price       Money              `yaml:"price" json:"price"`
	Interval    BillingInterval    `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// HasFeature reports whether the plan grants the feature. Unknown features
// fail closed.
func (c Capability) HasFeature(f Feature) bool {
	return c.Features[f]
}

// Limit returns the plan's limit for a resource; missing resources are
// treated as zero (nothing allowed).
func (c Capability) Limit(r Resource) int64 {
	return c.Limits[r]
}

// TrialEndsAt calculates when a trial started at the given time ends.
// Returns startedAt unchanged when the plan has no trial.
func (c Capability) TrialEndsAt(startedAt time.Time) time.Time {
	if c.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, c.TrialDays).UTC()
}

// DefaultCatalog returns the built-in capability table.
func DefaultCatalog() map[PlanType]Capability {
	return map[PlanType]Capability{
		PlanFree: {
			Plan:      PlanFree,
			Name:      "Free",
			TrialDays: 14,
			Features:  map[Feature]bool{},
			Limits: map[Resource]int64{
				ResourceProducts:   25,
				ResourceCategories: 5,
				ResourceLabels:     50,
				ResourceStorageMB:  100,
			},
		},
		PlanStarter: {
			Plan:     PlanStarter,
			Name:     "Starter",
			Price:    Money{Amount: 990, Currency: "USD"},
			Interval: IntervalMonthly,
			Features: map[Feature]bool{
				FeatureCustomBranding: true,
				FeatureBulkExport:     true,
			},
			Limits: map[Resource]int64{
				ResourceProducts:   500,
				ResourceCategories: 50,
				ResourceLabels:     1000,
				ResourceStorageMB:  1024,
			},
		},
		PlanPro: {
			Plan:     PlanPro,
			Name:     "Pro",
			Price:    Money{Amount: 2990, Currency: "USD"},
			Interval: IntervalMonthly,
			Features: map[Feature]bool{
				FeatureCustomBranding:    true,
				FeatureBulkExport:        true,
				FeatureAdvancedAnalytics: true,
				FeatureAPIAccess:         true,
				FeatureUnlimitedProducts: true,
				FeatureCustomDomain:      true,
			},
			Limits: map[Resource]int64{
				ResourceProducts:   Unlimited,
				ResourceCategories: Unlimited,
				ResourceLabels:     Unlimited,
				ResourceStorageMB:  10240,
			},
		},
		PlanEnterprise: {
			Plan:     PlanEnterprise,
			Name:     "Enterprise",
			Price:    Money{Amount: 9990, Currency: "USD"},
			Interval: IntervalMonthly,
			Features: map[Feature]bool{
				FeatureCustomBranding:    true,
				FeatureBulkExport:        true,
				FeatureAdvancedAnalytics: true,
				FeatureAPIAccess:         true,
				FeaturePrioritySupport:   true,
				FeatureUnlimitedProducts: true,
				FeatureCustomDomain:      true,
			},
			Limits: map[Resource]int64{
				ResourceProducts:   Unlimited,
				ResourceCategories: Unlimited,
				ResourceLabels:     Unlimited,
				ResourceStorageMB:  Unlimited,
			},
		},
	}
}

package plans

// PlanType identifies a subscription plan tier.
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanStarter    PlanType = "starter"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

func (p PlanType) String() string { return string(p) }

// Feature is a plan-gated capability. The set is fixed: gate checks against
// names outside this set fail closed.
type Feature string

const (
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeatureBulkExport        Feature = "bulk_export"
	FeatureAPIAccess         Feature = "api_access"
	FeaturePrioritySupport   Feature = "priority_support"
	FeatureUnlimitedProducts Feature = "unlimited_products"
	FeatureCustomDomain      Feature = "custom_domain"
)

// KnownFeatures lists every feature the gate recognizes.
func KnownFeatures() []Feature {
	return []Feature{
		FeatureCustomBranding,
		FeatureAdvancedAnalytics,
		FeatureBulkExport,
		FeatureAPIAccess,
		FeaturePrioritySupport,
		FeatureUnlimitedProducts,
		FeatureCustomDomain,
	}
}

// Resource is a countable tenant resource type.
type Resource string

const (
	ResourceProducts   Resource = "products"
	ResourceCategories Resource = "categories"
	ResourceLabels     Resource = "labels"
	ResourceStorageMB  Resource = "storage_mb"
)

// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Money is a monetary amount in the smallest currency unit.
// For example, $10.99 USD is Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`
	Currency string `yaml:"currency" json:"currency"`
}

// BillingInterval is the billing frequency for a paid plan.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

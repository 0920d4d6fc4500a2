package plans

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPlanType is returned when a catalog entry names a plan type
	// outside the known set.
	ErrUnknownPlanType = errors.New("plans: unknown plan type")

	// ErrEmptyCatalog is returned when a source holds no plans.
	ErrEmptyCatalog = errors.New("plans: catalog is empty")
)

// Source provides plan capabilities. Implementations are read-only after
// construction and safe for concurrent use.
type Source interface {
	// Capability returns the capability for a plan type, or false when the
	// plan type is not in the catalog.
	Capability(plan PlanType) (Capability, bool)

	// All returns the full catalog keyed by plan type.
	All() map[PlanType]Capability
}

// MemorySource is a Source over an in-memory catalog.
type MemorySource struct {
	catalog map[PlanType]Capability
}

// NewMemorySource creates a Source from the given catalog. A nil catalog
// uses the built-in defaults.
func NewMemorySource(catalog map[PlanType]Capability) (*MemorySource, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if err := validateCatalog(catalog); err != nil {
		return nil, err
	}
	return &MemorySource{catalog: catalog}, nil
}

// MustMemorySource is like NewMemorySource but panics on invalid catalogs.
func MustMemorySource(catalog map[PlanType]Capability) *MemorySource {
	s, err := NewMemorySource(catalog)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *MemorySource) Capability(plan PlanType) (Capability, bool) {
	c, ok := s.catalog[plan]
	return c, ok
}

func (s *MemorySource) All() map[PlanType]Capability {
	out := make(map[PlanType]Capability, len(s.catalog))
	for k, v := range s.catalog {
		out[k] = v
	}
	return out
}

func validateCatalog(catalog map[PlanType]Capability) error {
	if len(catalog) == 0 {
		return ErrEmptyCatalog
	}

	known := map[PlanType]bool{
		PlanFree: true, PlanStarter: true, PlanPro: true, PlanEnterprise: true,
	}
	knownFeatures := make(map[Feature]bool, len(KnownFeatures()))
	for _, f := range KnownFeatures() {
		knownFeatures[f] = true
	}

	for plan, c := range catalog {
		if !known[plan] {
			return fmt.Errorf("%w: %q", ErrUnknownPlanType, plan)
		}
		for f := range c.Features {
			if !knownFeatures[f] {
				return fmt.Errorf("plans: plan %q grants unknown feature %q", plan, f)
			}
		}
	}
	return nil
}

package plans

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlCatalog is the on-disk catalog shape: a list of capabilities, each
// naming its plan type.
type yamlCatalog struct {
	Plans []Capability `yaml:"plans"`
}

// NewYAMLSource parses a capability catalog from YAML.
func NewYAMLSource(data []byte) (*MemorySource, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("plans: parse catalog: %w", err)
	}

	catalog := make(map[PlanType]Capability, len(doc.Plans))
	for _, c := range doc.Plans {
		if _, dup := catalog[c.Plan]; dup {
			return nil, fmt.Errorf("plans: duplicate catalog entry for plan %q", c.Plan)
		}
		catalog[c.Plan] = c
	}

	return NewMemorySource(catalog)
}

// NewYAMLSourceFromFile reads and parses a capability catalog file.
func NewYAMLSourceFromFile(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plans: read catalog file: %w", err)
	}
	return NewYAMLSource(data)
}

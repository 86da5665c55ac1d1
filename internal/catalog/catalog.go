// Package catalog serves the species and subspecies suggestions offered at intake.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed species.yaml
var defaultYAML []byte

// Species is one suggested species with its subspecies.
type Species struct {
	Name       string   `yaml:"name"       json:"name"`
	Subspecies []string `yaml:"subspecies" json:"subspecies"`
}

// Catalog is the full suggestion list.
type Catalog struct {
	Species []Species `yaml:"species" json:"species"`
	Remarks []string  `yaml:"remarks" json:"remarks"`
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Species))
	for _, s := range c.Species {
		if s.Name == "" {
			return nil, fmt.Errorf("parse catalog: species with empty name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("parse catalog: duplicate species %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &c, nil
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Subspecies returns the suggestions for species, or nil if it is not listed.
func (c *Catalog) Subspecies(species string) []string {
	for _, s := range c.Species {
		if s.Name == species {
			return s.Subspecies
		}
	}
	return nil
}

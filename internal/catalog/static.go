package catalog

import (
	"context"
	"fmt"
	"strings"
)

// AreaConfig is one configured area entry, typically declared in YAML.
type AreaConfig struct {
	ID     string `mapstructure:"id" yaml:"id"`
	Name   string `mapstructure:"name" yaml:"name"`
	URL    string `mapstructure:"url" yaml:"url"`
	Parent string `mapstructure:"parent" yaml:"parent"`
}

// Static serves a fixed, configuration-driven catalog.
type Static struct {
	units []Unit
}

// NewStatic validates the configured areas and builds a Static provider.
// Order of the input slice is preserved; it defines catalog order.
func NewStatic(areas []AreaConfig) (*Static, error) {
	if len(areas) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[string]struct{}, len(areas))
	units := make([]Unit, 0, len(areas))
	for i, a := range areas {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog entry %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, id)
		}
		if strings.TrimSpace(a.URL) == "" {
			return nil, fmt.Errorf("catalog entry %q: url is required", id)
		}
		seen[id] = struct{}{}
		units = append(units, Unit{
			ID:     id,
			Name:   a.Name,
			URL:    a.URL,
			Parent: a.Parent,
		})
	}
	return &Static{units: units}, nil
}

// List returns the configured units in declaration order.
func (s *Static) List(_ context.Context) ([]Unit, error) {
	out := make([]Unit, len(s.units))
	copy(out, s.units)
	return out, nil
}

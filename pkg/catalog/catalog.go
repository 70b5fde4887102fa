// Package catalog loads the provider/model catalog from YAML and seeds it
// into the store.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the YAML document root.
type Catalog struct {
	Providers []ProviderEntry `yaml:"providers"`
}

// ProviderEntry is a provider with its models nested under it.
type ProviderEntry struct {
	gateway.Provider `yaml:",inline"`
	Models           []gateway.Model `yaml:"models"`
}

// Writer is the subset of the store used for seeding.
type Writer interface {
	UpsertProvider(ctx context.Context, p gateway.Provider) (gateway.Provider, error)
	UpsertModel(ctx context.Context, m gateway.Model) (gateway.Model, error)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks names are unique and every entry is well formed.
func (c *Catalog) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("catalog has no providers")
	}
	providers := make(map[string]bool)
	models := make(map[string]bool)
	for i := range c.Providers {
		p := c.Providers[i].Provider
		p.ApplyDefaults()
		if err := p.Validate(); err != nil {
			return err
		}
		if providers[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		providers[p.Name] = true
		for _, m := range c.Providers[i].Models {
			m.ApplyDefaults()
			if err := m.Validate(); err != nil {
				return err
			}
			if models[m.Name] {
				return fmt.Errorf("duplicate model %q", m.Name)
			}
			models[m.Name] = true
		}
	}
	return nil
}

// ModelCount returns the number of models across providers.
func (c *Catalog) ModelCount() int {
	n := 0
	for _, p := range c.Providers {
		n += len(p.Models)
	}
	return n
}

// Seed upserts every provider and then its models.
func Seed(ctx context.Context, w Writer, c *Catalog, logger zerolog.Logger) error {
	for _, entry := range c.Providers {
		p, err := w.UpsertProvider(ctx, entry.Provider)
		if err != nil {
			return fmt.Errorf("failed to seed provider %s: %w", entry.Name, err)
		}
		for _, m := range entry.Models {
			m.ProviderName = p.Name
			if _, err := w.UpsertModel(ctx, m); err != nil {
				return fmt.Errorf("failed to seed model %s: %w", m.Name, err)
			}
		}
	}
	logger.Info().
		Int("providers", len(c.Providers)).
		Int("models", c.ModelCount()).
		Msg("Catalog seeded")
	return nil
}

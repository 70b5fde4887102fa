package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

// CatalogReader is the part of the store the registry loads from.
type CatalogReader interface {
	ListProviders(ctx context.Context, activeOnly bool) ([]gateway.Provider, error)
	ListModels(ctx context.Context, availableOnly bool) ([]gateway.Model, error)
}

// ProviderInfo is the listing shape of a provider.
type ProviderInfo struct {
	Name       string   `json:"name"`
	Models     []string `json:"models"`
	ModelCount int      `json:"model_count"`
	IsActive   bool     `json:"is_active"`
}

// Pricing is per 1K tokens.
type Pricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ModelInfo is the listing shape of a model.
type ModelInfo struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	ContextWindow int     `json:"context_window"`
	Type          string  `json:"type"`
	IsAvailable   bool    `json:"is_available"`
	Pricing       Pricing `json:"pricing"`
}

// Registry is an in-memory snapshot of active providers and available models.
type Registry struct {
	mu             sync.RWMutex
	providers      map[string]gateway.Provider
	models         map[string]gateway.Model
	providerModels map[string][]string
	loaded         bool
	logger         zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		providers:      map[string]gateway.Provider{},
		models:         map[string]gateway.Model{},
		providerModels: map[string][]string{},
		logger:         logger.With().Str("component", "registry").Logger(),
	}
}

// Load replaces the snapshot with the store's active providers and their
// available models.
func (r *Registry) Load(ctx context.Context, store CatalogReader) error {
	providers, err := store.ListProviders(ctx, true)
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	models, err := store.ListModels(ctx, true)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	byName := make(map[string]gateway.Provider, len(providers))
	byID := make(map[string]string, len(providers))
	provModels := make(map[string][]string, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
		byID[p.ID.String()] = p.Name
		provModels[p.Name] = []string{}
	}

	modelMap := make(map[string]gateway.Model, len(models))
	for _, m := range models {
		name, ok := byID[m.ProviderID.String()]
		if !ok {
			continue
		}
		m.ProviderName = name
		modelMap[m.Name] = m
		provModels[name] = append(provModels[name], m.Name)
	}

	r.mu.Lock()
	r.providers = byName
	r.models = modelMap
	r.providerModels = provModels
	r.loaded = true
	r.mu.Unlock()

	r.logger.Info().Int("providers", len(byName)).Int("models", len(modelMap)).Msg("Provider registry loaded")
	return nil
}

func (r *Registry) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *Registry) ProviderConfig(name string) (gateway.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) ModelConfig(name string) (gateway.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// ProviderForModel resolves the provider serving a model.
func (r *Registry) ProviderForModel(model string) (gateway.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return gateway.Provider{}, false
	}
	for _, p := range r.providers {
		if p.ID == m.ProviderID {
			return p, true
		}
	}
	return gateway.Provider{}, false
}

func (r *Registry) ProviderNameForModel(model string) (string, bool) {
	p, ok := r.ProviderForModel(model)
	return p.Name, ok
}

// Models returns every model config sorted by name.
func (r *Registry) Models() []gateway.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gateway.Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProviderNames returns the loaded provider names sorted.
func (r *Registry) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListProviders() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderInfo, 0, len(r.providers))
	for name, p := range r.providers {
		models := append([]string(nil), r.providerModels[name]...)
		sort.Strings(models)
		out = append(out, ProviderInfo{
			Name:       name,
			Models:     models,
			ModelCount: len(models),
			IsActive:   p.IsActive,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) ListModels() []ModelInfo {
	models := r.Models()
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		provider := m.ProviderName
		if provider == "" {
			provider = "Unknown"
		}
		out = append(out, ModelInfo{
			Name:          m.Name,
			Provider:      provider,
			ContextWindow: m.ContextWindow,
			Type:          m.Type,
			IsAvailable:   m.IsAvailable,
			Pricing:       Pricing{Input: m.InputPricePer1K, Output: m.OutputPricePer1K},
		})
	}
	return out
}

// Counts returns the number of loaded providers and models.
func (r *Registry) Counts() (providers, models int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers), len(r.models)
}

// SetProviderMaxRPM updates the cached limit after a store update.
func (r *Registry) SetProviderMaxRPM(name string, rpm int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return false
	}
	p.MaxRequestsPerMinute = rpm
	r.providers[name] = p
	return true
}

package providers

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Azure/ai-gateway/pkg/retry"
)

// keyedProviders need an API key to work.
var keyedProviders = []string{NameOpenAI, NameGemini}

// ProviderStatus is the per-provider block of Status.
type ProviderStatus struct {
	Active    bool     `json:"active"`
	HasAPIKey bool     `json:"has_api_key"`
	Cached    bool     `json:"cached"`
	Breaker   string   `json:"circuit_breaker"`
	Models    []string `json:"models"`
}

// Status is the aggregated provider view served by the API.
type Status struct {
	Providers       []ProviderInfo            `json:"providers"`
	Models          []ModelInfo               `json:"models"`
	CachedInstances []string                  `json:"cached_instances"`
	Status          map[string]ProviderStatus `json:"status"`
	Counts          StatusCounts              `json:"counts"`
}

type StatusCounts struct {
	Providers       int `json:"providers"`
	Models          int `json:"models"`
	CachedInstances int `json:"cached_instances"`
}

// Service orchestrates the registry and factory.
type Service struct {
	registry    *Registry
	factory     *Factory
	coordinator *retry.Coordinator
	apiKeys     map[string]string
	logger      zerolog.Logger
}

func NewService(registry *Registry, factory *Factory, coordinator *retry.Coordinator, apiKeys map[string]string, logger zerolog.Logger) *Service {
	return &Service{
		registry:    registry,
		factory:     factory,
		coordinator: coordinator,
		apiKeys:     apiKeys,
		logger:      logger.With().Str("component", "provider_service").Logger(),
	}
}

func (s *Service) Registry() *Registry { return s.registry }
func (s *Service) Factory() *Factory   { return s.factory }

// HealthCheck probes one provider, or every loaded provider when name is
// empty. Providers that cannot be instantiated report false.
func (s *Service) HealthCheck(ctx context.Context, name string) map[string]bool {
	names := []string{name}
	if name == "" {
		names = s.registry.ProviderNames()
	}

	var mu sync.Mutex
	results := make(map[string]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range names {
		n := n
		g.Go(func() error {
			healthy := false
			if p, err := s.factory.Get(n); err == nil {
				healthy = p.HealthCheck(gctx)
			} else {
				s.logger.Error().Err(err).Str("provider", n).Msg("Health check failed")
			}
			mu.Lock()
			results[n] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Status reports registry content, cached instances and key presence.
func (s *Service) Status() Status {
	providers := s.registry.ListProviders()
	cached := s.factory.Cached()
	cachedSet := make(map[string]bool, len(cached))
	for _, c := range cached {
		cachedSet[c] = true
	}

	status := make(map[string]ProviderStatus, len(providers))
	for _, p := range providers {
		breaker := string(retry.CircuitClosed)
		if s.coordinator != nil {
			breaker = string(s.coordinator.State(p.Name))
		}
		status[p.Name] = ProviderStatus{
			Active:    p.IsActive,
			HasAPIKey: !needsKey(p.Name) || s.apiKeys[p.Name] != "",
			Cached:    cachedSet[p.Name],
			Breaker:   breaker,
			Models:    p.Models,
		}
	}

	nProviders, nModels := s.registry.Counts()
	return Status{
		Providers:       providers,
		Models:          s.registry.ListModels(),
		CachedInstances: cached,
		Status:          status,
		Counts: StatusCounts{
			Providers:       nProviders,
			Models:          nModels,
			CachedInstances: len(cached),
		},
	}
}

// MissingKeys lists loaded providers that need an API key but have none.
func (s *Service) MissingKeys() []string {
	var missing []string
	for _, name := range s.registry.ProviderNames() {
		if needsKey(name) && s.apiKeys[name] == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Reload refreshes the registry from the store and drops cached instances.
func (s *Service) Reload(ctx context.Context, store CatalogReader) error {
	if err := s.registry.Load(ctx, store); err != nil {
		return err
	}
	s.factory.ClearCache()
	return nil
}

// UpdateMaxRPM applies a new requests-per-minute budget to a provider.
func (s *Service) UpdateMaxRPM(name string, rpm int) bool {
	if !s.registry.SetProviderMaxRPM(name, rpm) {
		return false
	}
	s.factory.UpdateMaxRPM(name, rpm)
	return true
}

func needsKey(name string) bool {
	for _, k := range keyedProviders {
		if k == name {
			return true
		}
	}
	return false
}

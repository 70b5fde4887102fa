package providers

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/retry"
)

// Settings carries credentials and endpoint overrides for the adapters.
type Settings struct {
	APIKeys             map[string]string
	OpenAIBaseURL       string
	AzureOpenAIEndpoint string
	GeminiBaseURL       string
	OllamaBaseURL       string
	MockLatencyMin      time.Duration
	MockLatencyMax      time.Duration
}

// Constructor builds an adapter from its catalog entry.
type Constructor func(cfg gateway.Provider, s Settings, logger zerolog.Logger) (Provider, error)

// DefaultConstructors maps catalog provider names to adapters.
func DefaultConstructors() map[string]Constructor {
	return map[string]Constructor{
		NameMock: func(cfg gateway.Provider, s Settings, _ zerolog.Logger) (Provider, error) {
			return NewMock(s.MockLatencyMin, s.MockLatencyMax), nil
		},
		NameOpenAI: func(cfg gateway.Provider, s Settings, logger zerolog.Logger) (Provider, error) {
			return NewOpenAI(OpenAIConfig{
				APIKey:        s.APIKeys[NameOpenAI],
				BaseURL:       firstNonEmpty(s.OpenAIBaseURL, cfg.BaseURL),
				AzureEndpoint: s.AzureOpenAIEndpoint,
			}, logger)
		},
		NameGemini: func(cfg gateway.Provider, s Settings, logger zerolog.Logger) (Provider, error) {
			return NewGemini(s.APIKeys[NameGemini], firstNonEmpty(s.GeminiBaseURL, cfg.BaseURL), cfg.Timeout(), logger), nil
		},
		NameOllama: func(cfg gateway.Provider, s Settings, logger zerolog.Logger) (Provider, error) {
			return NewOllama(firstNonEmpty(s.OllamaBaseURL, cfg.BaseURL), cfg.Timeout(), logger), nil
		},
	}
}

// Factory creates provider instances on first use and caches them by name.
type Factory struct {
	registry     *Registry
	settings     Settings
	coordinator  *retry.Coordinator
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	constructors map[string]Constructor

	mu    sync.Mutex
	cache map[string]*Guarded
}

func NewFactory(registry *Registry, settings Settings, coordinator *retry.Coordinator, m *metrics.Metrics, logger zerolog.Logger) *Factory {
	if coordinator == nil {
		coordinator = retry.New()
	}
	return &Factory{
		registry:     registry,
		settings:     settings,
		coordinator:  coordinator,
		metrics:      m,
		logger:       logger.With().Str("component", "provider_factory").Logger(),
		constructors: DefaultConstructors(),
		cache:        map[string]*Guarded{},
	}
}

// Register overrides or adds the adapter for a provider name.
func (f *Factory) Register(name string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = c
	delete(f.cache, name)
}

// Get returns the cached instance for name, creating it if needed.
func (f *Factory) Get(name string) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[name]; ok {
		return p, nil
	}

	cfg, ok := f.registry.ProviderConfig(name)
	if !ok {
		f.logger.Error().Str("provider", name).Msg("Provider not found in registry")
		return nil, fmt.Errorf("provider %s not found in registry", name)
	}
	ctor, ok := f.constructors[name]
	if !ok {
		f.logger.Error().Str("provider", name).Msg("No adapter for provider")
		return nil, fmt.Errorf("no adapter for provider %s", name)
	}

	inner, err := ctor(cfg, f.settings, f.logger)
	if err != nil {
		f.logger.Error().Err(err).Str("provider", name).Msg("Failed to create provider")
		return nil, fmt.Errorf("create provider %s: %w", name, err)
	}

	g := NewGuarded(inner, cfg.MaxRequestsPerMinute, cfg.RetryCount, f.coordinator, f.metrics)
	f.cache[name] = g
	f.logger.Info().Str("provider", name).Msg("Created provider instance")
	return g, nil
}

// ForModel returns the provider instance serving model.
func (f *Factory) ForModel(model string) (Provider, error) {
	name, ok := f.registry.ProviderNameForModel(model)
	if !ok {
		f.logger.Error().Str("model", model).Msg("No provider found for model")
		return nil, fmt.Errorf("no provider found for model %s", model)
	}
	return f.Get(name)
}

// UpdateMaxRPM applies a new budget to a cached instance.
func (f *Factory) UpdateMaxRPM(name string, rpm int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.cache[name]; ok {
		g.SetMaxRPM(rpm)
	}
}

func (f *Factory) ClearCache() {
	f.mu.Lock()
	f.cache = map[string]*Guarded{}
	f.mu.Unlock()
	f.logger.Info().Msg("Provider cache cleared")
}

// Cached returns the names of instantiated providers.
func (f *Factory) Cached() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.cache))
	for n := range f.cache {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

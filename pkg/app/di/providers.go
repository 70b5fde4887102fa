package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/api"
	"github.com/Azure/ai-gateway/pkg/catalog"
	"github.com/Azure/ai-gateway/pkg/chat"
	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/mcpserver"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/providers"
	"github.com/Azure/ai-gateway/pkg/retry"
	"github.com/Azure/ai-gateway/pkg/routing"
	"github.com/Azure/ai-gateway/pkg/storage/bolt"
	"github.com/Azure/ai-gateway/pkg/users"
)

// Version is the build version reported by the API and the MCP server.
type Version string

// loadCacheTTL bounds how stale provider load figures may be.
const loadCacheTTL = 300 * time.Second

// ProvideStore opens the bolt database and seeds the catalog on first start.
func ProvideStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*bolt.Store, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	store, err := bolt.Open(cfg.StorePath(), logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store")
		}
	}

	if err := SeedIfEmpty(ctx, store, cfg.CatalogFile, logger); err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

// SeedIfEmpty loads the catalog file, or the embedded default, into an empty
// store. A populated store is left alone.
func SeedIfEmpty(ctx context.Context, store *bolt.Store, catalogFile string, logger zerolog.Logger) error {
	empty, err := store.CatalogEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return err
	}
	return catalog.Seed(ctx, store, cat, logger)
}

func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

func ProvideCoordinator() *retry.Coordinator {
	return retry.New()
}

func ProvideRegistry(ctx context.Context, store *bolt.Store, logger zerolog.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry(logger)
	if err := registry.Load(ctx, store); err != nil {
		return nil, err
	}
	return registry, nil
}

// ProvideProviderSettings maps configuration onto adapter settings.
func ProvideProviderSettings(cfg *config.Config) providers.Settings {
	return providers.Settings{
		APIKeys:             cfg.APIKeys(),
		OpenAIBaseURL:       cfg.Keys.OpenAIBaseURL,
		AzureOpenAIEndpoint: cfg.Keys.AzureOpenAIURL,
		GeminiBaseURL:       cfg.Keys.GeminiBaseURL,
		OllamaBaseURL:       cfg.Keys.OllamaBaseURL,
		MockLatencyMin:      time.Duration(cfg.Keys.MockLatencyMinMS) * time.Millisecond,
		MockLatencyMax:      time.Duration(cfg.Keys.MockLatencyMaxMS) * time.Millisecond,
	}
}

func ProvideFactory(registry *providers.Registry, settings providers.Settings, coordinator *retry.Coordinator, m *metrics.Metrics, logger zerolog.Logger) *providers.Factory {
	return providers.NewFactory(registry, settings, coordinator, m, logger)
}

func ProvideProviderService(registry *providers.Registry, factory *providers.Factory, coordinator *retry.Coordinator, cfg *config.Config, logger zerolog.Logger) *providers.Service {
	return providers.NewService(registry, factory, coordinator, cfg.APIKeys(), logger)
}

func ProvideLoadManager(store *bolt.Store, logger zerolog.Logger) *routing.LoadManager {
	return routing.NewLoadManager(store, loadCacheTTL, logger)
}

// ProvideEngine builds the decision engine and restores tuned weights and
// threshold from the store.
func ProvideEngine(ctx context.Context, registry *providers.Registry, loads *routing.LoadManager, store *bolt.Store, m *metrics.Metrics, logger zerolog.Logger) (*routing.Engine, error) {
	engine, err := routing.NewEngine(registry, loads, store, m, logger)
	if err != nil {
		return nil, err
	}
	if err := engine.Restore(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

func ProvideUsers(store *bolt.Store, logger zerolog.Logger) *users.Service {
	return users.NewService(store, logger)
}

func ProvideChat(
	store *bolt.Store,
	userSvc *users.Service,
	registry *providers.Registry,
	factory *providers.Factory,
	engine *routing.Engine,
	providerSvc *providers.Service,
	cfg *config.Config,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *chat.Service {
	return chat.NewService(store, userSvc, registry, factory, engine, providerSvc, cfg.Chat, m, logger)
}

func ProvideAPIServer(
	cfg *config.Config,
	store *bolt.Store,
	userSvc *users.Service,
	chatSvc *chat.Service,
	providerSvc *providers.Service,
	engine *routing.Engine,
	loads *routing.LoadManager,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *api.Server {
	return api.NewServer(cfg, api.Dependencies{
		Store:     store,
		Users:     userSvc,
		Chat:      chatSvc,
		Providers: providerSvc,
		Engine:    engine,
		Loads:     loads,
		Metrics:   m,
	}, logger)
}

func ProvideMCPServer(chatSvc *chat.Service, providerSvc *providers.Service, engine *routing.Engine, version Version, logger zerolog.Logger) *mcpserver.Server {
	return mcpserver.New(mcpserver.Dependencies{
		Chat:      chatSvc,
		Providers: providerSvc,
		Analyzer:  engine.Analyzer(),
	}, string(version), logger)
}

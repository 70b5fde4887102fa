package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Azure/ai-gateway/pkg/app/di"
	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/logger"
	"github.com/Azure/ai-gateway/pkg/tracing"
)

const (
	healthCheckTimeout  = 15 * time.Second
	tracingFlushTimeout = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		flags commonFlags
		host  string
		port  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Address to bind")
	cmd.Flags().IntVar(&port, "port", 8000, "Port to listen on")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	setupLogging(cfg, false)
	log := logger.Component("main")

	log.Info().
		Str("version", getVersion()).
		Str("environment", cfg.Environment).
		Str("address", cfg.Address()).
		Msg("Starting AI Gateway")

	tp, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTracing(tp, log)

	c, cleanup, err := di.InitializeContainer(ctx, cfg, di.Version(Version), logger.Get())
	if err != nil {
		return err
	}
	defer cleanup()

	status := c.Providers.Status()
	log.Info().
		Int("providers", status.Counts.Providers).
		Int("models", status.Counts.Models).
		Msg("Provider registry loaded")

	for _, name := range c.Providers.MissingKeys() {
		log.Warn().Str("provider", name).Msg("No API key configured; requests to this provider will fail")
	}

	if checkProvidersAtStartup(cfg) {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		for name, healthy := range c.Providers.HealthCheck(checkCtx, "") {
			log.Debug().Str("provider", name).Bool("healthy", healthy).Msg("Provider health")
		}
		cancel()
	}

	if cfg.Chat.EnableCaching {
		go c.Chat.RunCacheJanitor(ctx, cfg.Chat.CacheTTL)
	}

	if err := c.API.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server failed")
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// checkProvidersAtStartup reports whether serve health-checks every provider
// before accepting traffic.
func checkProvidersAtStartup(cfg *config.Config) bool {
	return cfg.Debug || cfg.LogLevel == "debug"
}

func setupTracing(ctx context.Context, cfg *config.Config) (*tracing.Provider, error) {
	return tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    "ai-gateway",
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Tracing.SampleRate,
		ExportTimeout:  tracingFlushTimeout,
	})
}

func shutdownTracing(tp *tracing.Provider, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}
}

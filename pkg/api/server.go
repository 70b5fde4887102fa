// Package api exposes the gateway over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/chat"
	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/providers"
	"github.com/Azure/ai-gateway/pkg/users"
)

const (
	shutdownTimeout = 30 * time.Second
	corsMaxAge      = 12 * time.Hour
	limiterIdleTTL  = 10 * time.Minute
)

// Dependencies are the services behind the routes. Providers may be nil
// while the catalog is still loading; the provider routes then answer 503.
type Dependencies struct {
	Store     Store
	Users     *users.Service
	Chat      *chat.Service
	Providers *providers.Service
	Engine    DecisionEngine
	Loads     LoadTuner
	Metrics   *metrics.Metrics
}

// Server is the HTTP front of the gateway.
type Server struct {
	cfg       *config.Config
	deps      Dependencies
	router    chi.Router
	server    *http.Server
	limiter   *clientLimiter
	logger    zerolog.Logger
	startTime time.Time
	now       func() time.Time
}

func NewServer(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		limiter:   newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterIdleTTL),
		logger:    logger.With().Str("component", "http_server").Logger(),
		startTime: time.Now(),
		now:       time.Now,
	}
	s.setupRouter()
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.setupCORS())
	r.Use(s.tracingMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, errors.NotFound("http", "Not Found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendJSON(w, http.StatusMethodNotAllowed, errorBody{
			Success: false,
			Error:   errorDetail{Code: "METHOD_NOT_ALLOWED", Message: "Method Not Allowed"},
		})
	})

	r.Get("/", s.handleRoot)
	r.Get("/api", s.handleAPIInfo)
	r.Get("/database/status", s.handleDatabaseStatus)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route(s.cfg.APIPrefix, func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Get("/", s.handleHealth)
			r.Get("/db", s.handleHealthDB)
			r.Get("/tables", s.handleHealthTables)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/{userID}", s.handleGetUser)
			r.Patch("/{userID}", s.handleUpdateUser)
			r.Get("/{userID}/requests", s.handleUserRequests)
			r.Get("/{userID}/stats", s.handleUserStats)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.handleChat)
			r.Get("/providers", s.handleProviders)
			r.Post("/providers/reload", s.handleReloadProviders)
			r.Get("/health", s.handleChatHealth)
			r.Get("/available-models", s.handleAvailableModels)
			r.Get("/stats/{userID}", s.handleChatStats)
			r.Get("/test", s.handleChatTest)
			r.Get("/simple", s.handleSimpleChat)
			r.Post("/simple", s.handleSimpleChat)
			r.Post("/cache/purge", s.handlePurgeCache)
		})

		r.Route("/decision", func(r chi.Router) {
			r.Post("/recommend-model", s.handleRecommendModel)
			r.Get("/analyze-prompt", s.handleAnalyzePrompt)
			r.Get("/stats", s.handleDecisionStats)
			r.Get("/available-strategies", s.handleStrategies)
			r.Put("/weights", s.handleUpdateWeights)
			r.Put("/threshold", s.handleUpdateThreshold)
			r.Put("/providers/{provider}/max-rpm", s.handleUpdateMaxRPM)
			r.Post("/cache/clear", s.handleClearDecisionCache)
		})
	})

	s.router = r
}

func (s *Server) setupCORS() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           int(corsMaxAge.Seconds()),
	}

	if len(s.cfg.CORSOrigins) == 0 || (len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}

	return cors.Handler(opts)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.server.Addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.New(errors.CodeIoError, "http", "failed to start HTTP server", err).
				WithDetail("address", s.server.Addr)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

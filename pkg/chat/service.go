// Package chat runs the chat-completion pipeline: validation, model
// resolution, quota checks, response caching, the provider call, pricing and
// persistence.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/providers"
	"github.com/Azure/ai-gateway/pkg/routing"
)

const (
	// DefaultEndpoint is stored with requests that name no endpoint.
	DefaultEndpoint = "/api/v1/chat"

	inputTextLimit = 500
)

var tracer = otel.Tracer("github.com/Azure/ai-gateway/pkg/chat")

// Store is the persistence used by the pipeline.
type Store interface {
	SaveExchange(ctx context.Context, req gateway.RequestRecord, resp *gateway.ResponseRecord) error
	GetCache(ctx context.Context, hash string, now time.Time) (*gateway.CacheEntry, error)
	PutCache(ctx context.Context, entry gateway.CacheEntry) error
	PurgeExpiredCache(ctx context.Context, now time.Time) (int, error)
	CacheStats(ctx context.Context, now time.Time) (entries, live, hits int, err error)
	LogError(ctx context.Context, entry gateway.ErrorLog) error
	Ping(ctx context.Context) error
}

// Users resolves and meters the caller.
type Users interface {
	Authorize(ctx context.Context, id uuid.UUID) (*gateway.User, error)
	RecordUsage(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, id uuid.UUID) (gateway.UserStats, error)
}

// Catalog answers model and provider configuration lookups.
type Catalog interface {
	ModelConfig(name string) (gateway.Model, bool)
	ProviderConfig(name string) (gateway.Provider, bool)
}

// ProviderSource hands out the provider serving a model.
type ProviderSource interface {
	ForModel(model string) (providers.Provider, error)
}

// Router picks a model for "auto" requests.
type Router interface {
	SelectModel(ctx context.Context, messages []gateway.Message) *routing.Decision
	PerformanceStats(ctx context.Context) routing.PerformanceStats
}

// HealthChecker probes providers by name; an empty name checks all.
type HealthChecker interface {
	HealthCheck(ctx context.Context, name string) map[string]bool
}

type Service struct {
	store     Store
	users     Users
	catalog   Catalog
	providers ProviderSource
	router    Router
	health    HealthChecker
	validator *Validator
	settings  config.ChatSettings
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	store Store,
	users Users,
	catalog Catalog,
	source ProviderSource,
	router Router,
	health HealthChecker,
	settings config.ChatSettings,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:     store,
		users:     users,
		catalog:   catalog,
		providers: source,
		router:    router,
		health:    health,
		validator: NewValidator(settings),
		settings:  settings,
		metrics:   m,
		logger:    logger.With().Str("component", "chat").Logger(),
		now:       time.Now,
	}
}

// Process runs one chat request end to end.
func (s *Service) Process(ctx context.Context, req gateway.ChatRequest, meta gateway.RequestMeta) (*gateway.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "chat.process")
	defer span.End()

	resp, err := s.process(ctx, req, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("gateway.model", resp.ModelUsed),
		attribute.String("gateway.provider", resp.ProviderUsed),
		attribute.Bool("gateway.cached", resp.IsCached),
	)
	return resp, nil
}

func (s *Service) process(ctx context.Context, req gateway.ChatRequest, meta gateway.RequestMeta) (*gateway.ChatResponse, error) {
	start := s.now()

	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	modelName := req.EffectiveModel()
	if modelName == gateway.AutoModel {
		decision := s.router.SelectModel(ctx, req.Messages)
		s.logger.Info().Str("model", decision.ModelName).Bool("fallback", decision.IsDefault).
			Msg("Model chosen by decision engine")
		modelName = decision.ModelName
	}
	model, ok := s.catalog.ModelConfig(modelName)
	if !ok {
		return nil, errors.ModelNotFound(modelName)
	}

	var user *gateway.User
	if req.UserID != nil {
		u, err := s.users.Authorize(ctx, *req.UserID)
		if err != nil {
			return nil, err
		}
		user = u
	}

	if tokens, fits := WithinContext(req.Messages, model.Name, model.ContextWindow); !fits {
		return nil, errors.ContextLengthExceeded(model.Name, model.ContextWindow, tokens)
	}

	temperature := req.EffectiveTemperature()
	record := gateway.RequestRecord{
		ID:           uuid.New(),
		ModelID:      model.ID,
		ModelName:    model.Name,
		ProviderName: model.ProviderName,
		PromptHash:   PromptHash(req.Messages),
		InputText:    InputText(req.Messages),
		Temperature:  temperature,
		MaxTokens:    req.MaxTokens,
		Status:       gateway.StatusProcessing,
		CreatedAt:    start.UTC(),
		ClientIP:     meta.ClientIP,
		UserAgent:    meta.UserAgent,
		Endpoint:     meta.Endpoint,
	}
	if record.Endpoint == "" {
		record.Endpoint = DefaultEndpoint
	}
	if user != nil {
		id := user.ID
		record.UserID = &id
	}

	var cacheKey string
	if s.settings.EnableCaching {
		cacheKey = CacheKey(record.PromptHash, model.Name, temperature)
		if resp := s.fromCache(ctx, cacheKey, record, start); resp != nil {
			s.recordUsage(ctx, user)
			return resp, nil
		}
	}

	result, err := s.callProvider(ctx, model, req, temperature, record)
	if err != nil {
		return nil, err
	}

	cost := CalculateCost(result.InputTokens, result.OutputTokens, model)
	completed := s.now()
	record.InputTokens = result.InputTokens
	record.OutputTokens = result.OutputTokens
	record.TotalCost = cost.TotalCost
	record.Status = gateway.StatusCompleted
	completedAt := completed.UTC()
	record.CompletedAt = &completedAt
	record.ProcessingTimeMS = completed.Sub(start).Milliseconds()

	response := gateway.ResponseRecord{
		ID:           uuid.New(),
		RequestID:    record.ID,
		Content:      result.Content,
		FinishReason: result.FinishReason,
		ModelUsed:    result.ModelUsed,
		ProviderUsed: result.ProviderName,
		CreatedAt:    completedAt,
	}
	saved := s.persist(ctx, record, &response)
	s.recordUsage(ctx, user)
	s.metrics.RecordUsage(result.ProviderName, model.Name, result.InputTokens, result.OutputTokens, cost.TotalCost)

	if cacheKey != "" {
		s.storeCache(ctx, cacheKey, response, result, completed)
	}

	return &gateway.ChatResponse{
		ResponseID:       response.ID,
		RequestID:        record.ID,
		Content:          result.Content,
		ModelUsed:        result.ModelUsed,
		ProviderUsed:     result.ProviderName,
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		TotalCost:        cost.TotalCost,
		ProcessingTimeMS: s.now().Sub(start).Milliseconds(),
		Timestamp:        completedAt,
		FinishReason:     result.FinishReason,
		IsCached:         false,
		Saved:            saved,
	}, nil
}

func (s *Service) fromCache(ctx context.Context, key string, record gateway.RequestRecord, start time.Time) *gateway.ChatResponse {
	entry, err := s.store.GetCache(ctx, key, start)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache lookup failed")
		return nil
	}
	s.metrics.RecordCacheLookup(entry != nil)
	if entry == nil {
		return nil
	}

	now := s.now()
	completedAt := now.UTC()
	record.InputTokens = entry.InputTokens
	record.OutputTokens = entry.OutputTokens
	record.Status = gateway.StatusCached
	record.CompletedAt = &completedAt
	record.ProcessingTimeMS = now.Sub(start).Milliseconds()

	response := gateway.ResponseRecord{
		ID:           uuid.New(),
		RequestID:    record.ID,
		Content:      entry.Content,
		FinishReason: entry.FinishReason,
		ModelUsed:    entry.ModelUsed,
		ProviderUsed: entry.ProviderUsed,
		IsCached:     true,
		CreatedAt:    completedAt,
	}
	saved := s.persist(ctx, record, &response)

	s.logger.Debug().Str("model", entry.ModelUsed).Int("access_count", entry.AccessCount).Msg("Serving cached response")
	return &gateway.ChatResponse{
		ResponseID:       response.ID,
		RequestID:        record.ID,
		Content:          entry.Content,
		ModelUsed:        entry.ModelUsed,
		ProviderUsed:     entry.ProviderUsed,
		InputTokens:      entry.InputTokens,
		OutputTokens:     entry.OutputTokens,
		TotalCost:        0,
		ProcessingTimeMS: record.ProcessingTimeMS,
		Timestamp:        completedAt,
		FinishReason:     entry.FinishReason,
		IsCached:         true,
		Saved:            saved,
	}
}

func (s *Service) callProvider(ctx context.Context, model gateway.Model, req gateway.ChatRequest, temperature float64, record gateway.RequestRecord) (*providers.CompletionResponse, error) {
	provider, err := s.providers.ForModel(model.Name)
	if err != nil {
		s.logger.Error().Err(err).Str("model", model.Name).Msg("No provider available")
		name := model.ProviderName
		if name == "" {
			name = "unknown"
		}
		return nil, errors.ProviderUnavailable(name, model.Name, "Provider not configured or inactive")
	}

	timeout := s.settings.ProviderTimeout
	if cfg, ok := s.catalog.ProviderConfig(provider.Name()); ok && cfg.TimeoutSeconds > 0 {
		timeout = cfg.Timeout()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := provider.ChatCompletion(callCtx, providers.CompletionRequest{
		Messages:    req.Messages,
		Model:       model.Name,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err == nil {
		return result, nil
	}

	var (
		gwErr     *errors.Error
		errorType = "provider_error"
	)
	switch {
	case errors.CodeOf(err) == errors.CodeRateLimitExceeded:
		gwErr, _ = errors.As(err)
		errorType = "rate_limit"
	case callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		s.logger.Error().Str("provider", provider.Name()).Dur("timeout", timeout).Msg("Provider timeout")
		gwErr = errors.ProviderUnavailable(provider.Name(), model.Name,
			fmt.Sprintf("Timeout after %g seconds", timeout.Seconds()))
		errorType = "timeout"
	default:
		s.logger.Error().Err(err).Str("provider", provider.Name()).Msg("Provider error")
		gwErr = errors.ProviderUnavailable(provider.Name(), model.Name, err.Error())
	}

	failed := record
	failed.Status = gateway.StatusFailed
	failedAt := s.now().UTC()
	failed.CompletedAt = &failedAt
	failed.ProcessingTimeMS = failedAt.Sub(record.CreatedAt).Milliseconds()
	s.persist(ctx, failed, nil)
	s.logFailure(ctx, record.ID, provider.Name(), model.Name, errorType, gwErr, providers.Attempts(err))
	return nil, gwErr
}

// persist writes the exchange under the database timeout. Failures are
// logged and do not fail the request; the result reports whether it was saved.
func (s *Service) persist(ctx context.Context, record gateway.RequestRecord, response *gateway.ResponseRecord) bool {
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.DatabaseTimeout)
	defer cancel()
	if err := s.store.SaveExchange(dbCtx, record, response); err != nil {
		s.logger.Error().Err(err).Str("request_id", record.ID.String()).Msg("Failed to save request to database")
		return false
	}
	return true
}

func (s *Service) recordUsage(ctx context.Context, user *gateway.User) {
	if user == nil {
		return
	}
	if err := s.users.RecordUsage(context.WithoutCancel(ctx), user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record usage")
	}
}

func (s *Service) storeCache(ctx context.Context, key string, response gateway.ResponseRecord, result *providers.CompletionResponse, now time.Time) {
	entry := gateway.CacheEntry{
		Hash:         key,
		ResponseID:   response.ID,
		Content:      result.Content,
		ModelUsed:    result.ModelUsed,
		ProviderUsed: result.ProviderName,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		FinishReason: result.FinishReason,
		CreatedAt:    now.UTC(),
		ExpiresAt:    now.Add(s.settings.CacheTTL).UTC(),
		LastAccessed: now.UTC(),
	}
	if err := s.store.PutCache(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store cache entry")
	}
}

func (s *Service) logFailure(ctx context.Context, requestID uuid.UUID, provider, model, errorType string, gwErr *errors.Error, attempts int) {
	id := requestID
	entry := gateway.ErrorLog{
		RequestID:    &id,
		ErrorType:    errorType,
		ErrorCode:    string(gwErr.Code),
		Message:      gwErr.Message,
		HTTPStatus:   gwErr.Status(),
		Provider:     provider,
		Model:        model,
		RetryAttempt: attempts,
	}
	if err := s.store.LogError(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write error log")
	}
}

// InputText renders messages for storage, one "role: content" line each,
// truncating long contents.
func InputText(messages []gateway.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if utf8.RuneCountInString(content) > inputTextLimit {
			content = string([]rune(content)[:inputTextLimit]) + "..."
		}
		lines = append(lines, m.Role+": "+content)
	}
	return strings.Join(lines, "\n")
}

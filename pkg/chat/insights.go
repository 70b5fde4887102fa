package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/routing"
)

// Recommendation is the decision engine's answer for a prompt.
type Recommendation struct {
	RecommendedModel string                    `json:"recommended_model"`
	Provider         string                    `json:"provider"`
	Score            float64                   `json:"score"`
	EstimatedCost    float64                   `json:"estimated_cost"`
	IsDefault        bool                      `json:"is_default"`
	Reasoning        []string                  `json:"reasoning"`
	Temperature      float64                   `json:"temperature"`
	MaxTokens        *int                      `json:"max_tokens,omitempty"`
	Analysis         *routing.Analysis         `json:"analysis,omitempty"`
	Alternatives     []routing.RankedCandidate `json:"alternatives,omitempty"`
}

// Recommend asks the decision engine which model fits messages without
// calling any provider. Detailed output includes the prompt analysis and the
// runner-up candidates.
func (s *Service) Recommend(ctx context.Context, messages []gateway.Message, temperature float64, maxTokens *int, detailed bool) (*Recommendation, error) {
	req := gateway.ChatRequest{Messages: messages, Temperature: &temperature, MaxTokens: maxTokens}
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	d := s.router.SelectModel(ctx, messages)
	rec := &Recommendation{
		RecommendedModel: d.ModelName,
		Provider:         d.ProviderName,
		Score:            d.Score,
		EstimatedCost:    d.EstimatedCost,
		IsDefault:        d.IsDefault,
		Reasoning:        d.Reasoning,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
	}
	if detailed {
		rec.Analysis = d.Analysis
		rec.Alternatives = []routing.RankedCandidate{}
		for _, c := range d.Candidates {
			if c.Model != d.ModelName {
				rec.Alternatives = append(rec.Alternatives, c)
			}
		}
	}
	return rec, nil
}

// UserStatistics returns spend and recent activity for a user.
func (s *Service) UserStatistics(ctx context.Context, userID uuid.UUID) (gateway.UserStats, error) {
	return s.users.Stats(ctx, userID)
}

// DecisionStats reports decision engine counters, tuning and provider load.
func (s *Service) DecisionStats(ctx context.Context) routing.PerformanceStats {
	return s.router.PerformanceStats(ctx)
}

// CacheStatus describes the response cache.
type CacheStatus struct {
	Enabled    bool    `json:"enabled"`
	TTLSeconds float64 `json:"ttl_seconds"`
	Entries    int     `json:"entries"`
	Live       int     `json:"live"`
	Hits       int     `json:"hits"`
}

func (s *Service) CacheStatus(ctx context.Context) (CacheStatus, error) {
	entries, live, hits, err := s.store.CacheStats(ctx, s.now())
	if err != nil {
		return CacheStatus{}, errors.New(errors.CodeIoError, "chat", "failed to read cache statistics", err)
	}
	return CacheStatus{
		Enabled:    s.settings.EnableCaching,
		TTLSeconds: s.settings.CacheTTL.Seconds(),
		Entries:    entries,
		Live:       live,
		Hits:       hits,
	}, nil
}

// ProviderHealthSummary counts healthy providers.
type ProviderHealthSummary struct {
	Total         int             `json:"total"`
	Healthy       int             `json:"healthy"`
	Unhealthy     int             `json:"unhealthy"`
	UnhealthyList []string        `json:"unhealthy_list"`
	Details       map[string]bool `json:"details"`
}

// Health is the chat subsystem health report.
type Health struct {
	Status      string                `json:"status"`
	ChatService string                `json:"chat_service"`
	Database    string                `json:"database"`
	Providers   ProviderHealthSummary `json:"providers"`
	Cache       *CacheStatus          `json:"cache_status,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Health probes every provider and the store. The report is degraded when
// any provider is unhealthy or the store does not answer.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "healthy", ChatService: "operational", Database: "connected"}

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Store ping failed")
		h.Database = "disconnected"
		h.Status = "degraded"
	}

	results := s.health.HealthCheck(ctx, "")
	summary := ProviderHealthSummary{Total: len(results), UnhealthyList: []string{}, Details: results}
	for name, ok := range results {
		if ok {
			summary.Healthy++
			continue
		}
		summary.Unhealthy++
		summary.UnhealthyList = append(summary.UnhealthyList, name)
	}
	sort.Strings(summary.UnhealthyList)
	h.Providers = summary
	if summary.Unhealthy > 0 {
		h.Status = "degraded"
	}

	if cs, err := s.CacheStatus(ctx); err == nil {
		h.Cache = &cs
	}
	return h
}

// RunCacheJanitor purges expired cache entries every interval until ctx is
// done.
func (s *Service) RunCacheJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeCache(ctx)
		}
	}
}

// PurgeCache removes expired entries and returns how many were dropped.
func (s *Service) PurgeCache(ctx context.Context) int {
	n, err := s.store.PurgeExpiredCache(ctx, s.now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache purge failed")
		return 0
	}
	if n > 0 {
		s.logger.Debug().Int("removed", n).Msg("Purged expired cache entries")
	}
	return n
}

package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/metrics"
)

// Setting keys used to persist tuning across restarts.
const (
	SettingWeights   = "decision.weights"
	SettingThreshold = "decision.threshold"
)

var tracer = otel.Tracer("github.com/Azure/ai-gateway/pkg/routing")

// SettingsStore persists engine tuning.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string, v interface{}) (bool, error)
	PutSetting(ctx context.Context, key string, v interface{}) error
}

// Stats counts decisions since startup.
type Stats struct {
	TotalDecisions      int        `json:"total_decisions"`
	SuccessfulDecisions int        `json:"successful_decisions"`
	FallbackDecisions   int        `json:"fallback_decisions"`
	AvgProcessingTimeMS float64    `json:"avg_processing_time_ms"`
	LastDecisionTime    *time.Time `json:"last_decision_time"`
}

// PerformanceStats is the engine report served by the API.
type PerformanceStats struct {
	Stats         Stats                   `json:"stats"`
	Weights       Weights                 `json:"weights"`
	Threshold     float64                 `json:"threshold"`
	ProviderLoads map[string]ProviderLoad `json:"provider_loads"`
	SuccessRate   float64                 `json:"success_rate"`
	FallbackRate  float64                 `json:"fallback_rate"`
}

// Engine coordinates analysis, filtering, scoring and selection.
type Engine struct {
	analyzer *Analyzer
	filter   *Filter
	loads    *LoadManager
	selector *Selector
	catalog  ModelCatalog
	settings SettingsStore
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	scorerMu sync.RWMutex
	scorer   *Scorer

	statsMu sync.Mutex
	stats   Stats
	now     func() time.Time
}

func NewEngine(catalog ModelCatalog, loads *LoadManager, settings SettingsStore, m *metrics.Metrics, logger zerolog.Logger) (*Engine, error) {
	logger = logger.With().Str("component", "decision_engine").Logger()
	scorer, err := NewScorer(DefaultWeights())
	if err != nil {
		return nil, err
	}
	selector, err := NewSelector(DefaultThreshold, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{
		analyzer: NewAnalyzer(),
		filter:   NewFilter(DefaultRequirements(), logger),
		loads:    loads,
		selector: selector,
		catalog:  catalog,
		settings: settings,
		metrics:  m,
		logger:   logger,
		scorer:   scorer,
		now:      time.Now,
	}, nil
}

// Restore applies persisted weights and threshold. Invalid stored values
// are logged and ignored.
func (e *Engine) Restore(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	var w Weights
	found, err := e.settings.GetSetting(ctx, SettingWeights, &w)
	if err != nil {
		return fmt.Errorf("read weights: %w", err)
	}
	if found {
		if s, err := NewScorer(w); err != nil {
			e.logger.Warn().Err(err).Msg("Ignoring stored decision weights")
		} else {
			e.setScorer(s)
		}
	}

	var t float64
	found, err = e.settings.GetSetting(ctx, SettingThreshold, &t)
	if err != nil {
		return fmt.Errorf("read threshold: %w", err)
	}
	if found {
		if err := e.selector.SetThreshold(t); err != nil {
			e.logger.Warn().Err(err).Msg("Ignoring stored decision threshold")
		}
	}
	return nil
}

func (e *Engine) Analyzer() *Analyzer { return e.analyzer }

// SelectModel always returns a decision; failures degrade to fallbacks.
func (e *Engine) SelectModel(ctx context.Context, messages []gateway.Message) (d *Decision) {
	ctx, span := tracer.Start(ctx, "routing.select_model")
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("Error in decision engine")
			d = HardcodedFallback()
			e.record(false, true, start)
		}
		span.SetAttributes(
			attribute.String("gateway.model", d.ModelName),
			attribute.Bool("gateway.fallback", d.IsDefault),
		)
		span.End()
	}()

	analysis := e.analyzer.Analyze(messages)
	models := e.catalog.Models()

	candidates := e.filter.Apply(models, analysis, e.catalog)
	if len(candidates) == 0 {
		e.logger.Warn().Msg("No suitable models found after filtering")
		return e.fallback(models, analysis, start)
	}

	loads := e.loads.Loads(ctx)
	scores := e.currentScorer().ScoreAll(candidates, analysis, loads)

	decision, ok := e.selector.Best(scores)
	if !ok {
		e.logger.Warn().Msg("No model selected by selector")
		return e.fallback(models, analysis, start)
	}
	decision.Analysis = &analysis
	e.record(true, false, start)

	e.logger.Info().Str("model", decision.ModelName).Str("provider", decision.ProviderName).
		Float64("score", decision.Score).Msg("Selected model")
	e.logger.Debug().Str("complexity", string(analysis.Complexity)).Int("tokens", analysis.TokenEstimate).
		Str("type", analysis.PromptType).Msg("Prompt analysis")
	return decision
}

func (e *Engine) fallback(models []gateway.Model, analysis Analysis, start time.Time) *Decision {
	d := e.selector.Fallback(models)
	d.Analysis = &analysis
	e.record(false, true, start)
	e.logger.Info().Str("model", d.ModelName).Msg("Using fallback model")
	return d
}

func (e *Engine) record(success, fallback bool, start time.Time) {
	now := e.now()
	elapsed := now.Sub(start)
	ms := float64(elapsed) / float64(time.Millisecond)

	e.statsMu.Lock()
	e.stats.TotalDecisions++
	if success {
		e.stats.SuccessfulDecisions++
	} else if fallback {
		e.stats.FallbackDecisions++
	}
	n := float64(e.stats.TotalDecisions)
	e.stats.AvgProcessingTimeMS = (e.stats.AvgProcessingTimeMS*(n-1) + ms) / n
	e.stats.LastDecisionTime = &now
	e.statsMu.Unlock()

	outcome := "selected"
	if !success {
		outcome = "fallback"
	}
	e.metrics.RecordDecision(outcome, elapsed)
}

func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *Engine) PerformanceStats(ctx context.Context) PerformanceStats {
	stats := e.Stats()
	loads, err := e.loads.DetailedLoads(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Error fetching detailed loads")
		loads = map[string]ProviderLoad{}
	}
	total := stats.TotalDecisions
	if total < 1 {
		total = 1
	}
	return PerformanceStats{
		Stats:         stats,
		Weights:       e.currentScorer().Weights(),
		Threshold:     e.selector.Threshold(),
		ProviderLoads: loads,
		SuccessRate:   float64(stats.SuccessfulDecisions) / float64(total) * 100,
		FallbackRate:  float64(stats.FallbackDecisions) / float64(total) * 100,
	}
}

// UpdateWeights validates, applies and persists new weights.
func (e *Engine) UpdateWeights(ctx context.Context, w Weights) error {
	s, err := NewScorer(w)
	if err != nil {
		return err
	}
	e.setScorer(s)
	e.logger.Info().Interface("weights", w).Msg("Updated decision weights")
	if e.settings != nil {
		if err := e.settings.PutSetting(ctx, SettingWeights, w); err != nil {
			return fmt.Errorf("persist weights: %w", err)
		}
	}
	return nil
}

// UpdateThreshold validates, applies and persists a new minimum score.
func (e *Engine) UpdateThreshold(ctx context.Context, t float64) error {
	if err := e.selector.SetThreshold(t); err != nil {
		return err
	}
	e.logger.Info().Float64("threshold", t).Msg("Updated minimum score threshold")
	if e.settings != nil {
		if err := e.settings.PutSetting(ctx, SettingThreshold, t); err != nil {
			return fmt.Errorf("persist threshold: %w", err)
		}
	}
	return nil
}

func (e *Engine) Weights() Weights { return e.currentScorer().Weights() }

func (e *Engine) Threshold() float64 { return e.selector.Threshold() }

func (e *Engine) ClearCache() {
	e.loads.ClearCache()
	e.logger.Info().Msg("Decision engine cache cleared")
}

func (e *Engine) currentScorer() *Scorer {
	e.scorerMu.RLock()
	defer e.scorerMu.RUnlock()
	return e.scorer
}

func (e *Engine) setScorer(s *Scorer) {
	e.scorerMu.Lock()
	e.scorer = s
	e.scorerMu.Unlock()
}

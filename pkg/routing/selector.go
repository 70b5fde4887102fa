package routing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const (
	DefaultThreshold = 0.3
	maxCandidates    = 10

	fallbackProvider = "OpenAI"
)

// Selector picks the best scored candidate above a threshold.
type Selector struct {
	mu        sync.RWMutex
	threshold float64
	logger    zerolog.Logger
}

func NewSelector(threshold float64, logger zerolog.Logger) (*Selector, error) {
	s := &Selector{logger: logger}
	if err := s.SetThreshold(threshold); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Selector) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

func (s *Selector) SetThreshold(t float64) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("threshold must be between 0 and 1")
	}
	s.mu.Lock()
	s.threshold = t
	s.mu.Unlock()
	return nil
}

// Best returns the highest scoring candidate, or false when none reaches
// the threshold.
func (s *Selector) Best(scores []Score) (*Decision, bool) {
	threshold := s.Threshold()
	var kept []Score
	for _, sc := range scores {
		if sc.FinalScore >= threshold {
			kept = append(kept, sc)
		}
	}
	if len(kept) == 0 {
		if len(scores) > 0 {
			s.logger.Warn().Float64("threshold", threshold).Msg("No models above threshold")
		}
		return nil, false
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].FinalScore > kept[j].FinalScore })

	if s.logger.GetLevel() <= zerolog.DebugLevel {
		for i, sc := range kept {
			if i == 5 {
				break
			}
			s.logger.Debug().Int("rank", i+1).Str("model", sc.ModelName).Str("provider", sc.ProviderName).
				Float64("score", sc.FinalScore).Float64("cost", sc.EstimatedCost).Msg("Model candidate")
		}
	}

	best := kept[0]
	n := len(kept)
	if n > maxCandidates {
		n = maxCandidates
	}
	ranked := make([]RankedCandidate, 0, n)
	for i, sc := range kept[:n] {
		ranked = append(ranked, RankedCandidate{
			Rank:             i + 1,
			Model:            sc.ModelName,
			Provider:         sc.ProviderName,
			Score:            round(sc.FinalScore, 3),
			Cost:             round(sc.EstimatedCost, 6),
			ReasoningSummary: summarize(sc.Reasoning),
		})
	}

	return &Decision{
		ModelName:     best.ModelName,
		ProviderName:  best.ProviderName,
		Score:         best.FinalScore,
		EstimatedCost: best.EstimatedCost,
		Reasoning:     best.Reasoning,
		Candidates:    ranked,
	}, true
}

// Fallback picks the model with the largest context window, or the
// built-in default when there are no models.
func (s *Selector) Fallback(models []gateway.Model) *Decision {
	var pick *gateway.Model
	for i := range models {
		if pick == nil || models[i].ContextWindow > pick.ContextWindow {
			pick = &models[i]
		}
	}
	if pick == nil || pick.ContextWindow <= 0 {
		return &Decision{
			ModelName:    gateway.DefaultModel,
			ProviderName: fallbackProvider,
			Reasoning:    []string{"Using default fallback model"},
			IsDefault:    true,
		}
	}
	provider := pick.ProviderName
	if provider == "" {
		provider = fallbackProvider
	}
	return &Decision{
		ModelName:    pick.Name,
		ProviderName: provider,
		Reasoning:    []string{"Selected as fallback (largest context window)"},
		IsDefault:    true,
	}
}

// HardcodedFallback is returned when selection itself failed.
func HardcodedFallback() *Decision {
	return &Decision{
		ModelName:    gateway.DefaultModel,
		ProviderName: fallbackProvider,
		Reasoning:    []string{"Hardcoded fallback due to system error"},
		IsDefault:    true,
	}
}

// summarize keeps the marked lines among the first three reasoning lines.
func summarize(lines []string) string {
	if len(lines) > 3 {
		lines = lines[:3]
	}
	var items []string
	for _, l := range lines {
		if strings.HasPrefix(l, "✓") || strings.HasPrefix(l, "✗") || strings.HasPrefix(l, "~") {
			items = append(items, l)
		}
	}
	return strings.Join(items, "; ")
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

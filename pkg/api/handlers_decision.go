package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/routing"
)

const previewLength = 200

func (s *Server) handleRecommendModel(w http.ResponseWriter, r *http.Request) {
	temperature := gateway.DefaultTemperature
	t, err := queryFloat(r, "temperature")
	if err != nil {
		s.sendError(w, err)
		return
	}
	if t != nil {
		if *t < 0 || *t > 2 {
			s.sendError(w, errors.Validation("temperature", "temperature must be between 0 and 2"))
			return
		}
		temperature = *t
	}

	var maxTokens *int
	if raw := r.URL.Query().Get("max_tokens"); raw != "" {
		n, err := queryInt(r, "max_tokens", 0)
		if err != nil {
			s.sendError(w, err)
			return
		}
		if n <= 0 {
			s.sendError(w, errors.Validation("max_tokens", "max_tokens must be positive"))
			return
		}
		maxTokens = &n
	}

	detailed, err := queryBool(r, "detailed")
	if err != nil {
		s.sendError(w, err)
		return
	}

	var messages []gateway.Message
	if err := decodeBody(r, &messages); err != nil {
		s.sendError(w, err)
		return
	}

	rec, err := s.deps.Chat.Recommend(r.Context(), messages, temperature, maxTokens, detailed != nil && *detailed)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendSuccess(w, "Model recommendation generated", rec)
}

type complexityView struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type promptAnalysisView struct {
	TokenEstimate           int            `json:"token_estimate"`
	Complexity              complexityView `json:"complexity"`
	PromptType              string         `json:"prompt_type"`
	HasSpecificInstructions bool           `json:"has_specific_instructions"`
	TextLength              int            `json:"text_length"`
	Preview                 string         `json:"preview"`
}

func (s *Server) handleAnalyzePrompt(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if strings.TrimSpace(prompt) == "" {
		s.sendError(w, errors.Validation("prompt", "prompt is required"))
		return
	}

	a := s.deps.Engine.Analyzer().Analyze([]gateway.Message{{Role: gateway.RoleUser, Content: prompt}})
	s.sendSuccess(w, "Prompt analysis completed", promptAnalysisView{
		TokenEstimate:           a.TokenEstimate,
		Complexity:              complexityView{Value: string(a.Complexity), Label: a.Complexity.Label()},
		PromptType:              a.PromptType,
		HasSpecificInstructions: a.HasSpecificInstructions,
		TextLength:              a.TextLength,
		Preview:                 routing.Truncate(prompt, previewLength),
	})
}

func (s *Server) handleDecisionStats(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "Decision Engine statistics", s.deps.Engine.PerformanceStats(r.Context()))
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	s.sendSuccess(w, "Available selection strategies", map[string]interface{}{
		"strategies": routing.Strategies(),
	})
}

func (s *Server) handleUpdateWeights(w http.ResponseWriter, r *http.Request) {
	var weights routing.Weights
	if err := decodeBody(r, &weights); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.deps.Engine.UpdateWeights(r.Context(), weights); err != nil {
		s.sendError(w, tuningError("weights", err))
		return
	}
	s.sendSuccess(w, "Decision weights updated", s.deps.Engine.Weights())
}

type thresholdInput struct {
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var in thresholdInput
	if err := decodeBody(r, &in); err != nil {
		s.sendError(w, err)
		return
	}
	if in.Threshold == nil {
		s.sendError(w, errors.Validation("threshold", "threshold is required"))
		return
	}
	if err := s.deps.Engine.UpdateThreshold(r.Context(), *in.Threshold); err != nil {
		s.sendError(w, tuningError("threshold", err))
		return
	}
	s.sendSuccess(w, "Minimum score threshold updated", map[string]float64{"threshold": s.deps.Engine.Threshold()})
}

type maxRPMInput struct {
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
}

// handleUpdateMaxRPM changes a provider budget in the store, the load
// tracker and the live rate limiter.
func (s *Server) handleUpdateMaxRPM(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	var in maxRPMInput
	if err := decodeBody(r, &in); err != nil {
		s.sendError(w, err)
		return
	}
	if in.MaxRequestsPerMinute <= 0 {
		s.sendError(w, errors.Validation("max_requests_per_minute", "max_requests_per_minute must be positive"))
		return
	}
	if err := s.deps.Loads.UpdateProviderMaxRequests(r.Context(), provider, in.MaxRequestsPerMinute); err != nil {
		s.sendError(w, err)
		return
	}
	if s.deps.Providers != nil {
		s.deps.Providers.UpdateMaxRPM(provider, in.MaxRequestsPerMinute)
	}
	s.sendSuccess(w, "Provider request budget updated", map[string]interface{}{
		"provider":                provider,
		"max_requests_per_minute": in.MaxRequestsPerMinute,
	})
}

func (s *Server) handleClearDecisionCache(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.ClearCache()
	s.sendSuccess(w, "Decision engine cache cleared", nil)
}

// tuningError turns a rejected weight or threshold into a 400. Storage
// failures keep their own code.
func tuningError(field string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Validation(field, err.Error())
}

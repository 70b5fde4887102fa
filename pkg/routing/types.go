// Package routing picks a model for a prompt. It analyzes the prompt, filters
// the catalog, scores candidates on cost, complexity, context, priority and
// provider load, and falls back to a safe default when nothing qualifies.
package routing

import (
	"time"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

// Complexity buckets prompts by estimated token count.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityStandard Complexity = "standard"
	ComplexityComplex  Complexity = "complex"
	ComplexityAdvanced Complexity = "advanced"
)

// Label is the human readable name shown by the API.
func (c Complexity) Label() string {
	switch c {
	case ComplexitySimple:
		return "Simple"
	case ComplexityStandard:
		return "Standard"
	case ComplexityComplex:
		return "Complex"
	case ComplexityAdvanced:
		return "Very complex"
	default:
		return "Unknown"
	}
}

// Analysis describes a prompt.
type Analysis struct {
	TokenEstimate           int        `json:"token_estimate"`
	Complexity              Complexity `json:"complexity"`
	PromptType              string     `json:"prompt_type"`
	HasSpecificInstructions bool       `json:"has_specific_instructions"`
	TextLength              int        `json:"text_length"`
	MessageCount            int        `json:"message_count"`
	Preview                 string     `json:"preview"`
}

// Candidate is a model that passed filtering.
type Candidate struct {
	Model    gateway.Model
	Provider gateway.Provider
}

// Score is the evaluation of one candidate.
type Score struct {
	ModelName       string   `json:"model_name"`
	ProviderName    string   `json:"provider_name"`
	CostScore       float64  `json:"cost_score"`
	ComplexityScore float64  `json:"complexity_score"`
	ContextScore    float64  `json:"context_score"`
	PriorityScore   float64  `json:"priority_score"`
	LoadScore       float64  `json:"load_score"`
	FinalScore      float64  `json:"final_score"`
	EstimatedCost   float64  `json:"estimated_cost"`
	Reasoning       []string `json:"reasoning"`
}

// RankedCandidate is the summary of a scored candidate in a decision.
type RankedCandidate struct {
	Rank             int     `json:"rank"`
	Model            string  `json:"model"`
	Provider         string  `json:"provider"`
	Score            float64 `json:"score"`
	Cost             float64 `json:"cost"`
	ReasoningSummary string  `json:"reasoning_summary"`
}

// Decision is the outcome of model selection.
type Decision struct {
	ModelName     string            `json:"model_name"`
	ProviderName  string            `json:"provider_name"`
	Score         float64           `json:"score"`
	EstimatedCost float64           `json:"estimated_cost"`
	Reasoning     []string          `json:"reasoning"`
	IsDefault     bool              `json:"is_default"`
	Candidates    []RankedCandidate `json:"all_candidates,omitempty"`
	Analysis      *Analysis         `json:"-"`
}

// ProviderLoad is the detailed load view of one provider.
type ProviderLoad struct {
	ProviderName         string    `json:"provider_name"`
	LoadPercentage       float64   `json:"load_percentage"`
	RequestsPerMinute    float64   `json:"requests_per_minute"`
	MaxRequestsPerMinute int       `json:"max_requests_per_minute"`
	AvgProcessingTimeMS  float64   `json:"avg_processing_time_ms"`
	LastUpdated          time.Time `json:"last_updated"`
}

// Strategy is a selectable routing mode.
type Strategy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Strategies lists the routing modes the API advertises.
func Strategies() []Strategy {
	return []Strategy{
		{ID: "auto", Name: "Automatic selection", Description: "Intelligent model selection based on cost, complexity, and load", Enabled: true},
		{ID: "cost_optimized", Name: "Cost optimization", Description: "Select the cheapest model that can handle the prompt", Enabled: true},
		{ID: "performance", Name: "Maximum performance", Description: "Select the most powerful model regardless of cost", Enabled: true},
		{ID: "balanced", Name: "Balanced approach", Description: "Balance between cost and performance", Enabled: true},
	}
}

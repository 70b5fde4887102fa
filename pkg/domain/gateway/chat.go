package gateway

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AutoModel asks the decision engine to pick the model.
const AutoModel = "auto"

// DefaultModel is used when a request names no model.
const DefaultModel = "gpt-4o"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Messages    []Message  `json:"messages"`
	Model       string     `json:"model"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   *int       `json:"max_tokens,omitempty"`
	Stream      bool       `json:"stream"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
}

// DefaultTemperature is applied when a request omits temperature.
const DefaultTemperature = 0.7

// EffectiveTemperature returns the requested temperature or the default.
func (r *ChatRequest) EffectiveTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// EffectiveModel returns the requested model or the default.
func (r *ChatRequest) EffectiveModel() string {
	if r.Model == "" {
		return DefaultModel
	}
	return r.Model
}

// ChatResponse is returned for a processed chat request.
type ChatResponse struct {
	ResponseID       uuid.UUID `json:"response_id"`
	RequestID        uuid.UUID `json:"request_id"`
	Content          string    `json:"content"`
	ModelUsed        string    `json:"model_used"`
	ProviderUsed     string    `json:"provider_used"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	TotalCost        float64   `json:"total_cost"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
	FinishReason     string    `json:"finish_reason,omitempty"`
	IsCached         bool      `json:"is_cached"`

	// Saved reports whether the exchange reached the database.
	Saved bool `json:"-"`
}

// RequestMeta carries transport details stored alongside a request.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Endpoint  string
}

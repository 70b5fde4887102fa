// Package gateway holds the persisted entities and wire types of the AI gateway.
package gateway

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Auth types accepted for provider credentials.
const (
	AuthBearer  = "Bearer"
	AuthXAPIKey = "X-API-Key"
	AuthAPIKey  = "APIKey"
	AuthCustom  = "Custom"
)

// Model types.
const (
	ModelText       = "text"
	ModelVision     = "vision"
	ModelAudio      = "audio"
	ModelMultimodal = "multimodal"
	ModelCode       = "code"
)

// Request statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCached     = "cached"
)

// User is a gateway consumer with request quotas.
type User struct {
	ID                  uuid.UUID `json:"user_id"`
	Username            string    `json:"username"`
	Email               string    `json:"email"`
	APIKeyHash          string    `json:"-"`
	DailyLimit          int       `json:"daily_limit"`
	MonthlyLimit        int       `json:"monthly_limit"`
	CurrentDailyUsage   int       `json:"current_daily_usage"`
	CurrentMonthlyUsage int       `json:"current_monthly_usage"`
	UsageDay            string    `json:"-"`
	UsageMonth          string    `json:"-"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RollUsagePeriod zeroes counters that belong to an earlier day or month.
func (u *User) RollUsagePeriod(at time.Time) {
	day := at.UTC().Format("2006-01-02")
	month := at.UTC().Format("2006-01")
	if u.UsageDay != day {
		u.UsageDay = day
		u.CurrentDailyUsage = 0
	}
	if u.UsageMonth != month {
		u.UsageMonth = month
		u.CurrentMonthlyUsage = 0
	}
}

// OverQuota reports whether the user exhausted the daily or monthly limit.
func (u *User) OverQuota() bool {
	return u.CurrentDailyUsage >= u.DailyLimit || u.CurrentMonthlyUsage >= u.MonthlyLimit
}

// Provider is an upstream LLM vendor.
type Provider struct {
	ID                   uuid.UUID `json:"provider_id" yaml:"-"`
	Name                 string    `json:"name" yaml:"name"`
	BaseURL              string    `json:"base_url" yaml:"base_url"`
	AuthType             string    `json:"auth_type" yaml:"auth_type"`
	MaxRequestsPerMinute int       `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	RetryCount           int       `json:"retry_count" yaml:"retry_count"`
	TimeoutSeconds       int       `json:"timeout_seconds" yaml:"timeout_seconds"`
	IsActive             bool      `json:"is_active" yaml:"is_active"`
	CreatedAt            time.Time `json:"created_at" yaml:"-"`
}

// ApplyDefaults fills zero values with the catalog defaults.
func (p *Provider) ApplyDefaults() {
	if p.AuthType == "" {
		p.AuthType = AuthBearer
	}
	if p.MaxRequestsPerMinute <= 0 {
		p.MaxRequestsPerMinute = 60
	}
	if p.RetryCount <= 0 {
		p.RetryCount = 3
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 30
	}
}

func (p *Provider) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	switch p.AuthType {
	case AuthBearer, AuthXAPIKey, AuthAPIKey, AuthCustom:
	default:
		return fmt.Errorf("provider %s: unsupported auth type %q", p.Name, p.AuthType)
	}
	return nil
}

// Timeout returns the configured per-call timeout.
func (p *Provider) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Model is a model offered by a provider.
type Model struct {
	ID                      uuid.UUID `json:"model_id" yaml:"-"`
	ProviderID              uuid.UUID `json:"provider_id" yaml:"-"`
	ProviderName            string    `json:"provider" yaml:"provider"`
	Name                    string    `json:"name" yaml:"name"`
	Type                    string    `json:"type" yaml:"type"`
	ContextWindow           int       `json:"context_window" yaml:"context_window"`
	MaxOutputTokens         int       `json:"max_output_tokens,omitempty" yaml:"max_output_tokens"`
	SupportsJSONMode        bool      `json:"supports_json_mode" yaml:"supports_json_mode"`
	SupportsFunctionCalling bool      `json:"supports_function_calling" yaml:"supports_function_calling"`
	InputPricePer1K         float64   `json:"input_price_per_1k" yaml:"input_price_per_1k"`
	OutputPricePer1K        float64   `json:"output_price_per_1k" yaml:"output_price_per_1k"`
	IsAvailable             bool      `json:"is_available" yaml:"is_available"`
	Priority                int       `json:"priority" yaml:"priority"`
	CreatedAt               time.Time `json:"created_at" yaml:"-"`
}

func (m *Model) ApplyDefaults() {
	if m.Type == "" {
		m.Type = ModelText
	}
	if m.ContextWindow <= 0 {
		m.ContextWindow = 8192
	}
	if m.Priority == 0 {
		m.Priority = 5
	}
}

func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	switch m.Type {
	case ModelText, ModelVision, ModelAudio, ModelMultimodal, ModelCode:
	default:
		return fmt.Errorf("model %s: unsupported type %q", m.Name, m.Type)
	}
	if m.ContextWindow <= 0 {
		return fmt.Errorf("model %s: context window must be positive", m.Name)
	}
	if m.Priority < 1 || m.Priority > 10 {
		return fmt.Errorf("model %s: priority must be between 1 and 10", m.Name)
	}
	if m.InputPricePer1K < 0 || m.OutputPricePer1K < 0 {
		return fmt.Errorf("model %s: prices must not be negative", m.Name)
	}
	return nil
}

// RequestRecord is one processed chat request.
type RequestRecord struct {
	ID               uuid.UUID  `json:"request_id"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	ModelID          uuid.UUID  `json:"model_id"`
	ModelName        string     `json:"model_name"`
	ProviderName     string     `json:"provider_name"`
	PromptHash       string     `json:"prompt_hash"`
	InputText        string     `json:"input_text"`
	InputTokens      int        `json:"input_tokens"`
	OutputTokens     int        `json:"output_tokens"`
	TotalCost        float64    `json:"total_cost"`
	Temperature      float64    `json:"temperature"`
	MaxTokens        *int       `json:"max_tokens,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"request_timestamp"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ProcessingTimeMS int64      `json:"processing_time_ms"`
	ClientIP         string     `json:"client_ip,omitempty"`
	UserAgent        string     `json:"user_agent,omitempty"`
	Endpoint         string     `json:"endpoint_called"`
}

// ResponseRecord is the provider answer linked to a request.
type ResponseRecord struct {
	ID           uuid.UUID `json:"response_id"`
	RequestID    uuid.UUID `json:"request_id"`
	Content      string    `json:"content"`
	FinishReason string    `json:"finish_reason,omitempty"`
	ModelUsed    string    `json:"model_used"`
	ProviderUsed string    `json:"provider_used"`
	IsCached     bool      `json:"is_cached"`
	CreatedAt    time.Time `json:"response_timestamp"`
}

// CacheEntry is a stored response keyed by prompt hash.
type CacheEntry struct {
	Hash         string    `json:"request_hash"`
	ResponseID   uuid.UUID `json:"response_id"`
	Content      string    `json:"content"`
	ModelUsed    string    `json:"model_used"`
	ProviderUsed string    `json:"provider_used"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	FinishReason string    `json:"finish_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Expired reports whether the entry is past its expiry at now.
func (c *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ErrorLog records a failed provider interaction.
type ErrorLog struct {
	ID           uuid.UUID  `json:"error_id"`
	RequestID    *uuid.UUID `json:"request_id,omitempty"`
	ErrorType    string     `json:"error_type"`
	ErrorCode    string     `json:"error_code"`
	Message      string     `json:"error_message"`
	HTTPStatus   int        `json:"http_status_code"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	RetryAttempt int        `json:"retry_attempt"`
	FallbackUsed bool       `json:"fallback_used"`
	CreatedAt    time.Time  `json:"created_at"`
}

// UserTotals aggregates a user's request history.
type UserTotals struct {
	RequestCount int     `json:"request_count"`
	TotalCost    float64 `json:"total_cost"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// ProviderActivity aggregates recent requests per provider.
type ProviderActivity struct {
	Requests        int     `json:"requests"`
	AvgProcessingMS float64 `json:"avg_processing_time_ms"`
}

// Exchange is a stored request with its response, if any.
type Exchange struct {
	Request  RequestRecord   `json:"request"`
	Response *ResponseRecord `json:"response,omitempty"`
}

// UserStats summarizes a user's spend and recent activity.
type UserStats struct {
	UserID         uuid.UUID       `json:"user_id"`
	TotalCost      float64         `json:"total_cost"`
	RequestCount   int             `json:"request_count"`
	InputTokens    int             `json:"input_tokens"`
	OutputTokens   int             `json:"output_tokens"`
	RecentRequests []RecentRequest `json:"recent_requests"`
}

// RecentRequest is the short form of a stored request used in statistics.
type RecentRequest struct {
	RequestID        uuid.UUID `json:"request_id"`
	ModelName        string    `json:"model_name"`
	ProviderName     string    `json:"provider_name"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	TotalCost        float64   `json:"total_cost"`
	Status           string    `json:"status"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"request_timestamp"`
}

package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaPredict = 1024
)

// Ollama calls a local Ollama daemon.
type Ollama struct {
	baseURL string
	http    *retryablehttp.Client
	logger  zerolog.Logger
}

func NewOllama(baseURL string, timeout time.Duration, logger zerolog.Logger) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	l := logger.With().Str("provider", NameOllama).Logger()
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout, l),
		logger:  l,
	}
}

func (o *Ollama) Name() string { return NameOllama }

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"`
}

func (o *Ollama) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	predict := defaultOllamaPredict
	if req.MaxTokens != nil {
		predict = *req.MaxTokens
	}
	body := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: formatOllamaPrompt(req.Messages),
		Stream: false,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": predict,
		},
	}

	var out ollamaGenerateResponse
	if err := doJSON(ctx, o.http, NameOllama, http.MethodPost, o.baseURL+"/api/generate", body, &out); err != nil {
		o.logger.Error().Err(err).Str("model", req.Model).Msg("Ollama API error")
		return nil, err
	}

	return &CompletionResponse{
		Content:      out.Response,
		ModelUsed:    req.Model,
		ProviderName: NameOllama,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		FinishReason: "stop",
		Raw: map[string]interface{}{
			"done":           out.Done,
			"done_reason":    out.DoneReason,
			"total_duration": out.TotalDuration,
		},
	}, nil
}

// ListModels returns the names of locally pulled models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := doJSON(ctx, o.http, NameOllama, http.MethodGet, o.baseURL+"/api/tags", nil, &out); err != nil {
		return nil, fmt.Errorf("list Ollama models: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (o *Ollama) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := doJSON(ctx, o.http, NameOllama, http.MethodGet, o.baseURL+"/api/tags", nil, nil); err != nil {
		o.logger.Debug().Err(err).Msg("health check failed")
		return false
	}
	return true
}

func formatOllamaPrompt(messages []gateway.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case gateway.RoleSystem:
			lines = append(lines, "System: "+m.Content)
		case gateway.RoleUser:
			lines = append(lines, "User: "+m.Content)
		case gateway.RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// Package providers adapts upstream LLM vendors to a single completion
// interface and manages their configuration, instances and health.
package providers

import (
	"context"
	"strings"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

// Provider names as they appear in the catalog.
const (
	NameMock   = "MockAI"
	NameOpenAI = "OpenAI"
	NameGemini = "Google Gemini"
	NameOllama = "Ollama"
)

// CompletionRequest is a provider-neutral completion call.
type CompletionRequest struct {
	Messages    []gateway.Message
	Model       string
	Temperature float64
	MaxTokens   *int
}

// CompletionResponse is the normalized provider answer.
type CompletionResponse struct {
	ID           string
	Content      string
	ModelUsed    string
	ProviderName string
	InputTokens  int
	OutputTokens int
	FinishReason string
	Raw          map[string]interface{}
}

func (r *CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is implemented by every upstream adapter.
type Provider interface {
	Name() string
	ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	HealthCheck(ctx context.Context) bool
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func joinContents(messages []gateway.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

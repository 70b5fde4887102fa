package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const (
	charsPerToken   = 4
	tokensPerMsg    = 3
	tokensPerPrimer = 3
)

// EstimateTokens approximates the prompt size for model. Chat-format models
// add the per-message framing overhead on top of the character estimate.
func EstimateTokens(messages []gateway.Message, model string) int {
	chars := 0
	for _, m := range messages {
		chars += utf8.RuneCountInString(m.Content)
	}
	tokens := chars / charsPerToken
	if chatFramed(model) {
		tokens += tokensPerMsg*len(messages) + tokensPerPrimer
	}
	return tokens
}

// WithinContext reports whether messages fit a context window.
func WithinContext(messages []gateway.Message, model string, contextWindow int) (int, bool) {
	n := EstimateTokens(messages, model)
	return n, n <= contextWindow
}

func chatFramed(model string) bool {
	return strings.HasPrefix(model, "gpt-")
}

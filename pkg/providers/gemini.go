package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/retry"
)

const (
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiMaxOutput = 2048
)

// Gemini calls the Google Generative Language REST API.
type Gemini struct {
	apiKey  string
	baseURL string
	http    *retryablehttp.Client
	logger  zerolog.Logger
}

func NewGemini(apiKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *Gemini {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	l := logger.With().Str("provider", NameGemini).Logger()
	if apiKey == "" {
		l.Warn().Msg("Gemini API key not configured")
	}
	return &Gemini{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout, l),
		logger:  l,
	}
}

func (g *Gemini) Name() string { return NameGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
	ResponseID   string `json:"responseId"`
}

func (g *Gemini) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if g.apiKey == "" {
		return nil, retry.Permanent(errors.New("Gemini API key not configured"))
	}

	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: defaultGeminiMaxOutput,
		},
	}
	if req.MaxTokens != nil {
		body.GenerationConfig.MaxOutputTokens = *req.MaxTokens
	}
	for _, m := range req.Messages {
		part := []geminiPart{{Text: m.Content}}
		switch m.Role {
		case gateway.RoleSystem:
			if body.SystemInstruction == nil {
				body.SystemInstruction = &geminiContent{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, part...)
		case gateway.RoleAssistant:
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: part})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: part})
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(req.Model), url.QueryEscape(g.apiKey))

	var out geminiResponse
	if err := doJSON(ctx, g.http, NameGemini, http.MethodPost, endpoint, body, &out); err != nil {
		g.logger.Error().Err(err).Str("model", req.Model).Msg("Gemini API error")
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini API error: no candidates returned")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()

	// The API bills by its own tokenizer; this is the gateway's estimate.
	estimated := float64(wordCount(text)) * 1.3
	finish := strings.ToLower(out.Candidates[0].FinishReason)
	if finish == "" {
		finish = "stop"
	}

	return &CompletionResponse{
		ID:           out.ResponseID,
		Content:      text,
		ModelUsed:    req.Model,
		ProviderName: NameGemini,
		InputTokens:  int(estimated * 0.3),
		OutputTokens: int(estimated * 0.7),
		FinishReason: finish,
		Raw:          map[string]interface{}{"model_version": out.ModelVersion},
	}, nil
}

// HealthCheck lists models, which needs a valid key but no quota.
func (g *Gemini) HealthCheck(ctx context.Context) bool {
	if g.apiKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	endpoint := fmt.Sprintf("%s/models?key=%s", g.baseURL, url.QueryEscape(g.apiKey))
	if err := doJSON(ctx, g.http, NameGemini, http.MethodGet, endpoint, nil, nil); err != nil {
		g.logger.Debug().Err(err).Msg("health check failed")
		return false
	}
	return true
}

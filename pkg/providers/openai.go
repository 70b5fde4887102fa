package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/retry"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAIHealthModel    = "gpt-4o-mini"
)

// OpenAIConfig selects between the public OpenAI endpoint and an Azure
// OpenAI resource. When AzureEndpoint is set, model names are deployment names.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	AzureEndpoint string
}

// OpenAI talks to OpenAI compatible chat completion endpoints.
type OpenAI struct {
	client *azopenai.Client
	logger zerolog.Logger
}

// NewOpenAI creates the adapter. A missing key yields an adapter whose calls
// fail, matching how the registry treats unconfigured providers.
func NewOpenAI(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAI, error) {
	p := &OpenAI{logger: logger.With().Str("provider", NameOpenAI).Logger()}
	if cfg.APIKey == "" {
		p.logger.Warn().Msg("OpenAI API key not configured")
		return p, nil
	}

	// Retries are driven by the retry coordinator.
	opts := &azopenai.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	keyCredential := azcore.NewKeyCredential(cfg.APIKey)

	var (
		client *azopenai.Client
		err    error
	)
	if cfg.AzureEndpoint != "" {
		client, err = azopenai.NewClientWithKeyCredential(cfg.AzureEndpoint, keyCredential, opts)
	} else {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		client, err = azopenai.NewClientForOpenAI(baseURL, keyCredential, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAI client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *OpenAI) Name() string { return NameOpenAI }

func (p *OpenAI) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if p.client == nil {
		return nil, retry.Permanent(errors.New("OpenAI API key not configured"))
	}

	opts := azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(req.Model),
		Messages:       toOpenAIMessages(req.Messages),
		Temperature:    to.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = to.Ptr(int32(*req.MaxTokens))
	}

	resp, err := p.client.GetChatCompletions(ctx, opts, nil)
	if err != nil {
		p.logger.Error().Err(err).Str("model", req.Model).Msg("OpenAI API error")
		err = fmt.Errorf("OpenAI API error: %w", err)
		if isClientError(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("OpenAI API error: no completion received")
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:      *choice.Message.Content,
		ModelUsed:    req.Model,
		ProviderName: NameOpenAI,
	}
	if resp.ID != nil {
		out.ID = *resp.ID
	}
	if resp.Model != nil && *resp.Model != "" {
		out.ModelUsed = *resp.Model
	}
	if choice.FinishReason != nil {
		out.FinishReason = string(*choice.FinishReason)
	}
	if resp.Usage != nil {
		if resp.Usage.PromptTokens != nil {
			out.InputTokens = int(*resp.Usage.PromptTokens)
		}
		if resp.Usage.CompletionTokens != nil {
			out.OutputTokens = int(*resp.Usage.CompletionTokens)
		}
	}
	return out, nil
}

// HealthCheck sends a one token "ping" completion.
func (p *OpenAI) HealthCheck(ctx context.Context) bool {
	one := 1
	_, err := p.ChatCompletion(ctx, CompletionRequest{
		Messages:    []gateway.Message{{Role: gateway.RoleUser, Content: "ping"}},
		Model:       openAIHealthModel,
		Temperature: 0.1,
		MaxTokens:   &one,
	})
	if err != nil {
		p.logger.Debug().Err(err).Msg("health check failed")
		return false
	}
	return true
}

func toOpenAIMessages(messages []gateway.Message) []azopenai.ChatRequestMessageClassification {
	out := make([]azopenai.ChatRequestMessageClassification, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case gateway.RoleSystem:
			out = append(out, &azopenai.ChatRequestSystemMessage{
				Content: azopenai.NewChatRequestSystemMessageContent(m.Content),
			})
		case gateway.RoleAssistant:
			out = append(out, &azopenai.ChatRequestAssistantMessage{
				Content: azopenai.NewChatRequestAssistantMessageContent(m.Content),
			})
		default:
			out = append(out, &azopenai.ChatRequestUserMessage{
				Content: azopenai.NewChatRequestUserMessageContent(m.Content),
			})
		}
	}
	return out
}

// isClientError reports 4xx responses other than 408 and 429.
func isClientError(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	switch respErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return respErr.StatusCode >= 400 && respErr.StatusCode < 500
}

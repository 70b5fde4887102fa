package mcpserver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const mcpEndpoint = "mcp"

type param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

type toolConfig struct {
	Name        string
	Description string
	Params      []param
	Handler     server.ToolHandlerFunc
}

func (c toolConfig) tool() mcp.Tool {
	props := make(map[string]interface{}, len(c.Params))
	var required []string
	for _, p := range c.Params {
		props[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.Tool{
		Name:        c.Name,
		Description: c.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func (s *Server) toolConfigs() []toolConfig {
	return []toolConfig{
		{
			Name:        "chat",
			Description: "Send a prompt through the gateway. Use model \"auto\" to let the decision engine pick.",
			Params: []param{
				{Name: "prompt", Type: "string", Description: "User message", Required: true},
				{Name: "system", Type: "string", Description: "Optional system instruction"},
				{Name: "model", Type: "string", Description: "Model name or \"auto\""},
				{Name: "temperature", Type: "number", Description: "Sampling temperature"},
				{Name: "max_tokens", Type: "integer", Description: "Upper bound on generated tokens"},
				{Name: "user_id", Type: "string", Description: "Gateway user to bill"},
			},
			Handler: s.handleChat,
		},
		{
			Name:        "recommend_model",
			Description: "Ask the decision engine which model fits a prompt without calling any provider",
			Params: []param{
				{Name: "prompt", Type: "string", Description: "Prompt to route", Required: true},
				{Name: "detailed", Type: "boolean", Description: "Include analysis and alternatives"},
			},
			Handler: s.handleRecommend,
		},
		{
			Name:        "analyze_prompt",
			Description: "Estimate tokens, complexity and type of a prompt",
			Params: []param{
				{Name: "prompt", Type: "string", Description: "Prompt to analyze", Required: true},
			},
			Handler: s.handleAnalyze,
		},
		{
			Name:        "list_models",
			Description: "List available models with pricing and context windows",
			Handler:     s.handleListModels,
		},
		{
			Name:        "provider_health",
			Description: "Probe every provider and report gateway health",
			Handler:     s.handleHealth,
		},
		{
			Name:        "user_stats",
			Description: "Spend and recent requests of a gateway user",
			Params: []param{
				{Name: "user_id", Type: "string", Description: "User ID", Required: true},
			},
			Handler: s.handleUserStats,
		},
	}
}

func (s *Server) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return createErrorResult(fmt.Errorf("missing required parameter: prompt"))
	}

	var messages []gateway.Message
	if system, _ := args["system"].(string); system != "" {
		messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Content: system})
	}
	messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: prompt})

	chatReq := gateway.ChatRequest{Messages: messages, Model: gateway.AutoModel}
	if model, _ := args["model"].(string); model != "" {
		chatReq.Model = model
	}
	if t, ok := args["temperature"].(float64); ok {
		chatReq.Temperature = &t
	}
	if n, ok := args["max_tokens"].(float64); ok {
		v := int(n)
		chatReq.MaxTokens = &v
	}
	if raw, _ := args["user_id"].(string); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return createErrorResult(fmt.Errorf("invalid user_id: %w", err))
		}
		chatReq.UserID = &id
	}

	resp, err := s.deps.Chat.Process(ctx, chatReq, gateway.RequestMeta{ClientIP: "stdio", UserAgent: serverName, Endpoint: mcpEndpoint})
	if err != nil {
		return s.toolError("chat", err)
	}
	return createResult(resp)
}

func (s *Server) handleRecommend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return createErrorResult(fmt.Errorf("missing required parameter: prompt"))
	}
	detailed, _ := args["detailed"].(bool)

	rec, err := s.deps.Chat.Recommend(ctx, []gateway.Message{{Role: gateway.RoleUser, Content: prompt}},
		gateway.DefaultTemperature, nil, detailed)
	if err != nil {
		return s.toolError("recommend_model", err)
	}
	return createResult(rec)
}

func (s *Server) handleAnalyze(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, _ := req.GetArguments()["prompt"].(string)
	if prompt == "" {
		return createErrorResult(fmt.Errorf("missing required parameter: prompt"))
	}
	a := s.deps.Analyzer.Analyze([]gateway.Message{{Role: gateway.RoleUser, Content: prompt}})
	return createResult(map[string]interface{}{
		"token_estimate":            a.TokenEstimate,
		"complexity":                a.Complexity,
		"complexity_label":          a.Complexity.Label(),
		"prompt_type":               a.PromptType,
		"has_specific_instructions": a.HasSpecificInstructions,
		"text_length":               a.TextLength,
	})
}

func (s *Server) handleListModels(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Providers == nil {
		return createErrorResult(fmt.Errorf("provider service not initialized"))
	}
	models := s.deps.Providers.Registry().ListModels()
	return createResult(map[string]interface{}{"count": len(models), "models": models})
}

func (s *Server) handleHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createResult(s.deps.Chat.Health(ctx))
}

func (s *Server) handleUserStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, _ := req.GetArguments()["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return createErrorResult(fmt.Errorf("invalid user_id: %q", raw))
	}
	stats, err := s.deps.Chat.UserStatistics(ctx, id)
	if err != nil {
		return s.toolError("user_stats", err)
	}
	return createResult(stats)
}

// toolError strips the domain prefix from gateway errors so clients see the
// code and message only.
func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	s.logger.Warn().Err(err).Str("tool", tool).Msg("Tool call failed")
	if gwErr, ok := errors.As(err); ok {
		return createErrorResult(fmt.Errorf("%s: %s", gwErr.Code, gwErr.Message))
	}
	return createErrorResult(err)
}

// Package mcpserver exposes the gateway as Model Context Protocol tools over
// stdio, so MCP clients can chat through the router and inspect it.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/chat"
	"github.com/Azure/ai-gateway/pkg/providers"
	"github.com/Azure/ai-gateway/pkg/routing"
)

const serverName = "ai-gateway"

// Dependencies of the tool handlers. Providers may be nil, in which case
// list_models reports an error.
type Dependencies struct {
	Chat      *chat.Service
	Providers *providers.Service
	Analyzer  *routing.Analyzer
}

type Server struct {
	mcp    *server.MCPServer
	deps   Dependencies
	logger zerolog.Logger
}

// New creates the MCP server and registers every tool.
func New(deps Dependencies, version string, logger zerolog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			serverName,
			version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
			server.WithRecovery(),
		),
		deps:   deps,
		logger: logger.With().Str("component", "mcp_server").Logger(),
	}
	for _, cfg := range s.toolConfigs() {
		s.mcp.AddTool(cfg.tool(), cfg.Handler)
		s.logger.Debug().Str("tool", cfg.Name).Msg("Registered tool")
	}
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over the given streams until ctx is done or stdin closes.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	s.logger.Info().Msg("Starting MCP stdio server")
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, stdin, stdout)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// ToolResult is the JSON document every tool returns as text content.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"error":"failed to encode result"}`
	}
	return string(data)
}

func createResult(data interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: marshalJSON(ToolResult{Success: true, Data: data})},
		},
	}, nil
}

// createErrorResult reports tool failures in-band; protocol errors are
// reserved for malformed calls.
func createErrorResult(err error) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: marshalJSON(ToolResult{Success: false, Error: err.Error()})},
		},
		IsError: true,
	}, nil
}

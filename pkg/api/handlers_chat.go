package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const (
	simpleDefaultMessage = "Hello, how does the system work?"
	simpleDefaultModel   = "mock-model"
)

func (s *Server) requestMeta(r *http.Request) gateway.RequestMeta {
	return gateway.RequestMeta{
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	// Streaming is not implemented; the full response is returned.

	resp, err := s.deps.Chat.Process(r.Context(), req, s.requestMeta(r))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) providerServiceReady(w http.ResponseWriter) bool {
	if s.deps.Providers == nil {
		s.sendError(w, errors.New(errors.CodeServiceUnavailable, "http", "Provider service not initialized", nil))
		return false
	}
	return true
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	if !s.providerServiceReady(w) {
		return
	}
	s.sendSuccess(w, "Providers retrieved", s.deps.Providers.Status())
}

func (s *Server) handleReloadProviders(w http.ResponseWriter, r *http.Request) {
	if !s.providerServiceReady(w) {
		return
	}
	if err := s.deps.Providers.Reload(r.Context(), s.deps.Store); err != nil {
		s.sendError(w, err)
		return
	}
	status := s.deps.Providers.Status()
	s.sendSuccess(w, "Provider registry reloaded", status.Counts)
}

func (s *Server) handleChatHealth(w http.ResponseWriter, r *http.Request) {
	h := s.deps.Chat.Health(r.Context())
	status := http.StatusOK
	if h.Database == "disconnected" {
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, h)
}

func (s *Server) handleAvailableModels(w http.ResponseWriter, _ *http.Request) {
	if !s.providerServiceReady(w) {
		return
	}
	models := s.deps.Providers.Registry().ListModels()
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(models),
		"models":  models,
	})
}

func (s *Server) handleChatStats(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	stats, err := s.deps.Chat.UserStatistics(r.Context(), id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendSuccess(w, "Chat statistics retrieved", stats)
}

func (s *Server) handleChatTest(w http.ResponseWriter, _ *http.Request) {
	p := s.cfg.APIPrefix + "/chat"
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Chat API is working",
		"endpoints": map[string]string{
			"chat":             "POST " + p,
			"simple":           "GET|POST " + p + "/simple",
			"providers":        "GET " + p + "/providers",
			"health":           "GET " + p + "/health",
			"available_models": "GET " + p + "/available-models",
			"stats":            "GET " + p + "/stats/{user_id}",
		},
	})
}

type simpleChatInput struct {
	Message     string     `json:"message"`
	Model       string     `json:"model"`
	Temperature *float64   `json:"temperature"`
	MaxTokens   *int       `json:"max_tokens"`
	UserID      *uuid.UUID `json:"user_id"`
}

type simpleTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

type simpleDatabase struct {
	Saved      bool      `json:"saved"`
	RequestID  uuid.UUID `json:"request_id"`
	ResponseID uuid.UUID `json:"response_id"`
}

type simpleTiming struct {
	TotalMS      float64 `json:"total_ms"`
	ProcessingMS int64   `json:"processing_ms"`
}

type simpleChatResponse struct {
	Status   string         `json:"status"`
	Request  string         `json:"request"`
	Response string         `json:"response"`
	Model    string         `json:"model"`
	Provider string         `json:"provider"`
	Tokens   simpleTokens   `json:"tokens"`
	Database simpleDatabase `json:"database"`
	Timing   simpleTiming   `json:"timing"`
	Cost     float64        `json:"cost"`
	Cached   bool           `json:"cached"`
}

// parseSimpleInput reads query parameters, and for POST an optional JSON
// body whose fields win over the query.
func parseSimpleInput(r *http.Request) (simpleChatInput, error) {
	in := simpleChatInput{
		Message: r.URL.Query().Get("message"),
		Model:   r.URL.Query().Get("model"),
	}
	var err error
	if in.Temperature, err = queryFloat(r, "temperature"); err != nil {
		return in, err
	}
	if raw := r.URL.Query().Get("max_tokens"); raw != "" {
		n, err := queryInt(r, "max_tokens", 0)
		if err != nil {
			return in, err
		}
		in.MaxTokens = &n
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := parseUUID("user_id", raw, invalidUserID)
		if err != nil {
			return in, err
		}
		in.UserID = &id
	}

	if r.Method == http.MethodPost && r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body simpleChatInput
		if err := decodeBody(r, &body); err != nil {
			return in, err
		}
		if body.Message != "" {
			in.Message = body.Message
		}
		if body.Model != "" {
			in.Model = body.Model
		}
		if body.Temperature != nil {
			in.Temperature = body.Temperature
		}
		if body.MaxTokens != nil {
			in.MaxTokens = body.MaxTokens
		}
		if body.UserID != nil {
			in.UserID = body.UserID
		}
	}

	if in.Message == "" {
		if r.Method == http.MethodPost {
			return in, errors.Validation("message", "message is required")
		}
		in.Message = simpleDefaultMessage
	}
	if in.Model == "" {
		in.Model = simpleDefaultModel
	}
	return in, nil
}

// handleSimpleChat wraps one user message in a full chat request and
// flattens the result for quick manual testing.
func (s *Server) handleSimpleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	in, err := parseSimpleInput(r)
	if err != nil {
		s.sendError(w, err)
		return
	}

	req := gateway.ChatRequest{
		Messages:    []gateway.Message{{Role: gateway.RoleUser, Content: in.Message}},
		Model:       in.Model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		UserID:      in.UserID,
	}
	resp, err := s.deps.Chat.Process(r.Context(), req, s.requestMeta(r))
	if err != nil {
		gwErr, ok := errors.As(err)
		status := http.StatusInternalServerError
		message := "Internal server error"
		if ok {
			status = gwErr.Status()
			message = gwErr.Message
		}
		s.sendJSON(w, status, map[string]string{"status": "error", "error": message})
		return
	}

	s.sendJSON(w, http.StatusOK, simpleChatResponse{
		Status:   "success",
		Request:  in.Message,
		Response: resp.Content,
		Model:    resp.ModelUsed,
		Provider: resp.ProviderUsed,
		Tokens: simpleTokens{
			Input:  resp.InputTokens,
			Output: resp.OutputTokens,
			Total:  resp.InputTokens + resp.OutputTokens,
		},
		Database: simpleDatabase{Saved: resp.Saved, RequestID: resp.RequestID, ResponseID: resp.ResponseID},
		Timing:   simpleTiming{TotalMS: millis(time.Since(start)), ProcessingMS: resp.ProcessingTimeMS},
		Cost:     resp.TotalCost,
		Cached:   resp.IsCached,
	})
}

func (s *Server) handlePurgeCache(w http.ResponseWriter, r *http.Request) {
	removed := s.deps.Chat.PurgeCache(r.Context())
	s.sendSuccess(w, "Expired cache entries purged", map[string]int{"removed": removed})
}

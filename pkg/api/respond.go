package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
)

// maxBodyBytes caps request bodies; a full chat history fits comfortably.
const maxBodyBytes = 4 << 20

// envelope is the success wrapper used by the chat and decision routes.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorBody struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	Timestamp int64       `json:"timestamp"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.sendJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// sendError maps gateway errors to their HTTP status. Anything else is an
// opaque 500 so internals never leak.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	gwErr, ok := errors.As(err)
	if !ok {
		s.logger.Error().Err(err).Msg("Unhandled error")
		gwErr = errors.Internal("http", "Internal server error", err)
	}

	status := gwErr.Status()
	if status == http.StatusTooManyRequests {
		if secs, ok := gwErr.Details["retry_after"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	message := gwErr.Message
	if status >= 500 && gwErr.Code == errors.CodeInternalError {
		message = "Internal server error"
	}

	s.sendJSON(w, status, errorBody{
		Success: false,
		Error: errorDetail{
			Code:    string(gwErr.Code),
			Message: message,
			Details: gwErr.Details,
		},
		Timestamp: s.now().Unix(),
	})
}

// decodeBody reads a JSON body into v.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Validation("body", "Invalid JSON body: "+err.Error())
	}
	return nil
}

func parseUUID(field, raw string, message string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Validation(field, message)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation(key, key+" must be an integer")
	}
	return v, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.Validation(key, key+" must be a number")
	}
	return &v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Validation(key, key+" must be a boolean")
	}
	return &v, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

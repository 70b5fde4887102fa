package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(CodeIoError, "persistence", "failed to save", cause)

	assert.Equal(t, "[persistence:IO_ERROR] failed to save: disk full", err.Error())
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Equal(t, "[registry:NOT_FOUND] missing", NotFound("registry", "missing").Error())
}

func TestIsComparesCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ModelNotFound("gpt-x"))

	assert.True(t, stderrors.Is(wrapped, &Error{Code: CodeModelNotFound}))
	assert.False(t, stderrors.Is(wrapped, &Error{Code: CodeNotFound}))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "gpt-x", e.Details["model"])
	assert.Equal(t, CodeModelNotFound, CodeOf(wrapped))
	assert.Equal(t, CodeInternalError, CodeOf(fmt.Errorf("plain")))
}

func TestGatewayMessages(t *testing.T) {
	assert.Equal(t, "Model 'gpt-x' not found", ModelNotFound("gpt-x").Message)
	assert.Equal(t,
		"Provider 'OpenAI' for model 'gpt-4o' is unavailable: Timeout after 30 seconds",
		ProviderUnavailable("OpenAI", "gpt-4o", "Timeout after 30 seconds").Message)
	assert.Equal(t,
		"Context length exceeded for model 'mock-model'. Max: 10, Requested: 25",
		ContextLengthExceeded("mock-model", 10, 25).Message)

	v := Validation("messages[0].content", "too long")
	assert.Equal(t, "messages[0].content", v.Details["field"])
}

func TestRateLimitRetryAfter(t *testing.T) {
	assert.Equal(t, 1, RateLimitExceeded("client", 10*time.Millisecond).Details["retry_after"])
	assert.Equal(t, 3, RateLimitExceeded("client", 3*time.Second).Details["retry_after"])
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeValidationError:       http.StatusBadRequest,
		CodeContextLengthExceeded: http.StatusBadRequest,
		CodeModelNotFound:         http.StatusNotFound,
		CodeNotFound:              http.StatusNotFound,
		CodeProviderUnavailable:   http.StatusServiceUnavailable,
		CodeRateLimitExceeded:     http.StatusTooManyRequests,
		CodeInternalError:         http.StatusInternalServerError,
		CodeIoError:               http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}

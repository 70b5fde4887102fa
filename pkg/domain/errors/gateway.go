package errors

import (
	"fmt"
	"time"
)

// Validation reports an invalid request field.
func Validation(field, message string) *Error {
	return New(CodeValidationError, "validation", message, nil).WithDetail("field", field)
}

func ModelNotFound(model string) *Error {
	return New(CodeModelNotFound, "registry", fmt.Sprintf("Model '%s' not found", model), nil).
		WithDetail("model", model)
}

func ProviderUnavailable(provider, model, reason string) *Error {
	return New(CodeProviderUnavailable, "provider",
		fmt.Sprintf("Provider '%s' for model '%s' is unavailable: %s", provider, model, reason), nil).
		WithDetail("provider", provider).
		WithDetail("model", model)
}

// RateLimitExceeded carries the number of seconds the caller should wait.
func RateLimitExceeded(scope string, retryAfter time.Duration) *Error {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return New(CodeRateLimitExceeded, "ratelimit", fmt.Sprintf("Rate limit exceeded for %s", scope), nil).
		WithDetail("retry_after", secs)
}

func ContextLengthExceeded(model string, max, requested int) *Error {
	return New(CodeContextLengthExceeded, "chat",
		fmt.Sprintf("Context length exceeded for model '%s'. Max: %d, Requested: %d", model, max, requested), nil).
		WithDetail("max_tokens", max).
		WithDetail("requested_tokens", requested)
}

func NotFound(domain, message string) *Error {
	return New(CodeNotFound, domain, message, nil)
}

func Internal(domain, message string, cause error) *Error {
	return New(CodeInternalError, domain, message, cause)
}

package errors

import "net/http"

// Code represents an error code
type Code string

// Error codes returned by the gateway API
const (
	CodeValidationError       Code = "VALIDATION_ERROR"        // Request validation failed
	CodeModelNotFound         Code = "MODEL_NOT_FOUND"         // Requested model is not in the registry
	CodeProviderUnavailable   Code = "PROVIDER_UNAVAILABLE"    // Provider call failed or timed out
	CodeRateLimitExceeded     Code = "RATE_LIMIT_EXCEEDED"     // Client, user or provider limit hit
	CodeContextLengthExceeded Code = "CONTEXT_LENGTH_EXCEEDED" // Prompt does not fit the context window
	CodeNotFound              Code = "NOT_FOUND"               // Entity not found
	CodeAlreadyExists         Code = "ALREADY_EXISTS"          // Unique constraint violated
	CodeInternalError         Code = "INTERNAL_SERVER_ERROR"   // Unexpected failure
	CodeIoError               Code = "IO_ERROR"                // Storage operation failed
	CodeServiceUnavailable    Code = "SERVICE_UNAVAILABLE"     // A dependency is not initialized
	CodeConfigurationInvalid  Code = "CONFIGURATION_INVALID"   // Configuration invalid
)

// HTTPStatus maps an error code to the status code used on the wire.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidationError, CodeContextLengthExceeded, CodeAlreadyExists, CodeConfigurationInvalid:
		return http.StatusBadRequest
	case CodeModelNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeProviderUnavailable, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

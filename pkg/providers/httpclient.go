package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/Azure/ai-gateway/pkg/retry"
)

// newHTTPClient builds the transport shared by the REST adapters. It retries
// connection failures and 5xx/429 answers once; attempt-level retries and the
// circuit breaker live in the retry coordinator.
func newHTTPClient(timeout time.Duration, logger zerolog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 1
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = leveledLogger{logger}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l zerolog.Logger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Error().Fields(kv).Msg(msg) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warn().Fields(kv).Msg(msg) }

// statusError is a non-2xx upstream answer.
type statusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func doJSON(ctx context.Context, c *retryablehttp.Client, provider, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("encode %s request: %w", provider, err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build %s request: %w", provider, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%s API error: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &statusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			return retry.Permanent(serr)
		}
		return serr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestSetupExportsSpans(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := Setup(context.Background(), Config{
		Enabled:       true,
		Endpoint:      srv.URL + "/v1/traces",
		ServiceName:   "ai-gateway-test",
		SampleRate:    1.0,
		ExportTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "exported")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.GreaterOrEqual(t, posts.Load(), int32(1))

	// restore the default for other tests
	_, err = Setup(context.Background(), Config{})
	require.NoError(t, err)
}

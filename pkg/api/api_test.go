package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/ai-gateway/pkg/catalog"
	"github.com/Azure/ai-gateway/pkg/chat"
	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/providers"
	"github.com/Azure/ai-gateway/pkg/retry"
	"github.com/Azure/ai-gateway/pkg/routing"
	"github.com/Azure/ai-gateway/pkg/storage/bolt"
	"github.com/Azure/ai-gateway/pkg/users"
)

const testCatalog = `
providers:
  - name: MockAI
    base_url: http://mock.ai
    max_requests_per_minute: 600
    retry_count: 1
    timeout_seconds: 5
    is_active: true
    models:
      - name: mock-model
        context_window: 8192
        max_output_tokens: 2048
        is_available: true
        priority: 5
      - name: mock-model-large
        context_window: 32768
        max_output_tokens: 4096
        is_available: true
        priority: 4
`

type testServer struct {
	server  *Server
	handler http.Handler
	store   *bolt.Store
	deps    Dependencies
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(ctx, store, cat, logger))

	cfg := config.DefaultConfig()
	cfg.RateLimitRPS = 0
	cfg.CORSOrigins = []string{"*"}
	if mutate != nil {
		mutate(cfg)
	}

	m := metrics.New()
	registry := providers.NewRegistry(logger)
	require.NoError(t, registry.Load(ctx, store))
	coordinator := retry.New()
	factory := providers.NewFactory(registry, providers.Settings{}, coordinator, m, logger)
	providerSvc := providers.NewService(registry, factory, coordinator, nil, logger)

	loads := routing.NewLoadManager(store, time.Minute, logger)
	engine, err := routing.NewEngine(registry, loads, store, m, logger)
	require.NoError(t, err)

	userSvc := users.NewService(store, logger)
	chatSvc := chat.NewService(store, userSvc, registry, factory, engine, providerSvc, cfg.Chat, m, logger)

	deps := Dependencies{
		Store:     store,
		Users:     userSvc,
		Chat:      chatSvc,
		Providers: providerSvc,
		Engine:    engine,
		Loads:     loads,
		Metrics:   m,
	}
	srv := NewServer(cfg, deps, logger)
	return &testServer{server: srv, handler: srv.Handler(), store: store, deps: deps}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["success"])
	detail, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	return detail["code"].(string)
}

func TestRootAndAPIInfo(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decodeJSON(t, rec)
	assert.Equal(t, "Welcome to AI Gateway Framework", root["message"])
	db := root["database"].(map[string]interface{})
	assert.Equal(t, "connected", db["status"])
	assert.Equal(t, "bbolt", db["engine"])

	rec = ts.do(t, http.MethodGet, "/api", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeJSON(t, rec)
	assert.Equal(t, "v1", info["api_version"])
	assert.Equal(t, "/api/v1", info["prefix"])
	assert.Contains(t, info["available_endpoints"], "/api/v1/chat/simple")

	rec = ts.do(t, http.MethodGet, "/database/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeJSON(t, rec)
	assert.Equal(t, "healthy", status["status"])
	assert.EqualValues(t, len(bolt.Buckets), status["tables"])
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decodeJSON(t, rec)
	assert.Equal(t, "healthy", h["status"])
	assert.Equal(t, "ai-gateway-framework", h["service"])

	rec = ts.do(t, http.MethodGet, "/api/v1/health/db", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	db := decodeJSON(t, rec)
	assert.Equal(t, true, db["check"])
	assert.Equal(t, "connected", db["database"])

	rec = ts.do(t, http.MethodGet, "/api/v1/health/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decodeJSON(t, rec)
	assert.Equal(t, "healthy", tables["overall_status"])
	list := tables["tables"].([]interface{})
	require.Len(t, list, len(bolt.Buckets))
	first := list[0].(map[string]interface{})
	assert.Equal(t, "users", first["table"])
	assert.Equal(t, true, first["exists"])
}

func TestUserLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"username": "alice", "email": "alice@example.com", "daily_limit": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON(t, rec)
	id := created["user_id"].(string)
	assert.EqualValues(t, 5, created["daily_limit"])
	assert.EqualValues(t, 1000, created["monthly_limit"])

	rec = ts.do(t, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"username": "alice2", "email": "ALICE@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"username": "al", "email": "al@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, "/api/v1/users/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeJSON(t, rec)["username"])

	rec = ts.do(t, http.MethodPatch, "/api/v1/users/"+id, map[string]interface{}{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["is_active"])

	rec = ts.do(t, http.MethodGet, "/api/v1/users?is_active=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/users?limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, invalidUserID, body["error"].(map[string]interface{})["message"])

	rec = ts.do(t, http.MethodGet, "/api/v1/users/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestChatRoundTripAndStats(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"username": "bob", "email": "bob@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	userID := decodeJSON(t, rec)["user_id"].(string)

	rec = ts.do(t, http.MethodPost, "/api/v1/chat", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "Hello there"}},
		"model":    "mock-model",
		"user_id":  userID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON(t, rec)
	assert.Equal(t, "mock-model", resp["model_used"])
	assert.Equal(t, "MockAI", resp["provider_used"])
	assert.NotEmpty(t, resp["content"])
	assert.Equal(t, false, resp["is_cached"])

	rec = ts.do(t, http.MethodGet, "/api/v1/users/"+userID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeJSON(t, rec)
	assert.EqualValues(t, 1, stats["request_count"])

	rec = ts.do(t, http.MethodGet, "/api/v1/chat/stats/"+userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeJSON(t, rec)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "Chat statistics retrieved", env["message"])

	rec = ts.do(t, http.MethodGet, "/api/v1/chat/stats/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/"+userID+"/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exchanges []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exchanges))
	assert.Len(t, exchanges, 1)
}

func TestChatErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "empty messages",
			body:   map[string]interface{}{"messages": []interface{}{}, "model": "mock-model"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name: "unknown model",
			body: map[string]interface{}{
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
				"model":    "does-not-exist",
			},
			status: http.StatusNotFound,
			code:   "MODEL_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/chat", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimpleChat(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/chat/simple", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, simpleDefaultMessage, body["request"])
	assert.Equal(t, "mock-model", body["model"])
	db := body["database"].(map[string]interface{})
	assert.Equal(t, true, db["saved"])

	rec = ts.do(t, http.MethodPost, "/api/v1/chat/simple?model=mock-model-large", map[string]interface{}{"message": "Write a poem"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeJSON(t, rec)
	assert.Equal(t, "mock-model-large", body["model"])
	assert.Equal(t, "Write a poem", body["request"])

	rec = ts.do(t, http.MethodGet, "/api/v1/chat/simple?model=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", decodeJSON(t, rec)["status"])
}

func TestProviderRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/chat/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeJSON(t, rec)
	data := env["data"].(map[string]interface{})
	counts := data["counts"].(map[string]interface{})
	assert.EqualValues(t, 1, counts["providers"])
	assert.EqualValues(t, 2, counts["models"])

	rec = ts.do(t, http.MethodGet, "/api/v1/chat/available-models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	models := decodeJSON(t, rec)
	assert.EqualValues(t, 2, models["count"])

	rec = ts.do(t, http.MethodPost, "/api/v1/chat/providers/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/chat/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeJSON(t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "connected", health["database"])
}

func TestProviderRoutesWithoutService(t *testing.T) {
	ts := newTestServer(t, nil)
	deps := ts.deps
	deps.Providers = nil
	handler := NewServer(config.DefaultConfig(), deps, zerolog.Nop()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/providers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Provider service not initialized")
}

func TestDecisionRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/decision/analyze-prompt", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/decision/analyze-prompt?prompt=Write+code+for+a+parser", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeJSON(t, rec)
	assert.Equal(t, "Prompt analysis completed", env["message"])
	data := env["data"].(map[string]interface{})
	assert.Equal(t, "code_generation", data["prompt_type"])
	complexity := data["complexity"].(map[string]interface{})
	assert.Equal(t, "simple", complexity["value"])
	assert.Equal(t, "Simple", complexity["label"])

	msgs := []map[string]string{{"role": "user", "content": "Summarize this paragraph"}}
	rec = ts.do(t, http.MethodPost, "/api/v1/decision/recommend-model?detailed=true", msgs)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env = decodeJSON(t, rec)
	assert.Equal(t, "Model recommendation generated", env["message"])
	rec2 := env["data"].(map[string]interface{})
	assert.Contains(t, []interface{}{"mock-model", "mock-model-large"}, rec2["recommended_model"])
	assert.NotNil(t, rec2["analysis"])

	rec = ts.do(t, http.MethodPost, "/api/v1/decision/recommend-model?temperature=3", msgs)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/decision/recommend-model?max_tokens=0", msgs)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/decision/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Decision Engine statistics", decodeJSON(t, rec)["message"])

	rec = ts.do(t, http.MethodGet, "/api/v1/decision/available-strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	strategies := decodeJSON(t, rec)["data"].(map[string]interface{})["strategies"].([]interface{})
	assert.NotEmpty(t, strategies)
}

func TestDecisionTuning(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/api/v1/decision/weights", routing.Weights{Cost: 0.5, Complexity: 0.5, Context: 0.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w := routing.Weights{Cost: 0.2, Complexity: 0.2, Context: 0.2, Priority: 0.2, Load: 0.2}
	rec = ts.do(t, http.MethodPut, "/api/v1/decision/weights", w)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, w, ts.deps.Engine.Weights())

	rec = ts.do(t, http.MethodPut, "/api/v1/decision/threshold", map[string]float64{"threshold": 1.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPut, "/api/v1/decision/threshold", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPut, "/api/v1/decision/threshold", map[string]float64{"threshold": 0.4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.4, ts.deps.Engine.Threshold(), 1e-9)

	rec = ts.do(t, http.MethodPut, "/api/v1/decision/providers/MockAI/max-rpm", map[string]int{"max_requests_per_minute": 42})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p, ok := ts.deps.Providers.Registry().ProviderConfig("MockAI")
	require.True(t, ok)
	assert.Equal(t, 42, p.MaxRequestsPerMinute)

	rec = ts.do(t, http.MethodPut, "/api/v1/decision/providers/Ghost/max-rpm", map[string]int{"max_requests_per_minute": 42})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPut, "/api/v1/decision/providers/MockAI/max-rpm", map[string]int{"max_requests_per_minute": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/decision/cache/clear", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitedClientGetsRetryAfter(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitRPS = 0.5
		cfg.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/api/v1/users/00000000-0000-0000-0000-000000000001", nil)
	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "gateway_http_requests_total")
	assert.Contains(t, body, `route="/api/v1/users/{userID}"`)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientLimiter(t *testing.T) {
	var disabled *clientLimiter
	ok, _ := disabled.Allow("1.2.3.4", time.Now())
	assert.True(t, ok)
	assert.Nil(t, newClientLimiter(0, 1, 0))

	l := newClientLimiter(1, 1, time.Minute)
	now := time.Now()
	ok, _ = l.Allow("1.2.3.4", now)
	assert.True(t, ok)
	ok, wait := l.Allow("1.2.3.4", now)
	assert.False(t, ok)
	assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)

	ok, _ = l.Allow("5.6.7.8", now)
	assert.True(t, ok, "keys are independent")
	ok, _ = l.Allow("1.2.3.4", now.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 2, l.size())
}

func TestServerStartStops(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Host = "127.0.0.1"
		cfg.Port = 0
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

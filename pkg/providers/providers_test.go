package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/retry"
)

type fakeCatalog struct {
	providers []gateway.Provider
	models    []gateway.Model
}

func (f *fakeCatalog) ListProviders(ctx context.Context, activeOnly bool) ([]gateway.Provider, error) {
	return f.providers, nil
}

func (f *fakeCatalog) ListModels(ctx context.Context, availableOnly bool) ([]gateway.Model, error) {
	return f.models, nil
}

func testCatalog() *fakeCatalog {
	mockID, openaiID := uuid.New(), uuid.New()
	return &fakeCatalog{
		providers: []gateway.Provider{
			{ID: mockID, Name: NameMock, IsActive: true, MaxRequestsPerMinute: 600, RetryCount: 1, TimeoutSeconds: 10},
			{ID: openaiID, Name: NameOpenAI, IsActive: true, MaxRequestsPerMinute: 60, RetryCount: 3, TimeoutSeconds: 30},
		},
		models: []gateway.Model{
			{ID: uuid.New(), ProviderID: mockID, Name: "mock-model", Type: "text", ContextWindow: 8192, IsAvailable: true, Priority: 5},
			{ID: uuid.New(), ProviderID: openaiID, Name: "gpt-4o", Type: "text", ContextWindow: 128000, IsAvailable: true, Priority: 9,
				InputPricePer1K: 0.005, OutputPricePer1K: 0.015},
			{ID: uuid.New(), ProviderID: uuid.New(), Name: "orphan", Type: "text", ContextWindow: 1000, IsAvailable: true, Priority: 1},
		},
	}
}

func loadedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Load(context.Background(), testCatalog()))
	return r
}

// stubProvider fails the first failures calls.
type stubProvider struct {
	name     string
	failures int32
	calls    int32
	err      error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.failures {
		if s.err != nil {
			return nil, s.err
		}
		return nil, errors.New("upstream down")
	}
	return &CompletionResponse{Content: "ok", ModelUsed: req.Model, ProviderName: s.name, InputTokens: 1, OutputTokens: 2}, nil
}

func (s *stubProvider) HealthCheck(ctx context.Context) bool { return s.failures == 0 }

func TestMockKeywordReplies(t *testing.T) {
	m := NewMock(0, 0)
	ctx := context.Background()

	resp, err := m.ChatCompletion(ctx, CompletionRequest{
		Model:    "mock-model",
		Messages: []gateway.Message{{Role: "user", Content: "Can you show me some CODE please"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "print('Hello, AI Gateway!')")
	assert.Equal(t, "mock-model", resp.ModelUsed)
	assert.Equal(t, NameMock, resp.ProviderName)
	assert.Equal(t, "stop", resp.FinishReason)
	// 7 words * 0.75
	assert.Equal(t, 5, resp.InputTokens)
	assert.Equal(t, resp.InputTokens+resp.OutputTokens, resp.TotalTokens())

	resp, err = m.ChatCompletion(ctx, CompletionRequest{Messages: []gateway.Message{{Role: "user", Content: "Привет!"}}})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "Glad to see you")
	assert.Equal(t, 1, resp.InputTokens, "token counts never drop below one")

	resp, err = m.ChatCompletion(ctx, CompletionRequest{Messages: []gateway.Message{{Role: "user", Content: "zzz"}}})
	require.NoError(t, err)
	assert.Contains(t, mockReplies, resp.Content)
	assert.True(t, m.HealthCheck(ctx))
}

func TestMockHonoursContext(t *testing.T) {
	m := NewMock(time.Second, 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.ChatCompletion(ctx, CompletionRequest{Messages: []gateway.Message{{Role: "user", Content: "hi"}}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistryLoad(t *testing.T) {
	r := loadedRegistry(t)

	assert.True(t, r.IsLoaded())
	providers, models := r.Counts()
	assert.Equal(t, 2, providers)
	assert.Equal(t, 2, models, "models without a loaded provider are skipped")

	p, ok := r.ProviderForModel("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, NameOpenAI, p.Name)

	_, ok = r.ModelConfig("orphan")
	assert.False(t, ok)

	list := r.ListProviders()
	require.Len(t, list, 2)
	assert.Equal(t, NameMock, list[0].Name)
	assert.Equal(t, []string{"mock-model"}, list[0].Models)
	assert.Equal(t, 1, list[0].ModelCount)

	infos := r.ListModels()
	require.Len(t, infos, 2)
	assert.Equal(t, "gpt-4o", infos[0].Name)
	assert.Equal(t, NameOpenAI, infos[0].Provider)
	assert.Equal(t, 0.015, infos[0].Pricing.Output)
}

func TestFactoryCachesInstances(t *testing.T) {
	r := loadedRegistry(t)
	f := NewFactory(r, Settings{}, retry.New(), nil, zerolog.Nop())

	p1, err := f.Get(NameMock)
	require.NoError(t, err)
	p2, err := f.ForModel("mock-model")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, []string{NameMock}, f.Cached())

	_, err = f.Get("Unknown")
	assert.Error(t, err)
	_, err = f.ForModel("missing")
	assert.Error(t, err)

	f.ClearCache()
	assert.Empty(t, f.Cached())
}

func TestFactoryUnconfiguredOpenAIFailsWithoutRetry(t *testing.T) {
	r := loadedRegistry(t)
	f := NewFactory(r, Settings{}, retry.New(), nil, zerolog.Nop())

	p, err := f.Get(NameOpenAI)
	require.NoError(t, err)
	_, err = p.ChatCompletion(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not configured")
	assert.Equal(t, 1, Attempts(err))
}

func TestGuardedRetries(t *testing.T) {
	stub := &stubProvider{name: "Stub", failures: 2}
	coord := retry.New()
	g := NewGuarded(stub, 0, 3, coord, nil)

	resp, err := g.ChatCompletion(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 3, stub.calls)
	assert.Equal(t, retry.CircuitClosed, g.BreakerState())
	assert.Same(t, Provider(stub), g.Unwrap())
}

func TestGuardedRateLimit(t *testing.T) {
	stub := &stubProvider{name: "Stub"}
	g := NewGuarded(stub, 2, 1, retry.New(), nil)
	now := time.Now()
	g.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := g.ChatCompletion(context.Background(), CompletionRequest{Model: "m"})
		require.NoError(t, err)
	}
	_, err := g.ChatCompletion(context.Background(), CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeRateLimitExceeded, gwerrors.CodeOf(err))
	ge, _ := gwerrors.As(err)
	assert.Equal(t, 30, ge.Details["retry_after"])

	g.SetMaxRPM(0)
	_, err = g.ChatCompletion(context.Background(), CompletionRequest{Model: "m"})
	assert.NoError(t, err)
}

func TestGuardedSetMaxRPMWhileServing(t *testing.T) {
	stub := &stubProvider{name: "Stub"}
	g := NewGuarded(stub, 1000, 1, retry.New(), nil)
	limiter := g.limiter

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.SetMaxRPM((i + j) % 3 * 500)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = g.ChatCompletion(context.Background(), CompletionRequest{Model: "m"})
			}
		}()
	}
	wg.Wait()

	assert.Same(t, limiter, g.limiter, "the budget is changed in place")
	g.SetMaxRPM(0)
	for i := 0; i < 5; i++ {
		_, err := g.ChatCompletion(context.Background(), CompletionRequest{Model: "m"})
		require.NoError(t, err)
	}
}

func TestServiceHealthAndStatus(t *testing.T) {
	r := loadedRegistry(t)
	coord := retry.New()
	f := NewFactory(r, Settings{}, coord, nil, zerolog.Nop())
	f.Register(NameOpenAI, func(cfg gateway.Provider, s Settings, _ zerolog.Logger) (Provider, error) {
		return &stubProvider{name: NameOpenAI, failures: 1}, nil
	})
	svc := NewService(r, f, coord, map[string]string{}, zerolog.Nop())

	health := svc.HealthCheck(context.Background(), "")
	assert.Equal(t, map[string]bool{NameMock: true, NameOpenAI: false}, health)
	assert.Equal(t, map[string]bool{"Nope": false}, svc.HealthCheck(context.Background(), "Nope"))

	st := svc.Status()
	assert.Equal(t, 2, st.Counts.Providers)
	assert.Equal(t, 2, st.Counts.CachedInstances)
	assert.False(t, st.Status[NameOpenAI].HasAPIKey)
	assert.True(t, st.Status[NameMock].HasAPIKey)
	assert.Equal(t, []string{NameOpenAI}, svc.MissingKeys())

	assert.True(t, svc.UpdateMaxRPM(NameMock, 10))
	cfg, _ := r.ProviderConfig(NameMock)
	assert.Equal(t, 10, cfg.MaxRequestsPerMinute)
	assert.False(t, svc.UpdateMaxRPM("Nope", 10))

	require.NoError(t, svc.Reload(context.Background(), testCatalog()))
	assert.Empty(t, f.Cached())
}

func TestOllamaAdapter(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"response": "hi there", "done": true, "prompt_eval_count": 12, "eval_count": 3,
			})
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"codellama"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, 5*time.Second, zerolog.Nop())
	resp, err := o.ChatCompletion(context.Background(), CompletionRequest{
		Model:       "llama3",
		Temperature: 0.2,
		Messages: []gateway.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
	assert.Equal(t, "System: be brief\nUser: hello", got.Prompt)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 1024, got.Options["num_predict"])

	models, err := o.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "codellama"}, models)
	assert.True(t, o.HealthCheck(context.Background()))
}

func TestOllamaClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, time.Second, zerolog.Nop())
	_, err := o.ChatCompletion(context.Background(), CompletionRequest{Model: "nope"})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.False(t, o.HealthCheck(context.Background()))
}

func TestGeminiAdapter(t *testing.T) {
	var body geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-1.5-flash:generateContent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"one two three four five six seven eight nine ten"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	g := NewGemini("secret", srv.URL, 5*time.Second, zerolog.Nop())
	resp, err := g.ChatCompletion(context.Background(), CompletionRequest{
		Model: "gemini-1.5-flash",
		Messages: []gateway.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "a"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2048, body.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, body.SystemInstruction)
	require.Len(t, body.Contents, 2)
	assert.Equal(t, "model", body.Contents[1].Role)

	// 10 words * 1.3 = 13 split 30/70
	assert.Equal(t, 3, resp.InputTokens)
	assert.Equal(t, 9, resp.OutputTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.True(t, g.HealthCheck(context.Background()))

	unkeyed := NewGemini("", srv.URL, time.Second, zerolog.Nop())
	_, err = unkeyed.ChatCompletion(context.Background(), CompletionRequest{Model: "gemini-1.5-flash"})
	assert.True(t, retry.IsPermanent(err))
	assert.False(t, unkeyed.HealthCheck(context.Background()))
}

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

type fakeCatalog struct {
	providers map[string]gateway.Provider
	models    map[string]gateway.Model
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{providers: map[string]gateway.Provider{}, models: map[string]gateway.Model{}}
}

func (c *fakeCatalog) addProvider(name string, active bool, rpm int) gateway.Provider {
	p := gateway.Provider{ID: uuid.New(), Name: name, IsActive: active, MaxRequestsPerMinute: rpm}
	c.providers[name] = p
	return p
}

func (c *fakeCatalog) addModel(p gateway.Provider, m gateway.Model) {
	m.ProviderID = p.ID
	m.ProviderName = p.Name
	if m.Type == "" {
		m.Type = gateway.ModelText
	}
	c.models[m.Name] = m
}

func (c *fakeCatalog) Models() []gateway.Model {
	out := make([]gateway.Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *fakeCatalog) ModelConfig(name string) (gateway.Model, bool) {
	m, ok := c.models[name]
	return m, ok
}

func (c *fakeCatalog) ProviderConfig(name string) (gateway.Provider, bool) {
	p, ok := c.providers[name]
	return p, ok
}

func (c *fakeCatalog) ProviderNameForModel(model string) (string, bool) {
	m, ok := c.models[model]
	return m.ProviderName, ok
}

// standardCatalog mirrors the shipped default catalog.
func standardCatalog() *fakeCatalog {
	c := newFakeCatalog()
	mock := c.addProvider("MockAI", true, 600)
	openai := c.addProvider("OpenAI", true, 60)
	c.addModel(mock, gateway.Model{Name: "mock-model", ContextWindow: 8192, Priority: 5, IsAvailable: true})
	c.addModel(openai, gateway.Model{Name: "gpt-4o", ContextWindow: 128000, Priority: 9, IsAvailable: true,
		InputPricePer1K: 0.005, OutputPricePer1K: 0.015})
	c.addModel(openai, gateway.Model{Name: "gpt-4o-mini", ContextWindow: 128000, Priority: 8, IsAvailable: true,
		InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006})
	return c
}

type fakeLoadStore struct {
	mu        sync.Mutex
	providers []gateway.Provider
	activity  map[string]gateway.ProviderActivity
	updates   map[string]int
	calls     int
	err       error
}

func (s *fakeLoadStore) ListProviders(ctx context.Context, activeOnly bool) ([]gateway.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.providers, s.err
}

func (s *fakeLoadStore) ProviderActivitySince(ctx context.Context, since time.Time) (map[string]gateway.ProviderActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity, s.err
}

func (s *fakeLoadStore) UpdateProviderMaxRPM(ctx context.Context, name string, maxRPM int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = map[string]int{}
	}
	s.updates[name] = maxRPM
	return nil
}

type fakeSettings struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *fakeSettings) GetSetting(ctx context.Context, key string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (s *fakeSettings) PutSetting(ctx context.Context, key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = map[string][]byte{}
	}
	raw, err := json.Marshal(v)
	s.data[key] = raw
	return err
}

func userMessages(texts ...string) []gateway.Message {
	out := make([]gateway.Message, len(texts))
	for i, t := range texts {
		out[i] = gateway.Message{Role: gateway.RoleUser, Content: t}
	}
	return out
}

func TestAnalyzerPromptTypes(t *testing.T) {
	a := NewAnalyzer()
	tests := []struct {
		prompt string
		want   string
	}{
		{"Write code for a sorting function", "code_generation"},
		{"Переведи текст на английский", "translation"},
		{"Give me a short summary of the article", "summarization"},
		{"Please compare these two options", "analysis"},
		{"Tell me a story about dragons", "creative_writing"},
		{"Почему небо голубое?", "qa"},
		{"hello there", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Analyze(userMessages(tt.prompt)).PromptType)
		})
	}
}

func TestAnalyzerEstimates(t *testing.T) {
	a := NewAnalyzer()

	got := a.Analyze(userMessages("Write code for a sorting function"))
	// average word length 4.67 -> 33 chars / 3
	assert.Equal(t, 11, got.TokenEstimate)
	assert.Equal(t, ComplexitySimple, got.Complexity)
	assert.Equal(t, 33, got.TextLength)
	assert.Equal(t, 1, got.MessageCount)
	assert.False(t, got.HasSpecificInstructions)

	long := strings.Repeat("abcdefgh ", 200)
	got = a.Analyze(userMessages(long))
	assert.Equal(t, 900, got.TokenEstimate)
	assert.Equal(t, ComplexityComplex, got.Complexity)
	assert.Equal(t, 503, len(got.Preview))
	assert.True(t, strings.HasSuffix(got.Preview, "..."))

	assert.True(t, a.Analyze(userMessages("Используй формат JSON для ответа")).HasSpecificInstructions)
	assert.Equal(t, 1, EstimateTokens(""))

	two := a.Analyze(userMessages("ab", "cd"))
	assert.Equal(t, 5, two.TextLength, "messages are joined with a newline")
}

func TestComplexityBoundaries(t *testing.T) {
	assert.Equal(t, ComplexitySimple, ComplexityFor(99))
	assert.Equal(t, ComplexityStandard, ComplexityFor(100))
	assert.Equal(t, ComplexityComplex, ComplexityFor(500))
	assert.Equal(t, ComplexityAdvanced, ComplexityFor(1500))
	assert.Equal(t, "Very complex", ComplexityAdvanced.Label())
	assert.Equal(t, "Unknown", Complexity("x").Label())

	d := DefaultAnalysis()
	assert.Equal(t, 100, d.TokenEstimate)
	assert.Equal(t, "general", d.PromptType)
}

func TestFilter(t *testing.T) {
	c := newFakeCatalog()
	active := c.addProvider("Active", true, 60)
	inactive := c.addProvider("Sleeping", false, 60)
	c.addModel(active, gateway.Model{Name: "ok", ContextWindow: 8192, Priority: 5, IsAvailable: true})
	c.addModel(active, gateway.Model{Name: "tiny", ContextWindow: 512, Priority: 5, IsAvailable: true})
	c.addModel(active, gateway.Model{Name: "off", ContextWindow: 8192, Priority: 5, IsAvailable: false})
	c.addModel(active, gateway.Model{Name: "eyes", Type: gateway.ModelVision, ContextWindow: 8192, Priority: 5, IsAvailable: true})
	c.addModel(active, gateway.Model{Name: "snug", ContextWindow: 1200, Priority: 5, IsAvailable: true})
	c.addModel(inactive, gateway.Model{Name: "asleep", ContextWindow: 8192, Priority: 5, IsAvailable: true})

	f := NewFilter(DefaultRequirements(), zerolog.Nop())
	names := func(cs []Candidate) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Model.Name)
		}
		return out
	}

	general := Analysis{TokenEstimate: 100, PromptType: "general"}
	assert.Equal(t, []string{"eyes", "ok", "snug"}, names(f.Apply(c.Models(), general, c)))

	code := Analysis{TokenEstimate: 100, PromptType: "code_generation"}
	assert.Equal(t, []string{"ok", "snug"}, names(f.Apply(c.Models(), code, c)))

	// 900 tokens need 1350 of context
	big := Analysis{TokenEstimate: 900, PromptType: "general"}
	assert.Equal(t, []string{"eyes", "ok"}, names(f.Apply(c.Models(), big, c)))

	unknown := []gateway.Model{{Name: "ghost"}}
	assert.Empty(t, f.Apply(unknown, general, c))
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	_, err := NewScorer(Weights{Cost: 0.5, Complexity: 0.4})
	assert.Error(t, err)

	_, err = NewScorer(Weights{Cost: 1.2, Load: -0.2})
	assert.Error(t, err)

	_, err = NewScorer(Weights{Cost: 0.3, Complexity: 0.25, Context: 0.2, Priority: 0.15, Load: 0.1005})
	assert.NoError(t, err, "tolerance is 0.001")
}

func TestScoreCandidate(t *testing.T) {
	c := standardCatalog()
	s, err := NewScorer(DefaultWeights())
	require.NoError(t, err)

	mock, _ := c.ModelConfig("mock-model")
	prov, _ := c.ProviderConfig("MockAI")
	analysis := Analysis{TokenEstimate: 11, Complexity: ComplexitySimple}

	sc := s.Score(Candidate{Model: mock, Provider: prov}, analysis, map[string]float64{})
	assert.Equal(t, 1.0, sc.CostScore)
	assert.Equal(t, 0.9, sc.ComplexityScore)
	assert.Equal(t, 1.0, sc.ContextScore)
	assert.InDelta(t, 4.0/9, sc.PriorityScore, 1e-9)
	assert.Equal(t, 1.0, sc.LoadScore)
	assert.InDelta(t, 0.8917, sc.FinalScore, 1e-4)
	assert.Equal(t, []string{
		"Model: mock-model (MockAI)",
		"✓ Excellent cost efficiency",
		"✓ Well-suited for prompt complexity",
		"✓ Ample context window",
		"~ Low priority model",
		"✓ Low provider load",
		"Final score: 0.892",
	}, sc.Reasoning)

	busy := s.Score(Candidate{Model: mock, Provider: prov}, analysis, map[string]float64{"MockAI": 0.5})
	assert.Equal(t, 0.5, busy.LoadScore)
	assert.Contains(t, busy.Reasoning, "✗ High provider load")
}

func TestScoringTables(t *testing.T) {
	cand := func(in, out float64, ctx, prio int) Candidate {
		return Candidate{Model: gateway.Model{InputPricePer1K: in, OutputPricePer1K: out, ContextWindow: ctx, Priority: prio}}
	}

	assert.Equal(t, 1.0, costScore(cand(0.001, 0.001, 0, 0)))
	assert.Equal(t, 0.8, costScore(cand(0.004, 0.012, 0, 0)))
	assert.Equal(t, 0.6, costScore(cand(0.03, 0.06, 0, 0)))
	assert.Equal(t, 0.4, costScore(cand(0.1, 0.1, 0, 0)))
	assert.Equal(t, 0.2, costScore(cand(0.2, 0.2, 0, 0)))

	std := Analysis{Complexity: ComplexityStandard}
	cpx := Analysis{Complexity: ComplexityComplex}
	adv := Analysis{Complexity: ComplexityAdvanced}
	assert.Equal(t, 0.8, complexityScore(cand(0, 0, 4000, 1), std))
	assert.Equal(t, 0.6, complexityScore(cand(0, 0, 3999, 1), std))
	assert.Equal(t, 0.9, complexityScore(cand(0, 0, 8000, 1), cpx))
	assert.Equal(t, 0.7, complexityScore(cand(0, 0, 4000, 1), cpx))
	assert.Equal(t, 0.4, complexityScore(cand(0, 0, 100, 1), cpx))
	assert.Equal(t, 1.0, complexityScore(cand(0, 0, 16000, 1), adv))
	assert.Equal(t, 0.8, complexityScore(cand(0, 0, 8000, 1), adv))
	assert.Equal(t, 0.3, complexityScore(cand(0, 0, 4000, 1), adv))

	// 100 tokens need 150
	a := Analysis{TokenEstimate: 100}
	assert.Equal(t, 1.0, contextScore(cand(0, 0, 450, 1), a))
	assert.Equal(t, 0.9, contextScore(cand(0, 0, 300, 1), a))
	assert.Equal(t, 0.8, contextScore(cand(0, 0, 225, 1), a))
	assert.Equal(t, 0.6, contextScore(cand(0, 0, 180, 1), a))
	assert.Equal(t, 0.4, contextScore(cand(0, 0, 150, 1), a))
	assert.Equal(t, 0.1, contextScore(cand(0, 0, 149, 1), a))
	assert.Equal(t, 1.0, contextScore(cand(0, 0, 1, 1), Analysis{}))

	assert.Equal(t, 0.0, priorityScore(cand(0, 0, 0, 1)))
	assert.Equal(t, 1.0, priorityScore(cand(0, 0, 0, 10)))
	assert.Equal(t, 1.0, priorityScore(cand(0, 0, 0, 12)))

	assert.InDelta(t, 0.02, EstimateCost(0.005, 0.015, 1000), 1e-12)
}

func TestSelectorBest(t *testing.T) {
	s, err := NewSelector(DefaultThreshold, zerolog.Nop())
	require.NoError(t, err)

	var scores []Score
	for i := 0; i < 12; i++ {
		scores = append(scores, Score{
			ModelName:     fmt.Sprintf("m%02d", i),
			ProviderName:  "P",
			FinalScore:    0.25 + float64(i)*0.05,
			EstimatedCost: 0.0000012345,
			Reasoning:     []string{"Model: x (P)", "✓ Excellent cost efficiency", "~ May struggle with prompt complexity", "✓ Ample context window"},
		})
	}

	d, ok := s.Best(scores)
	require.True(t, ok)
	assert.Equal(t, "m11", d.ModelName)
	assert.False(t, d.IsDefault)
	require.Len(t, d.Candidates, 10, "eleven pass the threshold, ten are listed")
	assert.Equal(t, 1, d.Candidates[0].Rank)
	assert.Equal(t, 0.8, d.Candidates[0].Score)
	assert.Equal(t, 0.000001, d.Candidates[0].Cost)
	assert.Equal(t, "✓ Excellent cost efficiency; ~ May struggle with prompt complexity", d.Candidates[0].ReasoningSummary)

	require.NoError(t, s.SetThreshold(0.9))
	_, ok = s.Best(scores)
	assert.False(t, ok)

	assert.Error(t, s.SetThreshold(1.5))
	assert.Error(t, s.SetThreshold(-0.1))
	assert.Equal(t, 0.9, s.Threshold())

	_, err = NewSelector(2, zerolog.Nop())
	assert.Error(t, err)
}

func TestSelectorFallbacks(t *testing.T) {
	s, err := NewSelector(DefaultThreshold, zerolog.Nop())
	require.NoError(t, err)

	d := s.Fallback(standardCatalog().Models())
	assert.Equal(t, "gpt-4o", d.ModelName, "first of the largest context windows wins")
	assert.Equal(t, "OpenAI", d.ProviderName)
	assert.True(t, d.IsDefault)
	assert.Equal(t, []string{"Selected as fallback (largest context window)"}, d.Reasoning)

	d = s.Fallback(nil)
	assert.Equal(t, gateway.DefaultModel, d.ModelName)
	assert.Equal(t, []string{"Using default fallback model"}, d.Reasoning)

	h := HardcodedFallback()
	assert.True(t, h.IsDefault)
	assert.Equal(t, []string{"Hardcoded fallback due to system error"}, h.Reasoning)
}

func TestLoadManager(t *testing.T) {
	store := &fakeLoadStore{
		providers: []gateway.Provider{
			{Name: "MockAI", MaxRequestsPerMinute: 1},
			{Name: "OpenAI", MaxRequestsPerMinute: 60},
			{Name: "Idle"},
		},
		activity: map[string]gateway.ProviderActivity{
			"MockAI": {Requests: 120, AvgProcessingMS: 250},
			"OpenAI": {Requests: 36},
		},
	}
	lm := NewLoadManager(store, time.Minute, zerolog.Nop())
	ctx := context.Background()

	loads := lm.Loads(ctx)
	assert.Equal(t, 1.0, loads["MockAI"], "load is capped at 1")
	assert.InDelta(t, 0.01, loads["OpenAI"], 1e-9)
	assert.Equal(t, 0.0, loads["Idle"])

	store.activity = map[string]gateway.ProviderActivity{}
	assert.Equal(t, 1.0, lm.Loads(ctx)["MockAI"], "served from cache")
	assert.Equal(t, 1, store.calls)

	lm.ClearCache()
	assert.Equal(t, 0.0, lm.Loads(ctx)["MockAI"])

	detailed, err := lm.DetailedLoads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, detailed["Idle"].MaxRequestsPerMinute, "missing limits default to 60")

	require.NoError(t, lm.UpdateProviderMaxRequests(ctx, "OpenAI", 120))
	assert.Equal(t, 120, store.updates["OpenAI"])
	assert.Error(t, lm.UpdateProviderMaxRequests(ctx, "OpenAI", 0))

	store.err = fmt.Errorf("disk gone")
	lm.ClearCache()
	assert.Empty(t, lm.Loads(ctx))
}

func TestLoadPercentage(t *testing.T) {
	store := &fakeLoadStore{
		providers: []gateway.Provider{{Name: "OpenAI", MaxRequestsPerMinute: 60}},
		activity:  map[string]gateway.ProviderActivity{"OpenAI": {Requests: 1800, AvgProcessingMS: 40}},
	}
	lm := NewLoadManager(store, 0, zerolog.Nop())
	d, err := lm.DetailedLoads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50.0, d["OpenAI"].LoadPercentage)
	assert.Equal(t, 30.0, d["OpenAI"].RequestsPerMinute)
	assert.Equal(t, 40.0, d["OpenAI"].AvgProcessingTimeMS)
}

func newTestEngine(t *testing.T, catalog ModelCatalog, settings SettingsStore) *Engine {
	t.Helper()
	lm := NewLoadManager(&fakeLoadStore{}, time.Minute, zerolog.Nop())
	e, err := NewEngine(catalog, lm, settings, nil, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestEngineSelectsCheapCapableModel(t *testing.T) {
	e := newTestEngine(t, standardCatalog(), nil)

	d := e.SelectModel(context.Background(), userMessages("Tell me a joke"))
	require.NotNil(t, d)
	assert.False(t, d.IsDefault)
	assert.Equal(t, "gpt-4o-mini", d.ModelName)
	require.NotNil(t, d.Analysis)
	assert.Equal(t, ComplexitySimple, d.Analysis.Complexity)
	assert.Len(t, d.Candidates, 3)

	stats := e.Stats()
	assert.Equal(t, 1, stats.TotalDecisions)
	assert.Equal(t, 1, stats.SuccessfulDecisions)
	assert.NotNil(t, stats.LastDecisionTime)
}

func TestEngineFallsBack(t *testing.T) {
	e := newTestEngine(t, standardCatalog(), nil)
	ctx := context.Background()

	// larger than every context window
	huge := strings.Repeat("abcdefgh ", 50000)
	d := e.SelectModel(ctx, userMessages(huge))
	assert.True(t, d.IsDefault)
	assert.Equal(t, "gpt-4o", d.ModelName)

	require.NoError(t, e.UpdateThreshold(ctx, 1.0))
	d = e.SelectModel(ctx, userMessages("hi"))
	assert.True(t, d.IsDefault)

	perf := e.PerformanceStats(ctx)
	assert.Equal(t, 2, perf.Stats.FallbackDecisions)
	assert.Equal(t, 100.0, perf.FallbackRate)
	assert.Equal(t, 0.0, perf.SuccessRate)
	assert.Equal(t, 1.0, perf.Threshold)

	empty := newTestEngine(t, newFakeCatalog(), nil)
	d = empty.SelectModel(ctx, userMessages("hi"))
	assert.Equal(t, []string{"Using default fallback model"}, d.Reasoning)
}

type panickingCatalog struct{ *fakeCatalog }

func (panickingCatalog) Models() []gateway.Model { panic("registry unavailable") }

func TestEngineHardcodedFallback(t *testing.T) {
	e := newTestEngine(t, panickingCatalog{newFakeCatalog()}, nil)
	d := e.SelectModel(context.Background(), userMessages("hi"))
	assert.Equal(t, []string{"Hardcoded fallback due to system error"}, d.Reasoning)
	assert.Equal(t, 1, e.Stats().FallbackDecisions)
}

func TestEnginePersistsTuning(t *testing.T) {
	settings := &fakeSettings{}
	ctx := context.Background()
	e := newTestEngine(t, standardCatalog(), settings)

	assert.Error(t, e.UpdateWeights(ctx, Weights{Cost: 1, Load: 1}))
	w := Weights{Cost: 0.2, Complexity: 0.2, Context: 0.2, Priority: 0.2, Load: 0.2}
	require.NoError(t, e.UpdateWeights(ctx, w))
	require.NoError(t, e.UpdateThreshold(ctx, 0.5))
	assert.Error(t, e.UpdateThreshold(ctx, 3))

	restored := newTestEngine(t, standardCatalog(), settings)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, w, restored.Weights())
	assert.Equal(t, 0.5, restored.Threshold())

	fresh := newTestEngine(t, standardCatalog(), &fakeSettings{})
	require.NoError(t, fresh.Restore(ctx))
	assert.Equal(t, DefaultWeights(), fresh.Weights())
}

func TestStrategies(t *testing.T) {
	s := Strategies()
	require.Len(t, s, 4)
	assert.Equal(t, "auto", s[0].ID)
	for _, st := range s {
		assert.True(t, st.Enabled)
	}
}

package providers

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var mockReplies = []string{
	"Hello! I am a test AI assistant. How can I help?",
	"This is a test response demonstrating the gateway pipeline.",
	"Request processed successfully. A real model would answer here.",
	"The system works correctly. Feel free to try other features.",
	"Welcome to the AI Gateway! All systems are operating normally.",
}

type keywordReply struct {
	keywords []string
	reply    func(now time.Time) string
}

// Checked in order; the first group with a matching keyword wins.
var mockKeywordReplies = []keywordReply{
	{[]string{"привет", "hello"}, fixed("Hello! Glad to see you at the AI Gateway!")},
	{[]string{"погод", "weather"}, fixed("Great weather today for programming and testing AI systems!")},
	{[]string{"помощ", "help"}, fixed("I can help you test the AI Gateway. Try sending different requests!")},
	{[]string{"код", "code"}, fixed("```python\nprint('Hello, AI Gateway!')\n```\nHere is a simple Python example.")},
	{[]string{"сколько стоит", "стоимость", "price", "cost"}, fixed("This is a test model, so the cost is 0. Real models are billed by token usage.")},
	{[]string{"время", "time"}, func(now time.Time) string {
		return "Current time: " + now.Format("15:04:05") + ". This is a test response."
	}},
}

func fixed(s string) func(time.Time) string {
	return func(time.Time) string { return s }
}

// Mock answers locally with canned replies after a random delay.
type Mock struct {
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewMock creates the mock provider. A zero latency range disables the delay.
func NewMock(minLatency, maxLatency time.Duration) *Mock {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &Mock{
		minLatency: minLatency,
		maxLatency: maxLatency,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

func (m *Mock) Name() string { return NameMock }

func (m *Mock) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if d := m.latency(); d > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}

	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	content := m.reply(strings.ToLower(last))

	return &CompletionResponse{
		ID:           "mock-" + uuid.NewString(),
		Content:      content,
		ModelUsed:    req.Model,
		ProviderName: NameMock,
		InputTokens:  maxInt(1, int(float64(wordCount(joinContents(req.Messages)))*0.75)),
		OutputTokens: maxInt(1, int(float64(wordCount(content))*0.75)),
		FinishReason: "stop",
	}, nil
}

func (m *Mock) HealthCheck(ctx context.Context) bool { return true }

func (m *Mock) reply(lower string) string {
	for _, kr := range mockKeywordReplies {
		for _, kw := range kr.keywords {
			if strings.Contains(lower, kw) {
				return kr.reply(m.now())
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return mockReplies[m.rng.Intn(len(mockReplies))]
}

func (m *Mock) latency() time.Duration {
	if m.maxLatency <= 0 {
		return 0
	}
	span := m.maxLatency - m.minLatency
	if span <= 0 {
		return m.minLatency
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minLatency + time.Duration(m.rng.Int63n(int64(span)))
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	gwerrors "github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/retry"
)

var tracer = otel.Tracer("github.com/Azure/ai-gateway/pkg/providers")

// CallError wraps a failed completion with the number of attempts made.
type CallError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *CallError) Error() string { return e.Err.Error() }
func (e *CallError) Unwrap() error { return e.Err }

// Attempts returns how many attempts produced err, or 0.
func Attempts(err error) int {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Attempts
	}
	return 0
}

// Guarded enforces a provider's requests-per-minute budget and runs each call
// through the retry coordinator.
type Guarded struct {
	inner       Provider
	limiter     *rate.Limiter
	coordinator *retry.Coordinator
	policy      retry.Policy
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewGuarded wraps p. rpm <= 0 disables limiting; retries <= 0 means one attempt.
func NewGuarded(p Provider, rpm, retries int, coordinator *retry.Coordinator, m *metrics.Metrics) *Guarded {
	if coordinator == nil {
		coordinator = retry.New()
	}
	g := &Guarded{
		inner:       p,
		coordinator: coordinator,
		policy:      retry.PolicyForAttempts(retries),
		metrics:     m,
		now:         time.Now,
		limiter:     newLimiter(rpm),
	}
	return g
}

// SetMaxRPM changes the budget in place; burst equals one minute of
// requests. It is safe to call while completions are in flight.
func (g *Guarded) SetMaxRPM(rpm int) {
	if rpm <= 0 {
		g.limiter.SetLimit(rate.Inf)
		return
	}
	g.limiter.SetBurst(rpm)
	g.limiter.SetLimit(rate.Every(time.Minute / time.Duration(rpm)))
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
}

func (g *Guarded) Name() string { return g.inner.Name() }

// Unwrap returns the adapter behind the guard.
func (g *Guarded) Unwrap() Provider { return g.inner }

func (g *Guarded) ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	name := g.inner.Name()
	ctx, span := tracer.Start(ctx, "provider.chat_completion", trace.WithAttributes(
		attribute.String("gateway.provider", name),
		attribute.String("gateway.model", req.Model),
	))
	defer span.End()

	now := g.now()
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		g.metrics.RecordRateLimited("provider")
		return nil, gwerrors.RateLimitExceeded("provider "+name, time.Minute)
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		g.metrics.RecordRateLimited("provider")
		span.SetStatus(codes.Error, "rate limited")
		return nil, gwerrors.RateLimitExceeded("provider "+name, d)
	}

	var (
		resp     *CompletionResponse
		attempts int
	)
	start := time.Now()
	err := g.coordinator.Execute(ctx, name, g.policy, func(ctx context.Context, attempt int) error {
		attempts = attempt
		var callErr error
		resp, callErr = g.inner.ChatCompletion(ctx, req)
		return callErr
	})
	g.metrics.RecordProviderCall(name, req.Model, time.Since(start), err)
	span.SetAttributes(attribute.Int("gateway.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, retry.ErrCircuitOpen) {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return nil, &CallError{Provider: name, Attempts: attempts, Err: err}
	}
	span.SetAttributes(
		attribute.Int("gateway.input_tokens", resp.InputTokens),
		attribute.Int("gateway.output_tokens", resp.OutputTokens),
	)
	return resp, nil
}

func (g *Guarded) HealthCheck(ctx context.Context) bool {
	return g.inner.HealthCheck(ctx)
}

// BreakerState reports the circuit state for this provider.
func (g *Guarded) BreakerState() retry.BreakerState {
	return g.coordinator.State(g.inner.Name())
}

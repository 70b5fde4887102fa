// Package retry runs provider calls with backoff and per-name circuit breakers.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Policy controls attempts and delays.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64 // 0 fixed, 1 linear, >1 exponential
}

// DefaultPolicy is three attempts with exponential backoff from 200ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	}
}

// PolicyForAttempts returns the default policy with a custom attempt count.
func PolicyForAttempts(n int) Policy {
	p := DefaultPolicy()
	if n > 0 {
		p.MaxAttempts = n
	}
	return p
}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	CircuitClosed   BreakerState = "closed"
	CircuitOpen     BreakerState = "open"
	CircuitHalfOpen BreakerState = "half_open"
)

// Coordinator executes functions under a policy with one breaker per name.
type Coordinator struct {
	circuitBreakers map[string]*circuitBreaker
	mu              sync.RWMutex
	rng             *rand.Rand

	failureThreshold int
	recoveryTimeout  time.Duration
}

// New creates a new retry coordinator
func New() *Coordinator {
	return &Coordinator{
		circuitBreakers:  make(map[string]*circuitBreaker),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		failureThreshold: 5,
		recoveryTimeout:  30 * time.Second,
	}
}

// WithBreaker overrides breaker thresholds for breakers created afterwards.
func (c *Coordinator) WithBreaker(failureThreshold int, recoveryTimeout time.Duration) *Coordinator {
	c.failureThreshold = failureThreshold
	c.recoveryTimeout = recoveryTimeout
	return c
}

// Execute runs fn until it succeeds, returns a permanent error, the policy
// is exhausted or ctx ends. The last error is returned wrapped.
func (c *Coordinator) Execute(ctx context.Context, name string, policy Policy, fn Func) error {
	cb := c.getCircuitBreaker(name)
	if !cb.CanExecute() {
		return fmt.Errorf("%w for %s", ErrCircuitOpen, name)
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("context cancelled after %d attempts: %w", attempt-1, lastErr)
			}
			return fmt.Errorf("context cancelled: %w", err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			cb.RecordSuccess()
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}
		cb.RecordFailure()

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", lastErr)
		case <-time.After(c.calculateDelay(attempt-1, policy)):
		}
	}

	if policy.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed: %w", policy.MaxAttempts, lastErr)
}

// State returns the breaker state for name.
func (c *Coordinator) State(name string) BreakerState {
	return c.getCircuitBreaker(name).GetState()
}

// Reset closes the breaker for name.
func (c *Coordinator) Reset(name string) {
	c.getCircuitBreaker(name).Reset()
}

// calculateDelay calculates the delay for the next retry attempt
func (c *Coordinator) calculateDelay(attempt int, policy Policy) time.Duration {
	var delay time.Duration

	switch policy.BackoffMultiplier {
	case 0:
		delay = policy.InitialDelay
	case 1:
		delay = policy.InitialDelay * time.Duration(attempt+1)
	default:
		delay = time.Duration(float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt)))
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	// 10% jitter
	if delay >= 10 {
		c.mu.Lock()
		jitter := time.Duration(c.rng.Int63n(int64(delay / 10)))
		c.mu.Unlock()
		delay += jitter
	}

	return delay
}

// getCircuitBreaker gets or creates a circuit breaker for the given name
func (c *Coordinator) getCircuitBreaker(name string) *circuitBreaker {
	c.mu.RLock()
	cb, ok := c.circuitBreakers[name]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		if cb, ok = c.circuitBreakers[name]; !ok {
			cb = newCircuitBreaker(c.failureThreshold, c.recoveryTimeout)
			c.circuitBreakers[name] = cb
		}
		c.mu.Unlock()
	}

	return cb
}

type circuitBreaker struct {
	state        BreakerState
	failures     int
	lastFailure  time.Time
	successCount int
	mu           sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int
}

func newCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		successThreshold: 2,
	}
}

func (cb *circuitBreaker) GetState() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successCount = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()
	cb.successCount = 0

	if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

func (cb *circuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successCount = 0
	cb.lastFailure = time.Time{}
}

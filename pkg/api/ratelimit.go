package api

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter applies a token bucket per client key and periodically
// evicts idle entries.
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil when rps or burst is not positive, which
// disables limiting.
func newClientLimiter(rps float64, burst int, idleTTL time.Duration) *clientLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &clientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byKey:   make(map[string]*limiterEntry),
		idleTTL: idleTTL,
	}
}

// Allow consumes one token for key at now. When denied it reports how long
// the client should wait for the next token.
func (l *clientLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	e.lastSeen = now

	allowed := true
	var wait time.Duration
	r := e.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		allowed = false
		wait = d
	}

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed, wait
}

func (l *clientLimiter) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

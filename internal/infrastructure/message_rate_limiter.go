package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MessageRateLimiter keeps one token bucket per key (end user, admin) and
// forgets keys that have been idle for a while.
type MessageRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rate    rate.Limit
	burst   int
	idle    time.Duration
}

// NewMessageRateLimiter allows r events per second with the given burst.
func NewMessageRateLimiter(r rate.Limit, burst int) *MessageRateLimiter {
	return &MessageRateLimiter{
		entries: make(map[string]*limiterEntry),
		rate:    r,
		burst:   burst,
		idle:    10 * time.Minute,
	}
}

// Allow consumes one token for key if available.
func (rl *MessageRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Size is the number of tracked keys.
func (rl *MessageRateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Sweep drops keys idle longer than the idle window.
func (rl *MessageRateLimiter) Sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, e := range rl.entries {
		if now.Sub(e.lastSeen) > rl.idle {
			delete(rl.entries, key)
		}
	}
}

// RunCleanup sweeps every few minutes until ctx is done.
func (rl *MessageRateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

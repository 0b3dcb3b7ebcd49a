// Package ratelimit admits or denies dataset requests per client identity
// using two fixed windows: a per-minute and a per-hour counter, both held in
// a shared store with TTL expiry. Counters are never reset explicitly; they
// vanish when their window elapses.
//
// The fixed-window model allows a short burst of up to twice the nominal cap
// across a window boundary. That is an accepted tradeoff for O(1) storage per
// client.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sitekit/search-assistant/pkg/config"
)

// CounterStore is the persisted counter backend. Incr must be atomic so
// concurrent requests from one client never lose an update; the expiry is
// fixed when the increment creates the counter.
type CounterStore interface {
	GetInt(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Window     string        // "minute" or "hour" when denied
	RetryAfter time.Duration // hint for the Retry-After header when denied
}

// Limiter enforces the dual-window budget.
type Limiter struct {
	store CounterStore
	cfg   config.RateLimitConfig
}

// New creates a Limiter over store with the given caps and windows.
func New(store CounterStore, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

// Allow reads both counters for clientKey and denies when either is at or
// above its cap; otherwise it increments both and admits. The two-counter
// check-and-increment is deliberately not atomic as a pair: a narrow race can
// admit one extra request at a window boundary, which is acceptable. Each
// individual increment is atomic in the store.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	minKey, hourKey := l.keys(clientKey)

	minCount, err := l.store.GetInt(ctx, minKey)
	if err != nil {
		return Decision{}, fmt.Errorf("reading minute counter: %w", err)
	}
	hourCount, err := l.store.GetInt(ctx, hourKey)
	if err != nil {
		return Decision{}, fmt.Errorf("reading hour counter: %w", err)
	}

	if minCount >= int64(l.cfg.PerMinute) {
		return Decision{Window: "minute", RetryAfter: l.cfg.MinuteWindow}, nil
	}
	if hourCount >= int64(l.cfg.PerHour) {
		return Decision{Window: "hour", RetryAfter: l.cfg.HourWindow}, nil
	}

	if _, err := l.store.Incr(ctx, minKey, l.cfg.MinuteWindow); err != nil {
		return Decision{}, fmt.Errorf("incrementing minute counter: %w", err)
	}
	if _, err := l.store.Incr(ctx, hourKey, l.cfg.HourWindow); err != nil {
		return Decision{}, fmt.Errorf("incrementing hour counter: %w", err)
	}
	return Decision{Allowed: true}, nil
}

// keys derives the two counter keys for a client. The client identity is
// hashed so raw addresses never appear in the store.
func (l *Limiter) keys(clientKey string) (string, string) {
	sum := sha256.Sum256([]byte(clientKey))
	id := hex.EncodeToString(sum[:16])
	return "rl:minute:" + id, "rl:hour:" + id
}

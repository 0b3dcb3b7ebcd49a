package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sitekit/search-assistant/pkg/config"
)

// fakeCounters is an in-memory CounterStore with a manual clock. Expiry is
// fixed when an increment creates the counter, matching the Redis-backed
// store.
type fakeCounters struct {
	now    time.Time
	counts map[string]int64
	expiry map[string]time.Time
	err    error
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		counts: make(map[string]int64),
		expiry: make(map[string]time.Time),
	}
}

func (f *fakeCounters) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fakeCounters) expired(key string) bool {
	exp, ok := f.expiry[key]
	return ok && !f.now.Before(exp)
}

func (f *fakeCounters) GetInt(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.expired(key) {
		return 0, nil
	}
	return f.counts[key], nil
}

func (f *fakeCounters) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.expired(key) {
		delete(f.counts, key)
		delete(f.expiry, key)
	}
	f.counts[key]++
	if f.counts[key] == 1 {
		f.expiry[key] = f.now.Add(ttl)
	}
	return f.counts[key], nil
}

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		PerMinute:    12,
		PerHour:      200,
		MinuteWindow: time.Minute,
		HourWindow:   time.Hour,
	}
}

func TestAllowUnderCap(t *testing.T) {
	limiter := New(newFakeCounters(), testConfig())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		d, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied under cap", i+1)
		}
	}
}

func TestDenyAtMinuteCap(t *testing.T) {
	store := newFakeCounters()
	limiter := New(store, testConfig())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := limiter.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	d, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("13th request within a minute was admitted")
	}
	if d.Window != "minute" {
		t.Errorf("denial window = %q, want minute", d.Window)
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", d.RetryAfter)
	}
}

func TestWindowExpiryReadmits(t *testing.T) {
	store := newFakeCounters()
	limiter := New(store, testConfig())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := limiter.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
	if d, _ := limiter.Allow(ctx, "1.2.3.4"); d.Allowed {
		t.Fatal("over-cap request admitted")
	}

	store.advance(61 * time.Second)

	d, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow after expiry: %v", err)
	}
	if !d.Allowed {
		t.Error("request denied after the minute window expired")
	}
}

func TestDenyAtHourCap(t *testing.T) {
	store := newFakeCounters()
	cfg := testConfig()
	cfg.PerMinute = 100
	cfg.PerHour = 150
	limiter := New(store, cfg)
	ctx := context.Background()

	// Fill the hour budget across two minute windows.
	for i := 0; i < 100; i++ {
		if d, _ := limiter.Allow(ctx, "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d denied unexpectedly", i+1)
		}
	}
	store.advance(61 * time.Second)
	for i := 0; i < 50; i++ {
		if d, _ := limiter.Allow(ctx, "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d denied unexpectedly", 101+i)
		}
	}

	d, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("request over the hourly cap was admitted")
	}
	if d.Window != "hour" {
		t.Errorf("denial window = %q, want hour", d.Window)
	}
	if d.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", d.RetryAfter)
	}
}

func TestClientsIsolated(t *testing.T) {
	limiter := New(newFakeCounters(), testConfig())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := limiter.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
	if d, _ := limiter.Allow(ctx, "1.2.3.4"); d.Allowed {
		t.Fatal("saturated client admitted")
	}

	d, err := limiter.Allow(ctx, "5.6.7.8")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.Allowed {
		t.Error("fresh client denied because another client is saturated")
	}
}

func TestDeniedRequestDoesNotConsumeBudget(t *testing.T) {
	store := newFakeCounters()
	limiter := New(store, testConfig())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := limiter.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		if d, _ := limiter.Allow(ctx, "1.2.3.4"); d.Allowed {
			t.Fatal("over-cap request admitted")
		}
	}

	// Denials must not have touched the hour counter.
	total := int64(0)
	for key, n := range store.counts {
		if len(key) > 8 && key[:8] == "rl:hour:" {
			total += n
		}
	}
	if total != 12 {
		t.Errorf("hour counter = %d after denials, want 12", total)
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	store := newFakeCounters()
	store.err = errors.New("store down")
	limiter := New(store, testConfig())

	if _, err := limiter.Allow(context.Background(), "1.2.3.4"); err == nil {
		t.Fatal("Allow succeeded with failing store")
	}
}

func TestKeysHashClientIdentity(t *testing.T) {
	store := newFakeCounters()
	limiter := New(store, testConfig())

	if _, err := limiter.Allow(context.Background(), "203.0.113.7"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	for key := range store.counts {
		if len(key) > 0 && (key == "rl:minute:203.0.113.7" || key == "rl:hour:203.0.113.7") {
			t.Errorf("raw client address used as counter key: %q", key)
		}
	}
}

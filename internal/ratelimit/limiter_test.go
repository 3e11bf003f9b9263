package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// fakeClock advances instantly on Sleep so admission tests need no wall time
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.mu.Lock()
		c.now = c.now.Add(d)
		c.mu.Unlock()
	}
	return nil
}

func newTestRegistry(cfg SourceConfig) (*Registry, *fakeClock) {
	r := NewRegistry(DefaultSourceConfig())
	clock := newFakeClock()
	r.clock = clock
	r.Configure("test", cfg)
	return r, clock
}

func TestAcquire_WindowAndMinIntervalInteract(t *testing.T) {
	// maxCalls=1, window=10s, minInterval=3s: three back-to-back acquires
	// must span at least 20s (the window dominates the interval).
	r, clock := newTestRegistry(SourceConfig{
		MaxCalls:         1,
		Window:           10 * time.Second,
		MinInterval:      3 * time.Second,
		FailureThreshold: 5,
		BreakerBase:      time.Second,
	})

	start := clock.Now()
	for i := 0; i < 3; i++ {
		if err := r.Acquire(context.Background(), "test"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	elapsed := clock.Now().Sub(start)
	if elapsed < 20*time.Second {
		t.Errorf("expected >= 20s elapsed, got %v", elapsed)
	}
	if elapsed > 30*time.Second {
		t.Errorf("expected < 30s elapsed (window and interval overlap), got %v", elapsed)
	}
}

func TestAcquire_NeverExceedsWindowBudget(t *testing.T) {
	const maxCalls = 3
	window := 10 * time.Second
	r, clock := newTestRegistry(SourceConfig{
		MaxCalls:         maxCalls,
		Window:           window,
		MinInterval:      0,
		FailureThreshold: 5,
		BreakerBase:      time.Second,
	})

	var grants []time.Time
	for i := 0; i < 12; i++ {
		if err := r.Acquire(context.Background(), "test"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		grants = append(grants, clock.Now())
	}

	// No sliding window of length `window` may hold more than maxCalls grants.
	for i := range grants {
		count := 0
		for j := i; j < len(grants); j++ {
			if grants[j].Sub(grants[i]) < window {
				count++
			}
		}
		if count > maxCalls {
			t.Fatalf("window starting at grant %d admitted %d calls, budget is %d", i, count, maxCalls)
		}
	}
}

func TestAcquire_MinIntervalSpacing(t *testing.T) {
	r, clock := newTestRegistry(SourceConfig{
		MaxCalls:         100,
		Window:           time.Minute,
		MinInterval:      2 * time.Second,
		FailureThreshold: 5,
		BreakerBase:      time.Second,
	})

	var prev time.Time
	for i := 0; i < 5; i++ {
		if err := r.Acquire(context.Background(), "test"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		now := clock.Now()
		if i > 0 {
			if gap := now.Sub(prev); gap < 2*time.Second {
				t.Errorf("grant %d only %v after previous, want >= 2s", i, gap)
			}
		}
		prev = now
	}
}

func TestAcquire_CancelledContext(t *testing.T) {
	r, _ := newTestRegistry(SourceConfig{
		MaxCalls:         1,
		Window:           10 * time.Second,
		MinInterval:      time.Second,
		FailureThreshold: 5,
		BreakerBase:      time.Second,
	})

	if err := r.Acquire(context.Background(), "test"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Acquire(ctx, "test"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	r, clock := newTestRegistry(SourceConfig{
		MaxCalls:         100,
		Window:           time.Minute,
		MinInterval:      0,
		FailureThreshold: 2,
		BreakerBase:      30 * time.Second,
		BreakerMax:       10 * time.Minute,
	})
	ctx := context.Background()

	if err := r.Acquire(ctx, "test"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	r.ReportFailure("test")
	r.ReportFailure("test")

	err := r.Acquire(ctx, "test")
	var open *model.CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if open.Source != "test" {
		t.Errorf("expected source test, got %s", open.Source)
	}
	if want := clock.Now().Add(30 * time.Second); !open.ReopenAt.Equal(want) {
		t.Errorf("expected reopen at %v, got %v", want, open.ReopenAt)
	}

	// Cooldown elapsed: a trial call is admitted (half-open).
	_ = clock.Sleep(ctx, 31*time.Second)
	if err := r.Acquire(ctx, "test"); err != nil {
		t.Fatalf("expected half-open acquire to succeed, got %v", err)
	}
}

func TestBreaker_ExponentialCooldown(t *testing.T) {
	r, clock := newTestRegistry(SourceConfig{
		MaxCalls:         100,
		Window:           time.Minute,
		MinInterval:      0,
		FailureThreshold: 1,
		BreakerBase:      10 * time.Second,
		BreakerMax:       time.Minute,
	})
	ctx := context.Background()

	r.ReportFailure("test")
	var open *model.CircuitOpenError
	if err := r.Acquire(ctx, "test"); !errors.As(err, &open) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	first := open.ReopenAt.Sub(clock.Now())

	_ = clock.Sleep(ctx, first+time.Second)
	r.ReportFailure("test")
	if err := r.Acquire(ctx, "test"); !errors.As(err, &open) {
		t.Fatalf("expected open circuit after second trip, got %v", err)
	}
	second := open.ReopenAt.Sub(clock.Now())

	if second != 2*first {
		t.Errorf("expected cooldown to double (%v -> %v)", first, second)
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	r, _ := newTestRegistry(SourceConfig{
		MaxCalls:         100,
		Window:           time.Minute,
		FailureThreshold: 2,
		BreakerBase:      10 * time.Second,
	})

	r.ReportFailure("test")
	r.ReportSuccess("test")
	r.ReportFailure("test")

	// Streak was broken: the breaker must still be closed.
	if err := r.Acquire(context.Background(), "test"); err != nil {
		t.Errorf("expected closed circuit, got %v", err)
	}
}

func TestRegistry_SourcesIndependent(t *testing.T) {
	r := NewRegistry(DefaultSourceConfig())
	clock := newFakeClock()
	r.clock = clock
	r.Configure("slow", SourceConfig{MaxCalls: 1, Window: time.Hour, MinInterval: 0, FailureThreshold: 5, BreakerBase: time.Second})
	r.Configure("fast", SourceConfig{MaxCalls: 1000, Window: time.Second, MinInterval: 0, FailureThreshold: 5, BreakerBase: time.Second})
	ctx := context.Background()

	if err := r.Acquire(ctx, "slow"); err != nil {
		t.Fatalf("acquire slow: %v", err)
	}
	start := clock.Now()
	for i := 0; i < 5; i++ {
		if err := r.Acquire(ctx, "fast"); err != nil {
			t.Fatalf("acquire fast %d: %v", i, err)
		}
	}
	if clock.Now().Sub(start) > 0 {
		t.Errorf("fast source was delayed by slow source's exhausted budget")
	}
}

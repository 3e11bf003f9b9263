// Package ratelimit provides per-source admission control: a sliding-window
// call budget, a minimum-interval throttle, and a circuit breaker. One
// registry instance is constructed at process start and injected into every
// connector; all callers targeting the same source name share one limiter and
// are serialized through it.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// SourceConfig is the admission budget for one source
type SourceConfig struct {
	MaxCalls    int           // Calls admitted within any sliding Window
	Window      time.Duration
	MinInterval time.Duration // Minimum spacing between granted calls

	// Circuit breaker tuning
	FailureThreshold int           // Consecutive failures before the breaker opens
	BreakerBase      time.Duration // First cooldown; doubles per trip
	BreakerMax       time.Duration // Cooldown cap
}

// DefaultSourceConfig returns a conservative budget for unconfigured sources
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		MaxCalls:         30,
		Window:           time.Minute,
		MinInterval:      time.Second,
		FailureThreshold: 5,
		BreakerBase:      30 * time.Second,
		BreakerMax:       30 * time.Minute,
	}
}

// FromModel converts a configured source into an admission budget
func FromModel(sc model.SourceConfig) SourceConfig {
	cfg := DefaultSourceConfig()
	if sc.MaxCalls > 0 {
		cfg.MaxCalls = sc.MaxCalls
	}
	if sc.WindowSeconds > 0 {
		cfg.Window = time.Duration(sc.WindowSeconds) * time.Second
	}
	if sc.MinIntervalSeconds > 0 {
		cfg.MinInterval = time.Duration(sc.MinIntervalSeconds) * time.Second
	}
	if sc.BackoffBaseSeconds > 0 {
		cfg.BreakerBase = time.Duration(sc.BackoffBaseSeconds) * time.Second
	}
	return cfg
}

// sourceState holds the admission state for one source name. Its mutex is
// held across the whole of Acquire, which is what totally orders concurrent
// callers targeting the same source.
type sourceState struct {
	mu      sync.Mutex
	cfg     SourceConfig
	window  []time.Time   // Granted-call timestamps within cfg.Window
	bucket  *rate.Limiter // Enforces MinInterval
	breaker breakerState
}

// Registry is the process-wide limiter/breaker registry keyed by source name.
// States are created lazily on first use and live for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	sources  map[string]*sourceState
	configs  map[string]SourceConfig
	defaults SourceConfig
	clock    Clock
}

// NewRegistry creates a registry with the given default budget
func NewRegistry(defaults SourceConfig) *Registry {
	if defaults.MaxCalls <= 0 {
		defaults = DefaultSourceConfig()
	}
	return &Registry{
		sources:  make(map[string]*sourceState),
		configs:  make(map[string]SourceConfig),
		defaults: defaults,
		clock:    realClock{},
	}
}

// Configure sets a per-source budget. Must be called before the source's
// first Acquire to take effect.
func (r *Registry) Configure(source string, cfg SourceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[source] = cfg
}

// Acquire blocks until a call to the source is admitted, or fails immediately
// with *model.CircuitOpenError while the source's breaker is open. Admission
// enforces, in order: the minimum interval since the last granted call, then
// the sliding-window budget (never more than MaxCalls within any Window,
// boundary bursts included).
func (r *Registry) Acquire(ctx context.Context, source string) error {
	s := r.state(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := r.clock.Now()

	if until, open := s.breaker.openUntil(now); open {
		return &model.CircuitOpenError{Source: source, ReopenAt: until}
	}

	// Minimum interval between granted calls
	res := s.bucket.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		if err := r.clock.Sleep(ctx, delay); err != nil {
			res.CancelAt(now)
			return err
		}
		now = r.clock.Now()
	}

	// Sliding window: wait out the oldest entry if the budget is full
	for {
		s.window = pruneWindow(s.window, now, s.cfg.Window)
		if len(s.window) < s.cfg.MaxCalls {
			break
		}
		wait := s.window[0].Add(s.cfg.Window).Sub(now)
		if err := r.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		now = r.clock.Now()
	}

	s.window = append(s.window, now)
	return nil
}

// ReportFailure records a transport failure or remote rate-limit signal for
// the source, possibly opening its breaker
func (r *Registry) ReportFailure(source string) {
	s := r.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker.recordFailure(r.clock.Now(), s.cfg)
}

// ReportSuccess resets the source's failure streak and closes its breaker
func (r *Registry) ReportSuccess(source string) {
	s := r.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker.recordSuccess()
}

// state returns the source's admission state, creating it lazily
func (r *Registry) state(source string) *sourceState {
	r.mu.RLock()
	s, ok := r.sources[source]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := r.sources[source]; ok {
		return s
	}

	cfg, ok := r.configs[source]
	if !ok {
		cfg = r.defaults
	}
	interval := rate.Every(cfg.MinInterval)
	if cfg.MinInterval <= 0 {
		interval = rate.Inf
	}
	s = &sourceState{
		cfg:    cfg,
		bucket: rate.NewLimiter(interval, 1),
	}
	r.sources[source] = s
	return s
}

// pruneWindow drops timestamps that have aged out of the sliding window
func pruneWindow(window []time.Time, now time.Time, span time.Duration) []time.Time {
	cutoff := now.Add(-span)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return append(window[:0], window[i:]...)
}

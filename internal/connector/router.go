package connector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// SearchOutcome aggregates a routed search: the records found, every source
// actually consulted (feeds GPS pillar 1), and per-source failure reasons.
type SearchOutcome struct {
	Records         []model.CandidateRecord
	SourcesSearched []string
	SourcesFailed   map[string]string
}

// RetryPolicy bounds rate-limit retries against one source
type RetryPolicy struct {
	Ceiling     int
	BackoffBase time.Duration
}

// Router tries connectors in priority order (authoritative APIs before
// scraping fallbacks) and moves to the next source on unavailability or an
// empty result set. Rate-limit signals are retried here with exponential
// backoff before a source is declared unavailable; each source retries under
// its own policy.
type Router struct {
	connectors []Connector // Priority order
	fallback   RetryPolicy
	policies   map[string]RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// NewRouter creates a router over connectors already sorted by priority. The
// ceiling and base given here are the fallback retry policy; sources with
// their own budget override it via SetRetryPolicy.
func NewRouter(connectors []Connector, retryCeiling int, backoffBase time.Duration, logger *slog.Logger) *Router {
	if retryCeiling <= 0 {
		retryCeiling = 3
	}
	if backoffBase <= 0 {
		backoffBase = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		connectors: connectors,
		fallback:   RetryPolicy{Ceiling: retryCeiling, BackoffBase: backoffBase},
		policies:   make(map[string]RetryPolicy),
		sleep:      sleepCtx,
		logger:     logger,
	}
}

// SetRetryPolicy overrides the retry policy for one source. Zero fields keep
// the router's fallback value.
func (r *Router) SetRetryPolicy(source string, p RetryPolicy) {
	if p.Ceiling <= 0 {
		p.Ceiling = r.fallback.Ceiling
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = r.fallback.BackoffBase
	}
	r.policies[source] = p
}

func (r *Router) policyFor(source string) RetryPolicy {
	if p, ok := r.policies[source]; ok {
		return p
	}
	return r.fallback
}

// Search routes the query across connectors. It stops at the first source
// that yields records; sources that errored or came back empty are recorded
// in the outcome either way. A nil error with zero records means every
// source was consulted without a hit.
func (r *Router) Search(ctx context.Context, q model.Query) (*SearchOutcome, error) {
	outcome := &SearchOutcome{SourcesFailed: make(map[string]string)}

	for _, c := range r.connectors {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		records, err := r.searchWithRetry(ctx, c, q)
		outcome.SourcesSearched = append(outcome.SourcesSearched, c.Name())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return outcome, err
			}
			outcome.SourcesFailed[c.Name()] = err.Error()
			r.logger.Warn("source failed, falling back", "source", c.Name(), "error", err)
			continue
		}
		if len(records) == 0 {
			r.logger.Debug("source returned no records", "source", c.Name())
			continue
		}

		outcome.Records = records
		return outcome, nil
	}
	return outcome, nil
}

// FetchDetail routes a detail fetch to the connector owning the record
func (r *Router) FetchDetail(ctx context.Context, ref model.RecordRef) (*model.RecordDetail, error) {
	for _, c := range r.connectors {
		if c.Name() != ref.Source {
			continue
		}
		df, ok := c.(DetailFetcher)
		if !ok {
			return nil, &model.IrrecoverableDataError{Ref: ref.Source + ":" + ref.RecordID, Reason: "source has no detail endpoint"}
		}
		return df.FetchDetail(ctx, ref)
	}
	return nil, &model.IrrecoverableDataError{Ref: ref.Source + ":" + ref.RecordID, Reason: "no connector for source"}
}

// searchWithRetry retries rate-limit signals with exponential backoff
// (base, 2×base, 4×base, ...) up to the source's retry ceiling, then reports
// the source unavailable. Open circuits are not retried: the breaker's
// cooldown outlasts any backoff schedule worth waiting through.
func (r *Router) searchWithRetry(ctx context.Context, c Connector, q model.Query) ([]model.CandidateRecord, error) {
	policy := r.policyFor(c.Name())
	var lastErr error
	for attempt := 0; attempt <= policy.Ceiling; attempt++ {
		records, err := c.Search(ctx, q)
		if err == nil {
			return records, nil
		}
		lastErr = err

		var signal *model.RateLimitSignal
		if !errors.As(err, &signal) {
			var open *model.CircuitOpenError
			if errors.As(err, &open) {
				return nil, &model.SourceUnavailable{Source: c.Name(), Attempts: attempt + 1, Err: err}
			}
			return nil, err
		}

		if attempt == policy.Ceiling {
			break
		}
		backoff := policy.BackoffBase << uint(attempt)
		if signal.RetryAfter > backoff {
			backoff = signal.RetryAfter
		}
		r.logger.Debug("rate limited, backing off", "source", c.Name(), "attempt", attempt+1, "backoff", backoff)
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, &model.SourceUnavailable{Source: c.Name(), Attempts: policy.Ceiling + 1, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

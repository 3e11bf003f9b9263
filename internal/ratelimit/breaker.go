package ratelimit

import "time"

// breakerState tracks consecutive failures for one source and the cooldown
// schedule once the circuit opens. Cooldowns grow as base × 2^trips, capped.
type breakerState struct {
	consecutive int
	trips       int
	open        bool
	reopenAt    time.Time
}

// openUntil reports whether the circuit is currently rejecting calls. Once
// the cooldown has elapsed the breaker lets a trial call through (half-open);
// it stays armed until recordSuccess closes it.
func (b *breakerState) openUntil(now time.Time) (time.Time, bool) {
	if b.open && now.Before(b.reopenAt) {
		return b.reopenAt, true
	}
	return time.Time{}, false
}

func (b *breakerState) recordFailure(now time.Time, cfg SourceConfig) {
	b.consecutive++
	if b.consecutive < cfg.FailureThreshold {
		return
	}
	cooldown := cfg.BreakerBase << uint(b.trips)
	if cfg.BreakerMax > 0 && cooldown > cfg.BreakerMax {
		cooldown = cfg.BreakerMax
	}
	b.open = true
	b.reopenAt = now.Add(cooldown)
	b.trips++
	b.consecutive = 0
}

func (b *breakerState) recordSuccess() {
	b.consecutive = 0
	b.trips = 0
	b.open = false
}

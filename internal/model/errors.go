package model

import (
	"fmt"
	"time"
)

// RateLimitSignal is a recoverable remote rate-limit response. The connector
// and frontier layers react with backoff and retry; it is never used as
// control flow across more than one layer.
type RateLimitSignal struct {
	Source     string
	RetryAfter time.Duration // Zero when the remote gave no hint
}

func (e *RateLimitSignal) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("source %s rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("source %s rate limited", e.Source)
}

// SourceUnavailable means a source exhausted its retry budget. The router
// falls back to the next connector in priority order.
type SourceUnavailable struct {
	Source   string
	Attempts int
	Err      error
}

func (e *SourceUnavailable) Error() string {
	return fmt.Sprintf("source %s unavailable after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *SourceUnavailable) Unwrap() error { return e.Err }

// CircuitOpenError means the source's circuit breaker is open. Callers should
// skip the source until ReopenAt rather than retrying immediately.
type CircuitOpenError struct {
	Source   string
	ReopenAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for source %s until %s", e.Source, e.ReopenAt.Format(time.RFC3339))
}

// LedgerWriteConflict means an append lost an optimistic-concurrency race and
// exhausted its internal retries. Callers may re-read the latest version and
// retry the append.
type LedgerWriteConflict struct {
	FactID string
}

func (e *LedgerWriteConflict) Error() string {
	return fmt.Sprintf("write conflict appending fact %s", e.FactID)
}

// EvaluationTimeout means the evaluator did not answer within the caller's
// deadline. The fact stays PROPOSED and is eligible for re-submission.
type EvaluationTimeout struct {
	FactID string
	Err    error
}

func (e *EvaluationTimeout) Error() string {
	return fmt.Sprintf("evaluation of fact %s timed out: %v", e.FactID, e.Err)
}

func (e *EvaluationTimeout) Unwrap() error { return e.Err }

// IrrecoverableDataError is fatal for a single fact or frontier entry only.
// The item is marked FAILED/INCOMPLETE; the process carries on.
type IrrecoverableDataError struct {
	Ref    string // Fact ID or frontier external ID
	Reason string
}

func (e *IrrecoverableDataError) Error() string {
	return fmt.Sprintf("irrecoverable data error for %s: %s", e.Ref, e.Reason)
}

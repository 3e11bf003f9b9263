// Package gps runs proposed facts through the five-pillar proof standard and
// moves them through the acceptance lifecycle. Every state transition is a new
// ledger version carrying the evaluation that caused it and a signed
// confidence delta, so the full evaluation trail is replayable.
package gps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ledger"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// Evaluator scores a fact version against the proof standard
type Evaluator interface {
	Evaluate(ctx context.Context, fact *model.Fact) (*model.GPSEvaluation, error)
}

// Config tunes the engine
type Config struct {
	ConfidenceThreshold float64 // Acceptance floor, inclusive
	MaxRetries          int     // Automatic re-evaluations on low confidence
	Agent               string  // Recorded in provenance and deltas
}

// FromModelEval converts the application evaluation config
func FromModelEval(c model.EvalConfig) Config {
	return Config{
		ConfidenceThreshold: c.ConfidenceThreshold,
		MaxRetries:          c.MaxRetries,
		Agent:               c.Agent,
	}
}

// Outcome is the result of submitting one fact for evaluation
type Outcome struct {
	Fact        *model.Fact            // Latest version after evaluation
	Evaluations []*model.GPSEvaluation // In submission order
	Revision    *model.RevisionRequest // Set when the fact ends INCOMPLETE
}

// Engine owns the evaluation state machine
type Engine struct {
	ledger    *ledger.Ledger
	evaluator Evaluator
	cfg       Config
	logger    *slog.Logger

	// OnRevision, when set, is called with every revision request emitted
	// for an INCOMPLETE fact (in addition to the request being returned in
	// the Outcome). Used to notify the researcher driving the evidence hunt.
	OnRevision func(*model.RevisionRequest)

	now func() time.Time
}

// New creates an engine
func New(l *ledger.Ledger, evaluator Evaluator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Agent == "" {
		cfg.Agent = "gps-engine"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger:    l,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit evaluates the latest version of a fact and appends a new version per
// transition. Acceptance requires every pillar SATISFIED, no unresolved
// conflicts, and confidence at or above the threshold. A FAILED pillar or an
// unresolved conflict ends the fact INCOMPLETE immediately with a revision
// request; confidence below the threshold alone is retried up to MaxRetries
// times before the same INCOMPLETE ending.
func (e *Engine) Submit(ctx context.Context, factID string) (*Outcome, error) {
	fact, err := e.ledger.Get(ctx, factID)
	if err != nil {
		return nil, fmt.Errorf("load fact %s: %w", factID, err)
	}
	if fact.Status != model.StatusProposed && fact.Status != model.StatusIncomplete {
		return nil, fmt.Errorf("fact %s is %s, not eligible for evaluation", factID, fact.Status)
	}

	outcome := &Outcome{}
	for attempt := 0; ; attempt++ {
		eval, err := e.evaluator.Evaluate(ctx, fact)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// The fact stays as-is and can be resubmitted.
				return nil, &model.EvaluationTimeout{FactID: factID, Err: err}
			}
			return nil, fmt.Errorf("evaluate fact %s: %w", factID, err)
		}
		eval.FactID = fact.FactID
		eval.FactVersion = fact.Version
		if eval.EvaluatedBy == "" {
			eval.EvaluatedBy = e.cfg.Agent
		}
		outcome.Evaluations = append(outcome.Evaluations, eval)

		unresolved := eval.UnresolvedConflicts()
		switch {
		case eval.AnyFailed() || len(unresolved) > 0:
			next, err := e.transition(ctx, fact, eval, model.StatusIncomplete, incompleteReason(eval))
			if err != nil {
				return nil, err
			}
			outcome.Fact = next
			outcome.Revision = e.revisionRequest(next, eval)
			e.logger.Info("fact incomplete, revision requested",
				"fact_id", factID, "version", next.Version, "unresolved_conflicts", len(unresolved))
			return outcome, nil

		case eval.AllSatisfied() && eval.Confidence >= e.cfg.ConfidenceThreshold:
			next, err := e.transition(ctx, fact, eval, model.StatusAccepted, "met proof standard")
			if err != nil {
				return nil, err
			}
			outcome.Fact = next
			e.logger.Info("fact accepted",
				"fact_id", factID, "version", next.Version, "confidence", next.ConfidenceScore)
			return outcome, nil

		default:
			// Pillars incomplete or confidence short of the threshold.
			if attempt >= e.cfg.MaxRetries {
				next, err := e.transition(ctx, fact, eval, model.StatusIncomplete,
					fmt.Sprintf("confidence %.2f below threshold %.2f after %d evaluations",
						eval.Confidence, e.cfg.ConfidenceThreshold, attempt+1))
				if err != nil {
					return nil, err
				}
				outcome.Fact = next
				outcome.Revision = e.revisionRequest(next, eval)
				e.logger.Info("fact incomplete after retries", "fact_id", factID, "version", next.Version)
				return outcome, nil
			}
			next, err := e.transition(ctx, fact, eval, model.StatusProposed, "re-evaluating on low confidence")
			if err != nil {
				return nil, err
			}
			fact = next
			e.logger.Debug("re-evaluating fact",
				"fact_id", factID, "attempt", attempt+2, "confidence", eval.Confidence)
		}
	}
}

// transition appends the successor version carrying the evaluation and the
// confidence delta that moves the stored score to the evaluator's verdict
func (e *Engine) transition(ctx context.Context, fact *model.Fact, eval *model.GPSEvaluation, status model.FactStatus, reason string) (*model.Fact, error) {
	next := fact.NextVersion()
	next.Status = status
	next.Evaluation = eval
	next.Provenance = model.Provenance{
		Agent:     e.cfg.Agent,
		Process:   "gps-evaluation",
		CreatedAt: e.now(),
	}
	next.ApplyDelta(model.ConfidenceDelta{
		Agent:     eval.EvaluatedBy,
		Delta:     eval.Confidence - fact.ConfidenceScore,
		Reason:    reason,
		Timestamp: e.now(),
	})

	if _, err := e.ledger.Append(ctx, next); err != nil {
		return nil, fmt.Errorf("append evaluation version: %w", err)
	}
	return next, nil
}

func (e *Engine) revisionRequest(fact *model.Fact, eval *model.GPSEvaluation) *model.RevisionRequest {
	req := &model.RevisionRequest{
		FactID:         fact.FactID,
		FactVersion:    fact.Version,
		Pillars:        eval.Pillars,
		SourcesMissing: eval.SourcesMissing,
		Conflicts:      eval.UnresolvedConflicts(),
		Reason:         incompleteReason(eval),
		RequestedAt:    e.now(),
	}
	if e.OnRevision != nil {
		e.OnRevision(req)
	}
	return req
}

func incompleteReason(eval *model.GPSEvaluation) string {
	if n := len(eval.UnresolvedConflicts()); n > 0 {
		return fmt.Sprintf("%d unresolved evidence conflicts", n)
	}
	for i, p := range eval.Pillars {
		if p == model.PillarFailed {
			return fmt.Sprintf("pillar %s failed", model.Pillar(i))
		}
	}
	return "proof standard not met"
}

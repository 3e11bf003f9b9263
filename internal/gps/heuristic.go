package gps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

var yearInStatement = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// HeuristicEvaluator scores facts from their own structure: citation coverage
// and search breadth. It cannot detect conflicting evidence, so it marks the
// conflict pillar PARTIAL and never produces an acceptance-grade confidence
// on a single-source fact. It is the offline default; an LLM provider
// replaces it when configured.
type HeuristicEvaluator struct{}

// NewHeuristicEvaluator creates the structural evaluator
func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{}
}

// Evaluate scores the fact's pillars from citations and crawl annotations
func (h *HeuristicEvaluator) Evaluate(_ context.Context, fact *model.Fact) (*model.GPSEvaluation, error) {
	eval := model.NewGPSEvaluation(fact.FactID, fact.Version, "heuristic")

	searched := make(map[string]bool)
	for _, a := range fact.Annotations {
		if name, ok := strings.CutPrefix(a, "searched:"); ok {
			searched[name] = true
		}
	}
	repositories := make(map[string]bool)
	complete := true
	for _, c := range fact.Sources {
		repositories[c.Repository] = true
		searched[c.Repository] = true
		if c.Repository == "" || c.RecordID == "" {
			complete = false
		}
	}
	for name := range searched {
		eval.SourcesSearched = append(eval.SourcesSearched, name)
	}

	eval.Pillars[model.PillarExhaustiveSearch] = grade(len(searched))
	switch {
	case len(fact.Sources) == 0:
		eval.Pillars[model.PillarCompleteCitation] = model.PillarFailed
	case complete:
		eval.Pillars[model.PillarCompleteCitation] = model.PillarSatisfied
	default:
		eval.Pillars[model.PillarCompleteCitation] = model.PillarPartial
	}
	eval.Pillars[model.PillarAnalysis] = grade(len(repositories))

	// Structure alone cannot prove the absence of conflicting evidence.
	eval.Pillars[model.PillarConflictRes] = model.PillarPartial

	if fact.Statement != "" && yearInStatement.MatchString(fact.Statement) {
		eval.Pillars[model.PillarConclusion] = model.PillarSatisfied
	} else if fact.Statement != "" {
		eval.Pillars[model.PillarConclusion] = model.PillarPartial
	} else {
		eval.Pillars[model.PillarConclusion] = model.PillarFailed
	}

	eval.Confidence = confidenceOf(eval)
	eval.Reasoning = fmt.Sprintf("structural check: %d sources searched, %d cited repositories", len(searched), len(repositories))
	return eval, nil
}

func grade(n int) model.PillarStatus {
	switch {
	case n >= 2:
		return model.PillarSatisfied
	case n == 1:
		return model.PillarPartial
	default:
		return model.PillarFailed
	}
}

func confidenceOf(eval *model.GPSEvaluation) float64 {
	score := 0.25
	for _, p := range eval.Pillars {
		switch p {
		case model.PillarSatisfied:
			score += 0.11
		case model.PillarPartial:
			score += 0.05
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

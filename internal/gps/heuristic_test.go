package gps

import (
	"context"
	"testing"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

func TestHeuristicEvaluator_SingleSourceStaysBelowThreshold(t *testing.T) {
	fact := model.NewFact("John Smith", "John Smith born 1842 in County Cork",
		[]model.SourceCitation{{Repository: "familysearch", RecordID: "ABCD-123", EvidenceType: model.EvidenceDirect}},
		model.Provenance{Agent: "crawler"})

	eval, err := NewHeuristicEvaluator().Evaluate(context.Background(), fact)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.Pillars[model.PillarExhaustiveSearch] != model.PillarPartial {
		t.Errorf("single source should grade search PARTIAL, got %s", eval.Pillars[model.PillarExhaustiveSearch])
	}
	if eval.Pillars[model.PillarCompleteCitation] != model.PillarSatisfied {
		t.Errorf("complete citation should be SATISFIED, got %s", eval.Pillars[model.PillarCompleteCitation])
	}
	if eval.AllSatisfied() {
		t.Error("structural evaluation must never fully satisfy on one source")
	}
	if eval.Confidence >= 0.7 {
		t.Errorf("single-source confidence %v must stay below acceptance threshold", eval.Confidence)
	}
}

func TestHeuristicEvaluator_NoCitationsFailsPillar(t *testing.T) {
	fact := model.NewFact("Mary Doe", "Mary Doe born 1850", nil, model.Provenance{Agent: "crawler"})

	eval, err := NewHeuristicEvaluator().Evaluate(context.Background(), fact)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.Pillars[model.PillarCompleteCitation] != model.PillarFailed {
		t.Errorf("uncited fact should fail the citation pillar, got %s", eval.Pillars[model.PillarCompleteCitation])
	}
	if !eval.AnyFailed() {
		t.Error("expected a failed pillar")
	}
}

func TestHeuristicEvaluator_CountsCrawlSearchAnnotations(t *testing.T) {
	fact := model.NewFact("John Smith", "John Smith born 1842",
		[]model.SourceCitation{{Repository: "familysearch", RecordID: "ABCD-123", EvidenceType: model.EvidenceDirect}},
		model.Provenance{Agent: "crawler"})
	fact.Annotations = []string{"searched:familysearch", "searched:archives"}

	eval, err := NewHeuristicEvaluator().Evaluate(context.Background(), fact)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.Pillars[model.PillarExhaustiveSearch] != model.PillarSatisfied {
		t.Errorf("two searched sources should satisfy the search pillar, got %s", eval.Pillars[model.PillarExhaustiveSearch])
	}
	if len(eval.SourcesSearched) != 2 {
		t.Errorf("expected 2 sources searched, got %v", eval.SourcesSearched)
	}
}

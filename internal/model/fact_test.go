package model

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestNewFact_StartsAtBaseline(t *testing.T) {
	fact := NewFact("John Smith", "John Smith born 1842 in County Cork", nil, Provenance{Agent: "crawler"})
	if fact.Version != 1 || fact.Status != StatusProposed {
		t.Errorf("expected PROPOSED v1, got %s v%d", fact.Status, fact.Version)
	}
	if fact.ConfidenceScore != ConfidenceBaseline {
		t.Errorf("expected baseline confidence, got %v", fact.ConfidenceScore)
	}
	if fact.FactID == "" {
		t.Error("expected a generated fact ID")
	}
}

func TestRecomputeConfidence_MatchesDeltaTrail(t *testing.T) {
	fact := NewFact("Mary Doe", "Mary Doe born 1850 in Dublin", nil, Provenance{Agent: "crawler"})
	fact.ApplyDelta(ConfidenceDelta{Agent: "gps", Delta: 0.3, Reason: "corroborated"})
	fact.ApplyDelta(ConfidenceDelta{Agent: "gps", Delta: -0.1, Reason: "conflict noted"})

	if math.Abs(fact.ConfidenceScore-0.7) > 1e-9 {
		t.Errorf("expected 0.7, got %v", fact.ConfidenceScore)
	}
	if math.Abs(fact.RecomputeConfidence()-fact.ConfidenceScore) > 1e-9 {
		t.Error("cached score diverges from baseline plus deltas")
	}

	// Clamped at both ends.
	fact.ApplyDelta(ConfidenceDelta{Agent: "gps", Delta: 5, Reason: "overshoot"})
	if fact.ConfidenceScore != 1 {
		t.Errorf("expected clamp at 1, got %v", fact.ConfidenceScore)
	}
	fact.ApplyDelta(ConfidenceDelta{Agent: "gps", Delta: -10, Reason: "undershoot"})
	if fact.ConfidenceScore != 0 {
		t.Errorf("expected clamp at 0, got %v", fact.ConfidenceScore)
	}
}

func TestNextVersion_DoesNotShareStorage(t *testing.T) {
	fact := NewFact("John Smith", "John Smith born 1842",
		[]SourceCitation{{Repository: "familysearch", RecordID: "ABCD-123", EvidenceType: EvidenceDirect}},
		Provenance{Agent: "crawler"})
	fact.ApplyDelta(ConfidenceDelta{Agent: "gps", Delta: 0.1, Reason: "initial"})
	fact.Evaluation = NewGPSEvaluation(fact.FactID, fact.Version, "gps")

	next := fact.NextVersion()
	if next.Version != 2 {
		t.Errorf("expected version 2, got %d", next.Version)
	}
	if next.Evaluation != nil {
		t.Error("successor must not inherit the trigger evaluation")
	}

	next.Sources = append(next.Sources, SourceCitation{Repository: "archives", RecordID: "r-1"})
	next.ApplyDelta(ConfidenceDelta{Agent: "gps", Delta: 0.2, Reason: "new evidence"})
	if len(fact.Sources) != 1 || len(fact.ConfidenceHistory) != 1 {
		t.Error("mutating the successor changed the prior version")
	}
}

func TestFact_JSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	fact := &Fact{
		FactID:    "fact-1",
		Version:   2,
		Subject:   "John Smith",
		Statement: "John Smith born 1842 in County Cork",
		Sources: []SourceCitation{
			{Repository: "familysearch", RecordID: "ABCD-123", URL: "https://example.org/r", AccessedAt: now, EvidenceType: EvidenceDirect},
		},
		Provenance:      Provenance{Agent: "gps-engine", Process: "gps-evaluation", CreatedAt: now},
		ConfidenceScore: 0.85,
		ConfidenceHistory: []ConfidenceDelta{
			{Agent: "gps-engine", Delta: 0.35, Reason: "met proof standard", Timestamp: now},
		},
		Status:      StatusAccepted,
		Annotations: []string{"searched:familysearch", "searched:archives"},
		CreatedAt:   now,
		Evaluation: &GPSEvaluation{
			ID: "eval-1", FactID: "fact-1", FactVersion: 1,
			Pillars:         [NumPillars]PillarStatus{PillarSatisfied, PillarSatisfied, PillarSatisfied, PillarSatisfied, PillarSatisfied},
			SourcesSearched: []string{"familysearch", "archives"},
			Conflicts:       []Conflict{{Description: "census age differs", Resolved: true, Resolution: "age rounding"}},
			Confidence:      0.85,
			EvaluatedBy:     "openai:gpt-4o-mini",
			CreatedAt:       now,
		},
	}

	data, err := json.Marshal(fact)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back Fact
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(fact, &back) {
		t.Errorf("round trip lost information:\nbefore: %+v\nafter:  %+v", fact, &back)
	}
}

func TestGPSEvaluation_Helpers(t *testing.T) {
	ev := NewGPSEvaluation("fact-1", 1, "gps")
	if ev.AllSatisfied() {
		t.Error("pending pillars must not count as satisfied")
	}
	for i := range ev.Pillars {
		ev.Pillars[i] = PillarSatisfied
	}
	if !ev.AllSatisfied() || ev.AnyFailed() {
		t.Error("expected all satisfied, none failed")
	}
	ev.Pillars[PillarConflictRes] = PillarFailed
	if !ev.AnyFailed() {
		t.Error("expected a failed pillar")
	}
	ev.Conflicts = []Conflict{{Description: "a", Resolved: false}, {Description: "b", Resolved: true}}
	if got := ev.UnresolvedConflicts(); len(got) != 1 || got[0].Description != "a" {
		t.Errorf("unexpected unresolved conflicts: %+v", got)
	}
}

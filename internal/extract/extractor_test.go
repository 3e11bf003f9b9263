package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

func TestRuleBased_BirthDeathAndRelations(t *testing.T) {
	detail := &model.RecordDetail{
		CandidateRecord: model.CandidateRecord{
			Source:    "familysearch",
			RecordID:  "ABCD-123",
			URL:       "https://example.org/ABCD-123",
			Name:      "John Smith",
			BirthYear: 1842,
			DeathYear: 1910,
			Place:     "County Cork",
			Relations: []model.RelationEdge{
				{Relation: "parent", ExternalID: "familysearch:EFGH-456", Name: "James Smith"},
				{Relation: "spouse", ExternalID: "familysearch:IJKL-789"}, // No name, skipped
			},
		},
	}

	facts, err := NewRuleBased().Extract(context.Background(), detail)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d: %+v", len(facts), facts)
	}
	if facts[0].Statement != "John Smith born 1842 in County Cork" {
		t.Errorf("unexpected birth statement: %q", facts[0].Statement)
	}
	if facts[1].Statement != "John Smith died 1910" {
		t.Errorf("unexpected death statement: %q", facts[1].Statement)
	}
	if facts[2].Statement != "John Smith has parent James Smith" {
		t.Errorf("unexpected relation statement: %q", facts[2].Statement)
	}
	for _, f := range facts {
		if len(f.Citations) != 1 {
			t.Fatalf("expected one citation, got %d", len(f.Citations))
		}
		c := f.Citations[0]
		if c.Repository != "familysearch" || c.RecordID != "ABCD-123" || c.EvidenceType != model.EvidenceDirect {
			t.Errorf("unexpected citation: %+v", c)
		}
	}
}

func TestRuleBased_BareNameAttestsExistence(t *testing.T) {
	detail := &model.RecordDetail{
		CandidateRecord: model.CandidateRecord{Source: "archives", RecordID: "r-9", Name: "Mary Doe"},
	}
	facts, err := NewRuleBased().Extract(context.Background(), detail)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].Statement != "Mary Doe appears in archives record r-9" {
		t.Errorf("unexpected statement: %q", facts[0].Statement)
	}
}

func TestRuleBased_MissingName(t *testing.T) {
	detail := &model.RecordDetail{
		CandidateRecord: model.CandidateRecord{Source: "archives", RecordID: "r-10"},
	}
	_, err := NewRuleBased().Extract(context.Background(), detail)
	var dataErr *model.IrrecoverableDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected IrrecoverableDataError, got %v", err)
	}
}

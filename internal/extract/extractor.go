// Package extract turns fetched source records into candidate fact
// statements. The rule-based extractor here is the always-available default;
// an LLM-backed extractor can replace it when a provider is configured.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// Extractor derives candidate facts from a record detail
type Extractor interface {
	Extract(ctx context.Context, detail *model.RecordDetail) ([]model.CandidateFact, error)
}

// RuleBased builds fact statements directly from the record's structured
// fields. No inference: only what the record states outright becomes a fact,
// so every citation it emits is DIRECT evidence.
type RuleBased struct{}

// NewRuleBased creates the rule-based extractor
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Extract emits one candidate fact per life event the record attests
func (e *RuleBased) Extract(_ context.Context, detail *model.RecordDetail) ([]model.CandidateFact, error) {
	if detail == nil {
		return nil, &model.IrrecoverableDataError{Reason: "nil record detail"}
	}
	if detail.Name == "" {
		return nil, &model.IrrecoverableDataError{Ref: detail.ExternalID(), Reason: "record has no subject name"}
	}

	citation := []model.SourceCitation{{
		Repository:   detail.Source,
		RecordID:     detail.RecordID,
		URL:          detail.URL,
		AccessedAt:   time.Now().UTC(),
		EvidenceType: model.EvidenceDirect,
	}}

	var facts []model.CandidateFact
	if detail.BirthYear > 0 {
		facts = append(facts, model.CandidateFact{
			Subject:   detail.Name,
			Statement: eventStatement(detail.Name, "born", detail.BirthYear, detail.Place),
			Citations: citation,
		})
	}
	if detail.DeathYear > 0 {
		facts = append(facts, model.CandidateFact{
			Subject:   detail.Name,
			Statement: eventStatement(detail.Name, "died", detail.DeathYear, ""),
			Citations: citation,
		})
	}
	for _, rel := range detail.Relations {
		if rel.Name == "" {
			continue
		}
		facts = append(facts, model.CandidateFact{
			Subject:   detail.Name,
			Statement: fmt.Sprintf("%s has %s %s", detail.Name, rel.Relation, rel.Name),
			Citations: citation,
		})
	}
	if len(facts) == 0 {
		// A bare name with no events or relations still attests existence.
		facts = append(facts, model.CandidateFact{
			Subject:   detail.Name,
			Statement: fmt.Sprintf("%s appears in %s record %s", detail.Name, detail.Source, detail.RecordID),
			Citations: citation,
		})
	}
	return facts, nil
}

func eventStatement(name, verb string, year int, place string) string {
	if place != "" {
		return fmt.Sprintf("%s %s %d in %s", name, verb, year, place)
	}
	return fmt.Sprintf("%s %s %d", name, verb, year)
}

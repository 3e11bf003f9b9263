package model

import (
	"time"

	"github.com/google/uuid"
)

// PillarStatus is the outcome of one proof-standard pillar
type PillarStatus string

const (
	PillarSatisfied PillarStatus = "SATISFIED"
	PillarPartial   PillarStatus = "PARTIAL"
	PillarFailed    PillarStatus = "FAILED"
	PillarPending   PillarStatus = "PENDING"
)

// Pillar indexes into GPSEvaluation.Pillars
type Pillar int

const (
	PillarExhaustiveSearch Pillar = iota // Reasonably exhaustive search
	PillarCompleteCitation               // Complete and accurate citations
	PillarAnalysis                       // Analysis and correlation of evidence
	PillarConflictRes                    // Resolution of conflicting evidence
	PillarConclusion                     // Soundly reasoned written conclusion

	NumPillars = 5
)

func (p Pillar) String() string {
	switch p {
	case PillarExhaustiveSearch:
		return "exhaustive_search"
	case PillarCompleteCitation:
		return "complete_citation"
	case PillarAnalysis:
		return "analysis_correlation"
	case PillarConflictRes:
		return "conflict_resolution"
	case PillarConclusion:
		return "written_conclusion"
	default:
		return "unknown"
	}
}

// Conflict is a piece of evidence that contradicts the fact under evaluation.
// Unresolved conflicts block acceptance regardless of pillar status.
type Conflict struct {
	Description string `json:"description"`
	Resolved    bool   `json:"resolved"`
	Resolution  string `json:"resolution,omitempty"`
}

// GPSEvaluation is one evaluation of one fact version against the five-pillar
// proof standard. Evaluations are never mutated after creation; a
// re-evaluation produces a new GPSEvaluation tied to the version it triggers.
type GPSEvaluation struct {
	ID              string                  `json:"id"`
	FactID          string                  `json:"fact_id"`
	FactVersion     int                     `json:"fact_version"`
	Pillars         [NumPillars]PillarStatus `json:"pillars"`
	SourcesSearched []string                `json:"sources_searched,omitempty"`
	SourcesMissing  []string                `json:"sources_missing,omitempty"`
	Conflicts       []Conflict              `json:"conflicts,omitempty"`
	Reasoning       string                  `json:"reasoning,omitempty"`
	ProofSummary    string                  `json:"proof_summary,omitempty"`
	Confidence      float64                 `json:"confidence"`
	EvaluatedBy     string                  `json:"evaluated_by"`
	CreatedAt       time.Time               `json:"created_at"`
}

// NewGPSEvaluation creates an evaluation shell for a fact version with all
// pillars pending
func NewGPSEvaluation(factID string, version int, agent string) *GPSEvaluation {
	ev := &GPSEvaluation{
		ID:          uuid.NewString(),
		FactID:      factID,
		FactVersion: version,
		EvaluatedBy: agent,
		CreatedAt:   time.Now().UTC(),
	}
	for i := range ev.Pillars {
		ev.Pillars[i] = PillarPending
	}
	return ev
}

// AllSatisfied reports whether every pillar is SATISFIED
func (e *GPSEvaluation) AllSatisfied() bool {
	for _, p := range e.Pillars {
		if p != PillarSatisfied {
			return false
		}
	}
	return true
}

// AnyFailed reports whether any pillar is FAILED
func (e *GPSEvaluation) AnyFailed() bool {
	for _, p := range e.Pillars {
		if p == PillarFailed {
			return true
		}
	}
	return false
}

// UnresolvedConflicts returns the conflicts not yet marked resolved
func (e *GPSEvaluation) UnresolvedConflicts() []Conflict {
	var out []Conflict
	for _, c := range e.Conflicts {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

// RevisionRequest is the message emitted to the external researcher when a
// fact fails the proof standard and needs revised evidence
type RevisionRequest struct {
	FactID         string                  `json:"fact_id"`
	FactVersion    int                     `json:"fact_version"`
	Pillars        [NumPillars]PillarStatus `json:"pillars"`
	SourcesMissing []string                `json:"sources_missing,omitempty"`
	Conflicts      []Conflict              `json:"conflicts,omitempty"`
	Reason         string                  `json:"reason"`
	RequestedAt    time.Time               `json:"requested_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// ConfidenceBaseline is the starting confidence for a newly proposed fact.
// A fact's confidence score must always equal this baseline plus the sum of
// its confidence history deltas.
const ConfidenceBaseline = 0.5

// FactStatus tracks where a fact sits in the proof-standard lifecycle
type FactStatus string

const (
	StatusProposed   FactStatus = "PROPOSED"   // Awaiting evaluation
	StatusAccepted   FactStatus = "ACCEPTED"   // Met the full proof standard
	StatusRejected   FactStatus = "REJECTED"   // Explicitly disproven
	StatusIncomplete FactStatus = "INCOMPLETE" // Evidence gaps or unresolved conflicts
)

// EvidenceType classifies how a citation bears on the claim
type EvidenceType string

const (
	EvidenceDirect   EvidenceType = "DIRECT"   // Source states the claim outright
	EvidenceIndirect EvidenceType = "INDIRECT" // Claim inferred from the source
	EvidenceNegative EvidenceType = "NEGATIVE" // Absence of an expected record
)

// SourceCitation is a single cited record backing a fact.
// Insertion order in Fact.Sources is citation order.
type SourceCitation struct {
	Repository   string       `json:"repository"`    // Source name (e.g., "familysearch")
	RecordID     string       `json:"record_id"`
	URL          string       `json:"url,omitempty"`
	AccessedAt   time.Time    `json:"accessed_at"`
	EvidenceType EvidenceType `json:"evidence_type"`
}

// ConfidenceDelta is one append-only adjustment to a fact's confidence
type ConfidenceDelta struct {
	Agent     string    `json:"agent"`
	Delta     float64   `json:"delta"` // Signed
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Provenance records which agent/process created a fact version and when
type Provenance struct {
	Agent     string    `json:"agent"`
	Process   string    `json:"process"`
	CreatedAt time.Time `json:"created_at"`
}

// Fact is a single versioned claim about a genealogical subject.
// A (fact_id, version) pair is immutable once written to the ledger; new
// information always creates version+1 rather than mutating a prior version.
type Fact struct {
	FactID            string            `json:"fact_id"`
	Version           int               `json:"version"` // Starts at 1, no gaps
	Subject           string            `json:"subject"` // Person the claim is about
	Statement         string            `json:"statement"`
	Sources           []SourceCitation  `json:"sources,omitempty"`
	Provenance        Provenance        `json:"provenance"`
	ConfidenceScore   float64           `json:"confidence_score"`
	ConfidenceHistory []ConfidenceDelta `json:"confidence_history,omitempty"`
	Status            FactStatus        `json:"status"`
	Annotations       []string          `json:"annotations,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`

	// Evaluation is the GPS evaluation that triggered this version, if any.
	// Nil on versions not produced by the evaluation engine.
	Evaluation *GPSEvaluation `json:"evaluation,omitempty"`
}

// NewFact creates a version-1 proposed fact with a fresh identifier
func NewFact(subject, statement string, sources []SourceCitation, prov Provenance) *Fact {
	if prov.CreatedAt.IsZero() {
		prov.CreatedAt = time.Now().UTC()
	}
	return &Fact{
		FactID:          uuid.NewString(),
		Version:         1,
		Subject:         subject,
		Statement:       statement,
		Sources:         sources,
		Provenance:      prov,
		ConfidenceScore: ConfidenceBaseline,
		Status:          StatusProposed,
		CreatedAt:       prov.CreatedAt,
	}
}

// RecomputeConfidence derives the confidence score from the baseline and the
// delta history. The stored ConfidenceScore is a cache of this value.
func (f *Fact) RecomputeConfidence() float64 {
	score := ConfidenceBaseline
	for _, d := range f.ConfidenceHistory {
		score += d.Delta
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// NextVersion returns a copy of the fact prepared as the successor version.
// The copy shares no slice storage with the receiver, so appending to the
// successor's history never mutates the prior (immutable) version.
func (f *Fact) NextVersion() *Fact {
	next := *f
	next.Version = f.Version + 1
	next.CreatedAt = time.Now().UTC()
	next.Sources = append([]SourceCitation(nil), f.Sources...)
	next.ConfidenceHistory = append([]ConfidenceDelta(nil), f.ConfidenceHistory...)
	next.Annotations = append([]string(nil), f.Annotations...)
	next.Evaluation = nil
	return &next
}

// ApplyDelta appends a confidence delta and updates the cached score
func (f *Fact) ApplyDelta(d ConfidenceDelta) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	f.ConfidenceHistory = append(f.ConfidenceHistory, d)
	f.ConfidenceScore = f.RecomputeConfidence()
}

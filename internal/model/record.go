package model

import "fmt"

// Query describes a person search against an external source
type Query struct {
	Name       string `json:"name,omitempty"`
	BirthYear  int    `json:"birth_year,omitempty"`
	Place      string `json:"place,omitempty"`
	ExternalID string `json:"external_id,omitempty"` // Source-qualified, preferred when known
}

// Key returns a stable cache key for the query
func (q Query) Key() string {
	return fmt.Sprintf("%s|%d|%s|%s", q.Name, q.BirthYear, q.Place, q.ExternalID)
}

// RecordRef identifies a record within a source for detail fetches
type RecordRef struct {
	Source   string `json:"source"`
	RecordID string `json:"record_id"`
}

// RelationEdge is an ID-to-ID relationship edge attached to a record.
// Relationships are never embedded object references; the graph is kept
// acyclic in ownership terms by addressing people through opaque IDs.
type RelationEdge struct {
	Relation   string `json:"relation"` // parent, sibling, spouse, child
	ExternalID string `json:"external_id"`
	Name       string `json:"name,omitempty"`
}

// CandidateRecord is a search hit from a source connector
type CandidateRecord struct {
	Source    string         `json:"source"`
	RecordID  string         `json:"record_id"`
	URL       string         `json:"url,omitempty"`
	Name      string         `json:"name"`
	BirthYear int            `json:"birth_year,omitempty"`
	DeathYear int            `json:"death_year,omitempty"`
	Place     string         `json:"place,omitempty"`
	Relations []RelationEdge `json:"relations,omitempty"`
}

// Ref returns the record's source-qualified reference
func (r CandidateRecord) Ref() RecordRef {
	return RecordRef{Source: r.Source, RecordID: r.RecordID}
}

// ExternalID returns the source-qualified identifier used by the frontier's
// seen set
func (r CandidateRecord) ExternalID() string {
	return r.Source + ":" + r.RecordID
}

// RecordDetail is the full record behind a candidate
type RecordDetail struct {
	CandidateRecord
	Fields map[string]string `json:"fields,omitempty"` // Source-specific extras
}

// CandidateFact is a fact statement proposed by the extractor capability,
// not yet written to the ledger
type CandidateFact struct {
	Subject    string           `json:"subject"`
	Statement  string           `json:"statement"`
	Citations  []SourceCitation `json:"citations,omitempty"`
	Confidence float64          `json:"confidence,omitempty"` // Extractor's own estimate, advisory only
}

package model

import "time"

// FrontierState is the crawl lifecycle of a frontier entry
type FrontierState string

const (
	FrontierQueued   FrontierState = "QUEUED"
	FrontierFetching FrontierState = "FETCHING"
	FrontierFetched  FrontierState = "FETCHED"
	FrontierFailed   FrontierState = "FAILED"
)

// CrawlFrontierEntry is one unresolved entity reference awaiting expansion.
// Entries are owned exclusively by the frontier; once FETCHED or terminally
// FAILED they leave the active queue but their ExternalID stays in the seen
// set forever so they are never reprocessed.
type CrawlFrontierEntry struct {
	ExternalID      string        `json:"external_id"` // Source-qualified ("familysearch:ABCD-123")
	Source          string        `json:"source"`
	Name            string        `json:"name,omitempty"`
	Relation        string        `json:"relation"` // Relative to the entry that discovered it
	GenerationDepth int           `json:"generation_depth"`
	DiscoveredAt    time.Time     `json:"discovered_at"`
	State           FrontierState `json:"state"`
	Attempts        int           `json:"attempts"`
	NextAttemptAt   time.Time     `json:"next_attempt_at,omitempty"` // Retry backoff gate
}

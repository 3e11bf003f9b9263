// Package connector adapts external genealogy systems to a uniform search
// capability. Every outbound call is admitted by the shared rate-limit
// registry first; no connector may reach a source's transport directly.
package connector

import (
	"context"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// Connector is the capability set exposed by one external source
type Connector interface {
	// Name returns the source name, which is also the rate-limit key
	Name() string

	// Search queries the source for candidate person records. Rate-limit
	// responses surface as *model.RateLimitSignal; the router owns retries.
	Search(ctx context.Context, q model.Query) ([]model.CandidateRecord, error)
}

// DetailFetcher is implemented by connectors that can expand a search hit
// into a full record
type DetailFetcher interface {
	FetchDetail(ctx context.Context, ref model.RecordRef) (*model.RecordDetail, error)
}

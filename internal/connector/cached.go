package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// Cached memoizes search responses so repeated frontier expansions of the
// same person don't spend rate-limit budget. Only successful, non-empty
// responses are cached.
type Cached struct {
	inner Connector
	cache *gocache.Cache
	ttl   time.Duration
}

// NewCached wraps a connector with an in-memory response cache
func NewCached(inner Connector, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

// Name returns the wrapped connector's source name
func (c *Cached) Name() string { return c.inner.Name() }

// Search returns a cached response when present, otherwise delegates
func (c *Cached) Search(ctx context.Context, q model.Query) ([]model.CandidateRecord, error) {
	key := cacheKey(c.inner.Name(), q)
	if val, found := c.cache.Get(key); found {
		return val.([]model.CandidateRecord), nil
	}

	records, err := c.inner.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		c.cache.Set(key, records, c.ttl)
	}
	return records, nil
}

// FetchDetail delegates when the wrapped connector supports detail fetches
func (c *Cached) FetchDetail(ctx context.Context, ref model.RecordRef) (*model.RecordDetail, error) {
	if df, ok := c.inner.(DetailFetcher); ok {
		return df.FetchDetail(ctx, ref)
	}
	return nil, &model.IrrecoverableDataError{Ref: ref.Source + ":" + ref.RecordID, Reason: "source has no detail endpoint"}
}

func cacheKey(source string, q model.Query) string {
	hash := sha256.Sum256([]byte(source + "|" + q.Key()))
	return "search:v1:" + hex.EncodeToString(hash[:])
}

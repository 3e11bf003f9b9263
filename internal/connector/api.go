package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ratelimit"
)

// APIConnector talks to a JSON-over-HTTP genealogy search API
type APIConnector struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limits     *ratelimit.Registry
	userAgent  string
}

// NewAPIConnector creates a connector for one API source
func NewAPIConnector(name, baseURL string, limits *ratelimit.Registry, timeout time.Duration, userAgent string) *APIConnector {
	return &APIConnector{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		limits:    limits,
		userAgent: userAgent,
	}
}

// Name returns the source name
func (c *APIConnector) Name() string { return c.name }

// apiRecord is the wire shape of one search hit
type apiRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	DeathYear int    `json:"death_year"`
	Place     string `json:"place"`
	URL       string `json:"url"`
	Relations []struct {
		Relation string `json:"relation"`
		ID       string `json:"id"`
		Name     string `json:"name"`
	} `json:"relations"`
}

type searchResponse struct {
	Results []apiRecord `json:"results"`
}

// Search queries the /search endpoint
func (c *APIConnector) Search(ctx context.Context, q model.Query) ([]model.CandidateRecord, error) {
	params := url.Values{}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.BirthYear > 0 {
		params.Set("birth", strconv.Itoa(q.BirthYear))
	}
	if q.Place != "" {
		params.Set("place", q.Place)
	}
	if q.ExternalID != "" {
		params.Set("id", q.ExternalID)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	records := make([]model.CandidateRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		records = append(records, c.toRecord(r))
	}
	return records, nil
}

// FetchDetail expands a search hit via the /records endpoint
func (c *APIConnector) FetchDetail(ctx context.Context, ref model.RecordRef) (*model.RecordDetail, error) {
	var raw struct {
		apiRecord
		Fields map[string]string `json:"fields"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/records/"+url.PathEscape(ref.RecordID), &raw); err != nil {
		return nil, err
	}
	return &model.RecordDetail{
		CandidateRecord: c.toRecord(raw.apiRecord),
		Fields:          raw.Fields,
	}, nil
}

// getJSON admits the call through the rate limiter, executes it, and maps
// rate-limit responses and transport failures onto the error taxonomy
func (c *APIConnector) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.limits.Acquire(ctx, c.name); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.limits.ReportFailure(c.name)
		return fmt.Errorf("%s request: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		c.limits.ReportFailure(c.name)
		return &model.RateLimitSignal{Source: c.name, RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		c.limits.ReportFailure(c.name)
		return fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		// Client errors don't trip the breaker: the source is healthy,
		// the request is not.
		return fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	c.limits.ReportSuccess(c.name)
	return nil
}

func (c *APIConnector) toRecord(r apiRecord) model.CandidateRecord {
	rec := model.CandidateRecord{
		Source:    c.name,
		RecordID:  r.ID,
		URL:       r.URL,
		Name:      r.Name,
		BirthYear: r.BirthYear,
		DeathYear: r.DeathYear,
		Place:     r.Place,
	}
	for _, rel := range r.Relations {
		rec.Relations = append(rec.Relations, model.RelationEdge{
			Relation:   rel.Relation,
			ExternalID: c.name + ":" + rel.ID,
			Name:       rel.Name,
		})
	}
	return rec
}

// retryAfter parses the Retry-After header when the remote supplies one
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

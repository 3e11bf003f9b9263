package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ratelimit"
)

// maxScrapeBytes bounds how much of an archive page is read
const maxScrapeBytes = 2_000_000

// ScrapeConnector is the fallback for archives without an API. It fetches
// HTML search pages, honors robots.txt, and parses record rows into
// candidates.
type ScrapeConnector struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limits     *ratelimit.Registry
	robots     *RobotsChecker
	userAgent  string
}

// NewScrapeConnector creates a scraping connector for one archive site
func NewScrapeConnector(name, baseURL string, limits *ratelimit.Registry, timeout time.Duration, userAgent string) *ScrapeConnector {
	return &ScrapeConnector{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limits:     limits,
		robots:     NewRobotsChecker(userAgent, timeout),
		userAgent:  userAgent,
	}
}

// Name returns the source name
func (c *ScrapeConnector) Name() string { return c.name }

// Search fetches and parses the archive's search page
func (c *ScrapeConnector) Search(ctx context.Context, q model.Query) ([]model.CandidateRecord, error) {
	params := url.Values{}
	if q.Name != "" {
		params.Set("q", q.Name)
	}
	if q.BirthYear > 0 {
		params.Set("year", strconv.Itoa(q.BirthYear))
	}
	if q.ExternalID != "" {
		params.Set("id", q.ExternalID)
	}
	searchURL := c.baseURL + "/search?" + params.Encode()

	allowed, crawlDelay, err := c.robots.CanFetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &model.SourceUnavailable{Source: c.name, Attempts: 0, Err: fmt.Errorf("disallowed by robots.txt")}
	}

	if err := c.limits.Acquire(ctx, c.name); err != nil {
		return nil, err
	}
	if crawlDelay > 0 {
		timer := time.NewTimer(crawlDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	doc, err := c.fetchHTML(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	return c.parseRecords(doc), nil
}

func (c *ScrapeConnector) fetchHTML(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.limits.ReportFailure(c.name)
		return nil, fmt.Errorf("%s fetch: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		c.limits.ReportFailure(c.name)
		return nil, &model.RateLimitSignal{Source: c.name, RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		c.limits.ReportFailure(c.name)
		return nil, fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		c.limits.ReportFailure(c.name)
		return nil, fmt.Errorf("read body: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	c.limits.ReportSuccess(c.name)
	return doc, nil
}

// parseRecords walks the document for rows marked class="record"
func (c *ScrapeConnector) parseRecords(doc *html.Node) []model.CandidateRecord {
	var records []model.CandidateRecord
	for _, row := range findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasClass(n, "record")
	}) {
		id := attr(row, "data-id")
		if id == "" {
			continue
		}
		rec := model.CandidateRecord{
			Source:   c.name,
			RecordID: id,
			Name:     textOfClass(row, "name"),
			Place:    textOfClass(row, "place"),
			URL:      c.baseURL + "/person/" + url.PathEscape(id),
		}
		if y, err := strconv.Atoi(textOfClass(row, "birth")); err == nil {
			rec.BirthYear = y
		}
		if y, err := strconv.Atoi(textOfClass(row, "death")); err == nil {
			rec.DeathYear = y
		}
		for _, link := range findAll(row, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "relation")
		}) {
			relID := attr(link, "data-id")
			if relID == "" {
				continue
			}
			rec.Relations = append(rec.Relations, model.RelationEdge{
				Relation:   attr(link, "data-relation"),
				ExternalID: c.name + ":" + relID,
				Name:       nodeText(link),
			})
		}
		records = append(records, rec)
	}
	return records
}

// HTML helpers

func findAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}

func hasClass(n *html.Node, className string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, class := range strings.Fields(a.Val) {
				if class == className {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := nodeText(c); t != "" {
			if buf.Len() > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(t)
		}
	}
	return buf.String()
}

func textOfClass(n *html.Node, className string) string {
	node := findFirst(n, func(c *html.Node) bool {
		return c.Type == html.ElementNode && hasClass(c, className)
	})
	if node == nil {
		return ""
	}
	return nodeText(node)
}

func findFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(n)
	return result
}

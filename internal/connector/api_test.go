package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ratelimit"
)

func openRegistry() *ratelimit.Registry {
	cfg := ratelimit.DefaultSourceConfig()
	cfg.MinInterval = 0
	cfg.MaxCalls = 1000
	return ratelimit.NewRegistry(cfg)
}

func TestAPIConnector_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("name"); got != "John Smith" {
			t.Errorf("expected name query, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"id":"R1","name":"John Smith","birth_year":1842,"place":"County Cork","relations":[{"relation":"parent","id":"R9","name":"James Smith"}]}]}`)
	}))
	defer server.Close()

	c := NewAPIConnector("testapi", server.URL, openRegistry(), 5*time.Second, "test-agent")
	records, err := c.Search(context.Background(), model.Query{Name: "John Smith"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.RecordID != "R1" || rec.BirthYear != 1842 || rec.Source != "testapi" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(rec.Relations) != 1 || rec.Relations[0].ExternalID != "testapi:R9" {
		t.Errorf("expected source-qualified relation ID, got %+v", rec.Relations)
	}
}

func TestAPIConnector_RateLimitSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewAPIConnector("testapi", server.URL, openRegistry(), 5*time.Second, "test-agent")
	_, err := c.Search(context.Background(), model.Query{Name: "X"})

	var signal *model.RateLimitSignal
	if !errors.As(err, &signal) {
		t.Fatalf("expected RateLimitSignal, got %v", err)
	}
	if signal.Source != "testapi" || signal.RetryAfter != 7*time.Second {
		t.Errorf("unexpected signal: %+v", signal)
	}
}

func TestAPIConnector_ServerErrorsFeedBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := ratelimit.DefaultSourceConfig()
	cfg.MinInterval = 0
	cfg.FailureThreshold = 2
	cfg.BreakerBase = time.Minute
	reg := ratelimit.NewRegistry(cfg)

	c := NewAPIConnector("flaky", server.URL, reg, 5*time.Second, "test-agent")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Search(ctx, model.Query{Name: "X"}); err == nil {
			t.Fatalf("expected error on attempt %d", i)
		}
	}

	// Two consecutive 500s tripped the breaker.
	_, err := c.Search(ctx, model.Query{Name: "X"})
	var open *model.CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("expected CircuitOpenError after threshold, got %v", err)
	}
}

func TestAPIConnector_FetchDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/records/R1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"id":"R1","name":"John Smith","birth_year":1842,"fields":{"occupation":"farmer"}}`)
	}))
	defer server.Close()

	c := NewAPIConnector("testapi", server.URL, openRegistry(), 5*time.Second, "test-agent")
	detail, err := c.FetchDetail(context.Background(), model.RecordRef{Source: "testapi", RecordID: "R1"})
	if err != nil {
		t.Fatalf("fetch detail failed: %v", err)
	}
	if detail.Fields["occupation"] != "farmer" {
		t.Errorf("expected detail fields, got %+v", detail.Fields)
	}
}

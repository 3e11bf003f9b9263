package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

func TestCheckpoint_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	state := State{
		Queue: []model.CrawlFrontierEntry{
			{ExternalID: "familysearch:A", Source: "familysearch", State: model.FrontierQueued, GenerationDepth: 1},
			{ExternalID: "familysearch:B", Source: "familysearch", State: model.FrontierFetching, Attempts: 1},
		},
		Seen:     []string{"familysearch:B", "familysearch:A", "familysearch:C"},
		Counters: Counters{Processed: 3, Succeeded: 2, Failed: 1},
	}

	if err := SaveCheckpoint(path, state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, found, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !found {
		t.Fatal("expected checkpoint to be found")
	}
	if len(loaded.Queue) != 2 || loaded.Queue[0].ExternalID != "familysearch:A" {
		t.Errorf("unexpected queue: %+v", loaded.Queue)
	}
	if len(loaded.Seen) != 3 {
		t.Errorf("unexpected seen set: %v", loaded.Seen)
	}
	if loaded.Counters != state.Counters {
		t.Errorf("counters mismatch: got %+v, want %+v", loaded.Counters, state.Counters)
	}
}

func TestCheckpoint_MissingFile(t *testing.T) {
	_, found, err := LoadCheckpoint(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for a missing checkpoint")
	}
}

func TestCheckpoint_CorruptionDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	state := State{
		Queue: []model.CrawlFrontierEntry{{ExternalID: "archives:X", Source: "archives"}},
		Seen:  []string{"archives:X"},
	}
	if err := SaveCheckpoint(path, state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	tampered := strings.Replace(string(data), "archives:X", "archives:Y", 1)
	if tampered == string(data) {
		t.Fatal("tamper target not found in checkpoint")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_, _, err = LoadCheckpoint(path)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("expected checksum mismatch error, got %v", err)
	}
}

func TestFrontier_RestoreDemotesFetching(t *testing.T) {
	f := NewFrontier()
	f.restore(State{
		Queue: []model.CrawlFrontierEntry{
			{ExternalID: "a", State: model.FrontierFetching},
			{ExternalID: "b", State: model.FrontierQueued},
		},
		Seen: []string{"a", "b"},
	})

	batch := f.NextBatch(10, time.Now())
	if len(batch) != 2 {
		t.Fatalf("expected both entries due, got %d", len(batch))
	}
	// The interrupted in-flight entry must have come back through the queue.
	if !f.Seen("a") || !f.Seen("b") {
		t.Error("restore dropped seen entries")
	}
}

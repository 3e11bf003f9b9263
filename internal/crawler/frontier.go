package crawler

import (
	"sync"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// Counters aggregate a crawl's progress across runs
type Counters struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

// Frontier owns the queue of unresolved entity references and the seen set.
// The crawl loop is its only writer. An external ID, once seen, is never
// enqueued again, even after its entry terminally fails.
type Frontier struct {
	mu       sync.Mutex
	queue    []model.CrawlFrontierEntry
	seen     map[string]bool
	counters Counters
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{seen: make(map[string]bool)}
}

// Enqueue adds an entry unless its external ID was already seen. Returns
// whether the entry was accepted.
func (f *Frontier) Enqueue(entry model.CrawlFrontierEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen[entry.ExternalID] {
		return false
	}
	f.seen[entry.ExternalID] = true
	entry.State = model.FrontierQueued
	if entry.DiscoveredAt.IsZero() {
		entry.DiscoveredAt = time.Now().UTC()
	}
	f.queue = append(f.queue, entry)
	return true
}

// NextBatch pops up to n entries whose retry gate has passed, marking each
// FETCHING. Queue order is preserved for entries not yet due.
func (f *Frontier) NextBatch(n int, now time.Time) []model.CrawlFrontierEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	var batch []model.CrawlFrontierEntry
	var remaining []model.CrawlFrontierEntry
	for _, e := range f.queue {
		if len(batch) < n && !e.NextAttemptAt.After(now) {
			e.State = model.FrontierFetching
			batch = append(batch, e)
			continue
		}
		remaining = append(remaining, e)
	}
	f.queue = remaining
	return batch
}

// NextDue returns the earliest retry gate among queued entries. The second
// return is false when the queue is empty.
func (f *Frontier) NextDue() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return time.Time{}, false
	}
	earliest := f.queue[0].NextAttemptAt
	for _, e := range f.queue[1:] {
		if e.NextAttemptAt.Before(earliest) {
			earliest = e.NextAttemptAt
		}
	}
	return earliest, true
}

// Complete marks an in-flight entry fetched; it leaves the active queue for
// good but stays in the seen set
func (f *Frontier) Complete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.Processed++
	f.counters.Succeeded++
}

// Retry re-queues a failed in-flight entry with its attempt count bumped and
// a backoff gate. Returns false once the attempt ceiling is reached, in which
// case the entry is terminally FAILED and counted.
func (f *Frontier) Retry(entry model.CrawlFrontierEntry, ceiling int, backoff time.Duration, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry.Attempts++
	if entry.Attempts >= ceiling {
		f.counters.Processed++
		f.counters.Failed++
		return false
	}
	f.counters.Retried++
	entry.State = model.FrontierQueued
	entry.NextAttemptAt = now.Add(backoff)
	f.queue = append(f.queue, entry)
	return true
}

// Fail terminally fails an in-flight entry without retrying (irrecoverable
// data)
func (f *Frontier) Fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.Processed++
	f.counters.Failed++
}

// Len returns the number of queued entries
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Seen reports whether an external ID has ever been enqueued
func (f *Frontier) Seen(externalID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[externalID]
}

// Counters returns a copy of the progress counters
func (f *Frontier) Counts() Counters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters
}

// snapshot captures frontier state for checkpointing. In-flight entries the
// caller passes in are recorded as FETCHING so an interrupted run can demote
// them to QUEUED on resume.
func (f *Frontier) snapshot(inflight []model.CrawlFrontierEntry) State {
	f.mu.Lock()
	defer f.mu.Unlock()

	queue := make([]model.CrawlFrontierEntry, 0, len(f.queue)+len(inflight))
	queue = append(queue, inflight...)
	queue = append(queue, f.queue...)

	seen := make([]string, 0, len(f.seen))
	for id := range f.seen {
		seen = append(seen, id)
	}
	return State{Queue: queue, Seen: seen, Counters: f.counters}
}

// restore replaces frontier state from a checkpoint. Entries checkpointed as
// FETCHING were in flight when the run stopped; they re-enter as QUEUED.
func (f *Frontier) restore(state State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queue = nil
	for _, e := range state.Queue {
		if e.State == model.FrontierFetching {
			e.State = model.FrontierQueued
		}
		f.queue = append(f.queue, e)
	}
	f.seen = make(map[string]bool, len(state.Seen))
	for _, id := range state.Seen {
		f.seen[id] = true
	}
	f.counters = state.Counters
}

// Package crawler expands an ancestry frontier: it resolves queued entity
// references against the configured sources, writes the facts each record
// attests to the ledger, and enqueues newly discovered relatives until the
// depth or entry ceiling is reached. A checkpoint is written after every
// processed entry so an interrupted run resumes exactly where it stopped.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/connector"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/extract"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ledger"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/worker"
)

// Searcher is the slice of the connector router the crawler needs
type Searcher interface {
	Search(ctx context.Context, q model.Query) (*connector.SearchOutcome, error)
	FetchDetail(ctx context.Context, ref model.RecordRef) (*model.RecordDetail, error)
}

// Config bounds a crawl run
type Config struct {
	BatchSize      int
	Workers        int
	MaxDepth       int
	MaxEntries     int // Across all runs sharing a checkpoint
	AttemptCeiling int
	BackoffBase    time.Duration
	CheckpointPath string
}

// FromModelCrawl converts the application crawl config
func FromModelCrawl(c model.CrawlConfig) Config {
	return Config{
		BatchSize:      c.BatchSize,
		Workers:        c.Workers,
		MaxDepth:       c.MaxDepth,
		MaxEntries:     c.MaxEntries,
		AttemptCeiling: c.AttemptCeiling,
		BackoffBase:    time.Duration(c.BackoffBaseSeconds) * time.Second,
		CheckpointPath: c.CheckpointPath,
	}
}

// RunReport summarizes one crawl run
type RunReport struct {
	Counters     Counters
	FactsWritten int
	QueueLeft    int
	Failures     map[string]string // External ID to terminal failure reason
	Elapsed      time.Duration
}

// Crawler drives the frontier loop
type Crawler struct {
	frontier  *Frontier
	search    Searcher
	extractor extract.Extractor
	ledger    *ledger.Ledger
	cfg       Config
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a crawler. The checkpoint at cfg.CheckpointPath, if present, is
// loaded so the run continues a previous one.
func New(search Searcher, extractor extract.Extractor, l *ledger.Ledger, cfg Config, logger *slog.Logger) (*Crawler, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	if cfg.AttemptCeiling <= 0 {
		cfg.AttemptCeiling = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Crawler{
		frontier:  NewFrontier(),
		search:    search,
		extractor: extractor,
		ledger:    l,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
	if cfg.CheckpointPath != "" {
		state, found, err := LoadCheckpoint(cfg.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if found {
			c.frontier.restore(state)
			logger.Info("resumed crawl checkpoint",
				"queued", c.frontier.Len(), "processed", state.Counters.Processed)
		}
	}
	return c, nil
}

// Seed enqueues starting entries at generation depth zero. Entries whose
// external ID was seen in a previous run are ignored.
func (c *Crawler) Seed(entries ...model.CrawlFrontierEntry) int {
	accepted := 0
	for _, e := range entries {
		e.GenerationDepth = 0
		if c.frontier.Enqueue(e) {
			accepted++
		}
	}
	return accepted
}

// QueueLen returns the number of entries waiting in the frontier
func (c *Crawler) QueueLen() int { return c.frontier.Len() }

// entryResult carries one fetched entry back from the worker pool
type entryResult struct {
	entry   model.CrawlFrontierEntry
	detail  *model.RecordDetail
	facts   []model.CandidateFact
	sources []string // Sources consulted, for provenance annotations
	err     error
}

func (r entryResult) Err() error { return r.err }

type fetchJob struct {
	crawler *Crawler
	entry   model.CrawlFrontierEntry
}

func (j fetchJob) Execute(ctx context.Context) worker.Result {
	return j.crawler.fetchOne(ctx, j.entry)
}

// Run drives the frontier until it drains, the entry ceiling is reached, or
// the context is cancelled. Cancellation is not an error: the checkpoint
// already holds everything needed to resume.
func (c *Crawler) Run(ctx context.Context) (*RunReport, error) {
	start := c.now()
	report := &RunReport{Failures: make(map[string]string)}

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		budget := c.cfg.MaxEntries - c.frontier.Counts().Processed
		if budget <= 0 {
			c.logger.Info("entry ceiling reached", "max_entries", c.cfg.MaxEntries)
			break
		}
		if c.frontier.Len() == 0 {
			break
		}

		size := c.cfg.BatchSize
		if size > budget {
			size = budget
		}
		batch := c.frontier.NextBatch(size, c.now())
		if len(batch) == 0 {
			// Everything queued is gated behind a retry backoff.
			due, ok := c.frontier.NextDue()
			if !ok {
				break
			}
			if err := c.sleep(ctx, due.Sub(c.now())); err != nil {
				break
			}
			continue
		}

		if err := c.processBatch(ctx, batch, report); err != nil {
			report.Counters = c.frontier.Counts()
			report.QueueLeft = c.frontier.Len()
			report.Elapsed = c.now().Sub(start)
			return report, err
		}
	}

	report.Counters = c.frontier.Counts()
	report.QueueLeft = c.frontier.Len()
	report.Elapsed = c.now().Sub(start)
	return report, nil
}

// processBatch fetches a batch concurrently, then applies the results one at
// a time: ledger writes, relation discovery, retry accounting, and a
// checkpoint after every entry.
func (c *Crawler) processBatch(ctx context.Context, batch []model.CrawlFrontierEntry, report *RunReport) error {
	pool := worker.NewPool(c.cfg.Workers, len(batch))
	pool.Start(ctx)
	for _, entry := range batch {
		pool.Submit(ctx, fetchJob{crawler: c, entry: entry})
	}
	results := pool.Drain()

	// Entries the pool never reported back (cancelled mid-batch) stay
	// in-flight for checkpointing purposes.
	pending := make(map[string]model.CrawlFrontierEntry, len(batch))
	for _, e := range batch {
		pending[e.ExternalID] = e
	}

	for _, r := range results {
		res, ok := r.(entryResult)
		if !ok {
			continue
		}
		delete(pending, res.entry.ExternalID)
		c.applyResult(ctx, res, report)
		if err := c.checkpoint(pending); err != nil {
			return err
		}
	}

	if len(pending) > 0 {
		// Cancelled before every job ran; demote the leftovers next run.
		if err := c.checkpoint(pending); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) applyResult(ctx context.Context, res entryResult, report *RunReport) {
	entry := res.entry
	if res.err != nil {
		if isRetryable(res.err) {
			if c.frontier.Retry(entry, c.cfg.AttemptCeiling, c.backoffFor(entry.Attempts), c.now()) {
				c.logger.Warn("entry retry scheduled",
					"external_id", entry.ExternalID, "attempts", entry.Attempts+1, "error", res.err)
				return
			}
			report.Failures[entry.ExternalID] = fmt.Sprintf("retries exhausted: %v", res.err)
			c.logger.Error("entry failed after retries", "external_id", entry.ExternalID, "error", res.err)
			return
		}
		c.frontier.Fail()
		report.Failures[entry.ExternalID] = res.err.Error()
		c.logger.Error("entry failed", "external_id", entry.ExternalID, "error", res.err)
		return
	}

	written := 0
	for _, cf := range res.facts {
		fact := model.NewFact(cf.Subject, cf.Statement, cf.Citations, model.Provenance{
			Agent:   "crawler",
			Process: "ancestry-crawl",
		})
		for _, src := range res.sources {
			fact.Annotations = append(fact.Annotations, "searched:"+src)
		}
		if _, err := c.ledger.Append(ctx, fact); err != nil {
			// A conflict on a fresh UUID should not happen; treat any append
			// failure as partial success and move on.
			c.logger.Error("ledger append failed", "subject", cf.Subject, "error", err)
			continue
		}
		written++
	}
	report.FactsWritten += written

	discovered := 0
	if res.detail != nil && entry.GenerationDepth < c.cfg.MaxDepth {
		for _, rel := range res.detail.Relations {
			if rel.ExternalID == "" {
				continue
			}
			next := model.CrawlFrontierEntry{
				ExternalID:      rel.ExternalID,
				Source:          entry.Source,
				Name:            rel.Name,
				Relation:        rel.Relation,
				GenerationDepth: entry.GenerationDepth + 1,
				DiscoveredAt:    c.now(),
			}
			if c.frontier.Enqueue(next) {
				discovered++
			}
		}
	}

	c.frontier.Complete()
	c.logger.Info("entry processed",
		"external_id", entry.ExternalID, "facts", written, "discovered", discovered,
		"depth", entry.GenerationDepth)
}

// fetchOne resolves a single frontier entry: search, detail fetch, extract
func (c *Crawler) fetchOne(ctx context.Context, entry model.CrawlFrontierEntry) entryResult {
	res := entryResult{entry: entry}

	outcome, err := c.search.Search(ctx, queryFor(entry))
	if outcome != nil {
		res.sources = outcome.SourcesSearched
	}
	if err != nil {
		res.err = err
		return res
	}
	if len(outcome.Records) == 0 {
		res.err = &model.IrrecoverableDataError{Ref: entry.ExternalID, Reason: "no source returned a matching record"}
		return res
	}

	record := pickRecord(outcome.Records, entry.ExternalID)
	detail, err := c.search.FetchDetail(ctx, record.Ref())
	if err != nil {
		res.err = err
		return res
	}
	res.detail = detail

	facts, err := c.extractor.Extract(ctx, detail)
	if err != nil {
		res.err = err
		return res
	}
	res.facts = facts
	return res
}

func (c *Crawler) checkpoint(pending map[string]model.CrawlFrontierEntry) error {
	if c.cfg.CheckpointPath == "" {
		return nil
	}
	inflight := make([]model.CrawlFrontierEntry, 0, len(pending))
	for _, e := range pending {
		e.State = model.FrontierFetching
		inflight = append(inflight, e)
	}
	if err := SaveCheckpoint(c.cfg.CheckpointPath, c.frontier.snapshot(inflight)); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (c *Crawler) backoffFor(priorAttempts int) time.Duration {
	return c.cfg.BackoffBase << uint(priorAttempts)
}

// seedPrefix marks frontier entries seeded by name only; they search by name
// instead of by record ID
const seedPrefix = "seed:"

// SeedEntry builds a starting frontier entry. When no record ID is known the
// entry gets a synthetic seed identifier and resolves via name search.
func SeedEntry(name, source, externalID string) model.CrawlFrontierEntry {
	if externalID == "" {
		externalID = seedPrefix + name
	}
	return model.CrawlFrontierEntry{
		ExternalID: externalID,
		Source:     source,
		Name:       name,
		Relation:   "self",
	}
}

// queryFor prefers the source-qualified record ID; name-only seeds fall back
// to a name search
func queryFor(entry model.CrawlFrontierEntry) model.Query {
	if strings.HasPrefix(entry.ExternalID, seedPrefix) || !strings.Contains(entry.ExternalID, ":") {
		return model.Query{Name: entry.Name}
	}
	return model.Query{ExternalID: entry.ExternalID, Name: entry.Name}
}

// pickRecord prefers the record whose source-qualified ID matches the entry
func pickRecord(records []model.CandidateRecord, externalID string) model.CandidateRecord {
	for _, r := range records {
		if r.ExternalID() == externalID {
			return r
		}
	}
	return records[0]
}

// isRetryable classifies errors that warrant re-queueing the entry
func isRetryable(err error) bool {
	var signal *model.RateLimitSignal
	var unavailable *model.SourceUnavailable
	var conflict *model.LedgerWriteConflict
	return errors.As(err, &signal) || errors.As(err, &unavailable) || errors.As(err, &conflict)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

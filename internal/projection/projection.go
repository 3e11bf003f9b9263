// Package projection is the denormalized read model. It is fully disposable:
// Rebuild wipes it and replays the ledger in ascending (fact_id, version)
// order, so two rebuilds of the same ledger produce identical contents. No
// component other than the replay path may write to it.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ledger"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS facts_current (
	fact_id     TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	person      TEXT NOT NULL,
	statement   TEXT NOT NULL,
	status      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	event_year  INTEGER,
	place       TEXT,
	source_count INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_person ON facts_current(person);
CREATE INDEX IF NOT EXISTS idx_facts_status ON facts_current(status);
CREATE INDEX IF NOT EXISTS idx_facts_year   ON facts_current(event_year);
CREATE INDEX IF NOT EXISTS idx_facts_place  ON facts_current(place);
`

// Row is one denormalized fact in the read model
type Row struct {
	FactID      string
	Version     int
	Person      string
	Statement   string
	Status      model.FactStatus
	Confidence  float64
	EventYear   int
	Place       string
	SourceCount int
}

// Projection is the SQLite-backed read model
type Projection struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the projection database
func Open(path string) (*Projection, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create projection directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open projection: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create projection schema: %w", err)
	}
	return &Projection{db: db, path: path}, nil
}

// Close closes the database
func (p *Projection) Close() error {
	return p.db.Close()
}

// Rebuild wipes the projection and replays the full ledger into it
func (p *Projection) Rebuild(ctx context.Context, l *ledger.Ledger) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM facts_current"); err != nil {
		return fmt.Errorf("wipe projection: %w", err)
	}

	ids, err := l.FactIDs(ctx)
	if err != nil {
		return fmt.Errorf("list fact IDs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facts_current
			(fact_id, version, person, statement, status, confidence, event_year, place, source_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fact_id) DO UPDATE SET
			version = excluded.version,
			person = excluded.person,
			statement = excluded.statement,
			status = excluded.status,
			confidence = excluded.confidence,
			event_year = excluded.event_year,
			place = excluded.place,
			source_count = excluded.source_count,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		versions, err := l.Versions(ctx, id)
		if err != nil {
			return fmt.Errorf("read versions of %s: %w", id, err)
		}
		// Each version is applied as an upsert; after replay the row holds
		// the highest version, same as an incremental build would.
		for i := range versions {
			f := &versions[i]
			year, place := eventFields(f)
			if _, err := stmt.ExecContext(ctx,
				f.FactID, f.Version, f.Subject, f.Statement, string(f.Status),
				f.ConfidenceScore, year, place, len(f.Sources),
				f.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			); err != nil {
				return fmt.Errorf("upsert %s v%d: %w", f.FactID, f.Version, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// ByStatus returns current facts with the given status, ordered by fact_id
func (p *Projection) ByStatus(ctx context.Context, status model.FactStatus) ([]Row, error) {
	return p.query(ctx, "SELECT "+rowColumns+" FROM facts_current WHERE status = ? ORDER BY fact_id", string(status))
}

// ByPerson returns current facts about the given person
func (p *Projection) ByPerson(ctx context.Context, person string) ([]Row, error) {
	return p.query(ctx, "SELECT "+rowColumns+" FROM facts_current WHERE person = ? ORDER BY fact_id", person)
}

// ByDateRange returns current facts whose event year falls in [from, to]
func (p *Projection) ByDateRange(ctx context.Context, from, to int) ([]Row, error) {
	return p.query(ctx, "SELECT "+rowColumns+" FROM facts_current WHERE event_year BETWEEN ? AND ? ORDER BY event_year, fact_id", from, to)
}

// ByPlace returns current facts tied to the given place
func (p *Projection) ByPlace(ctx context.Context, place string) ([]Row, error) {
	return p.query(ctx, "SELECT "+rowColumns+" FROM facts_current WHERE place = ? ORDER BY fact_id", place)
}

// Counts returns the number of current facts per status
func (p *Projection) Counts(ctx context.Context) (map[model.FactStatus]int, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM facts_current GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.FactStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.FactStatus(status)] = n
	}
	return counts, rows.Err()
}

// All returns every row ordered by fact_id; used by rebuild-determinism checks
func (p *Projection) All(ctx context.Context) ([]Row, error) {
	return p.query(ctx, "SELECT "+rowColumns+" FROM facts_current ORDER BY fact_id")
}

const rowColumns = "fact_id, version, person, statement, status, confidence, event_year, place, source_count"

func (p *Projection) query(ctx context.Context, q string, args ...any) ([]Row, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("projection query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		var status string
		var year sql.NullInt64
		var place sql.NullString
		if err := rows.Scan(&r.FactID, &r.Version, &r.Person, &r.Statement, &status, &r.Confidence, &year, &place, &r.SourceCount); err != nil {
			return nil, fmt.Errorf("scan projection row: %w", err)
		}
		r.Status = model.FactStatus(status)
		r.EventYear = int(year.Int64)
		r.Place = place.String
		out = append(out, r)
	}
	return out, rows.Err()
}

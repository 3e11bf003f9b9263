// Package ledger is the append-only, versioned write model for facts. A
// (fact_id, version) pair is immutable once committed; there is no update or
// delete operation. Keys live in three namespaces:
//
//	facts:{fact_id}:{version}  serialized fact version
//	idx:{fact_id}              latest version number
//	events:{fact_id}:{version} status-transition audit record
//
// A failed commit never advances the latest-version index: fact, index, and
// event are written in one transaction.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

const (
	prefixFact  = "facts:"
	prefixIndex = "idx:"
	prefixEvent = "events:"

	// appendRetries bounds the optimistic-concurrency retry loop before an
	// append surfaces LedgerWriteConflict
	appendRetries = 3

	// lockStripes sizes the per-fact-ID lock table
	lockStripes = 64
)

// ErrNotFound is returned when a fact or version does not exist
var ErrNotFound = errors.New("ledger: fact not found")

// Event is the audit record appended alongside every fact version
type Event struct {
	FactID  string           `json:"fact_id"`
	Version int              `json:"version"`
	Status  model.FactStatus `json:"status"`
	Agent   string           `json:"agent"`
	Reason  string           `json:"reason,omitempty"`
	At      time.Time        `json:"at"`
}

// Config configures the ledger store
type Config struct {
	Path       string // Directory for the store; ignored when InMemory
	InMemory   bool   // For tests
	SyncWrites bool
	Logger     *slog.Logger
}

// Ledger is the badger-backed fact store
type Ledger struct {
	db    *badger.DB
	locks [lockStripes]sync.Mutex
}

// Open opens (creating if needed) the ledger store
func Open(cfg Config) (*Ledger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("ledger: path is required for persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying store
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append commits the fact as the next version for its fact_id and returns the
// version number assigned. The caller's Version field is ignored; the ledger
// computes latest+1 under a per-fact_id lock so concurrent appenders cannot
// produce gaps or lost updates.
func (l *Ledger) Append(ctx context.Context, fact *model.Fact) (int, error) {
	if fact.FactID == "" {
		return 0, &model.IrrecoverableDataError{Ref: "(empty)", Reason: "fact has no fact_id"}
	}

	lock := l.lockFor(fact.FactID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < appendRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		version, err := l.tryAppend(fact)
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return 0, err
		}
	}
	return 0, &model.LedgerWriteConflict{FactID: fact.FactID}
}

func (l *Ledger) tryAppend(fact *model.Fact) (int, error) {
	var version int
	err := l.db.Update(func(txn *badger.Txn) error {
		latest, err := readLatest(txn, fact.FactID)
		if err != nil {
			return err
		}
		version = latest + 1

		stored := *fact
		stored.Version = version
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}

		payload, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("marshal fact: %w", err)
		}
		if err := txn.Set(factKey(fact.FactID, version), payload); err != nil {
			return err
		}
		if err := txn.Set(indexKey(fact.FactID), []byte(strconv.Itoa(version))); err != nil {
			return err
		}

		event := Event{
			FactID:  fact.FactID,
			Version: version,
			Status:  stored.Status,
			Agent:   stored.Provenance.Agent,
			Reason:  lastDeltaReason(&stored),
			At:      stored.CreatedAt,
		}
		eventPayload, err := json.Marshal(&event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return txn.Set(eventKey(fact.FactID, version), eventPayload)
	})
	if err != nil {
		return 0, err
	}
	fact.Version = version
	return version, nil
}

// Get returns the latest version of the fact, or ErrNotFound
func (l *Ledger) Get(ctx context.Context, factID string) (*model.Fact, error) {
	var fact *model.Fact
	err := l.db.View(func(txn *badger.Txn) error {
		latest, err := readLatest(txn, factID)
		if err != nil {
			return err
		}
		if latest == 0 {
			return ErrNotFound
		}
		fact, err = readFact(txn, factID, latest)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fact, nil
}

// GetVersion returns one specific version of the fact
func (l *Ledger) GetVersion(ctx context.Context, factID string, version int) (*model.Fact, error) {
	var fact *model.Fact
	err := l.db.View(func(txn *badger.Txn) error {
		var innerErr error
		fact, innerErr = readFact(txn, factID, version)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return fact, nil
}

// Versions returns every version of the fact in ascending order, gap-free
func (l *Ledger) Versions(ctx context.Context, factID string) ([]model.Fact, error) {
	var facts []model.Fact
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIteratorOptions([]byte(prefixFact + factID + ":")))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var fact model.Fact
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fact)
			}); err != nil {
				return fmt.Errorf("decode fact: %w", err)
			}
			facts = append(facts, fact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, ErrNotFound
	}
	return facts, nil
}

// FactIDs returns every known fact_id in ascending order. Projection rebuilds
// rely on this ordering for determinism.
func (l *Ledger) FactIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := l.db.View(func(txn *badger.Txn) error {
		opts := prefixIteratorOptions([]byte(prefixIndex))
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(prefixIndex):])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Events returns the fact's status-transition audit trail in version order
func (l *Ledger) Events(ctx context.Context, factID string) ([]Event, error) {
	var events []Event
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIteratorOptions([]byte(prefixEvent + factID + ":")))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var ev Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (l *Ledger) lockFor(factID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(factID))
	return &l.locks[h.Sum32()%lockStripes]
}

// readLatest returns 0 when the fact has no versions yet
func readLatest(txn *badger.Txn, factID string) (int, error) {
	item, err := txn.Get(indexKey(factID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var latest int
	err = item.Value(func(val []byte) error {
		var convErr error
		latest, convErr = strconv.Atoi(string(val))
		return convErr
	})
	if err != nil {
		return 0, fmt.Errorf("decode latest-version index for %s: %w", factID, err)
	}
	return latest, nil
}

func readFact(txn *badger.Txn, factID string, version int) (*model.Fact, error) {
	item, err := txn.Get(factKey(factID, version))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var fact model.Fact
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &fact)
	}); err != nil {
		return nil, fmt.Errorf("decode fact %s v%d: %w", factID, version, err)
	}
	return &fact, nil
}

// Zero-padded versions keep lexicographic key order equal to version order
func factKey(factID string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", prefixFact, factID, version))
}

func indexKey(factID string) []byte {
	return []byte(prefixIndex + factID)
}

func eventKey(factID string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", prefixEvent, factID, version))
}

func prefixIteratorOptions(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	return opts
}

func lastDeltaReason(f *model.Fact) string {
	if len(f.ConfidenceHistory) == 0 {
		return ""
	}
	return f.ConfidenceHistory[len(f.ConfidenceHistory)-1].Reason
}

// badgerLogger adapts slog to badger's logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

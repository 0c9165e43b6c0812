package models

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// StoreOptions configures OpenStore.
type StoreOptions struct {
	// Path of the DuckDB file. Empty opens a private in-memory database.
	Path string
	// Clock is used for change-log and sync-log timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Store is the handle to one node's local library database. Every write to
// a tracked table goes through Write so that its change-log entry is
// recorded in the same transaction.
type Store struct {
	db    *sql.DB
	path  string
	clock func() time.Time

	// writeMu serializes write transactions; DuckDB aborts conflicting
	// concurrent writers instead of blocking them.
	writeMu sync.Mutex

	stampMu   sync.Mutex
	lastStamp time.Time
}

// OpenStore opens (creating if needed) the database and its change-tracking
// schema.
func OpenStore(ctx context.Context, opts StoreOptions) (*Store, error) {
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return nil, serr.Wrap(err, "failed to open database")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{db: db, path: opts.Path, clock: clock}

	if err := migrateDB(ctx, db); err != nil {
		db.Close()
		return nil, serr.Wrap(err, "failed to migrate database")
	}

	if err := s.loadLastStamp(ctx); err != nil {
		db.Close()
		return nil, serr.Wrap(err, "failed to read last change timestamp")
	}

	where := opts.Path
	if where == "" {
		where = "(memory)"
	}
	logger.Debug("Store opened", "path", where)
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path reports the database file ("" when in-memory).
func (s *Store) Path() string { return s.path }

// Now returns a timestamp strictly later than any previously issued by this
// store, at the database's microsecond resolution. Change-log entries,
// export marks and sync-log entries all draw from it, so a mark taken at
// the start of an export orders after every change already committed.
func (s *Store) Now() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()

	t := s.clock().UTC().Truncate(time.Microsecond)
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

// observeStamp makes sure future stamps order after t.
func (s *Store) observeStamp(t time.Time) {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	if t.After(s.lastStamp) {
		s.lastStamp = t.UTC()
	}
}

// loadLastStamp seeds the stamp generator from what is already on disk so
// a restarted node with a lagging clock keeps its logs monotonic.
func (s *Store) loadLastStamp(ctx context.Context) error {
	parts := []string{"SELECT max(synced_at) AS ts FROM sync_log"}
	for _, t := range trackedTables {
		parts = append(parts, fmt.Sprintf("SELECT max(changed_at) FROM %s", t.ChangeTable()))
	}
	for _, l := range linkTables {
		parts = append(parts, fmt.Sprintf("SELECT max(changed_at) FROM %s", l.ChangeTable()))
	}
	query := "SELECT max(ts) FROM (" + strings.Join(parts, " UNION ALL ") + ")"

	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx, query).Scan(&last); err != nil {
		return serr.Wrap(err, "failed to query change timestamps")
	}
	if last.Valid {
		s.observeStamp(last.Time)
	}
	return nil
}

// Write runs fn inside one write transaction. Mutations made through the
// WriteTx are logged in that same transaction; any error returned by fn,
// or raised while logging, rolls back everything.
func (s *Store) Write(ctx context.Context, fn func(w *WriteTx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serr.Wrap(err, "failed to begin write transaction")
	}

	w := &WriteTx{ctx: ctx, tx: tx, store: s}
	if err := fn(w); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return serr.Wrap(err, "failed to commit write transaction")
	}
	return nil
}

// Read runs fn inside a single transaction so that everything it reads is
// consistent with one point in time.
func (s *Store) Read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serr.Wrap(err, "failed to begin read transaction")
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// unloggedWrite runs fn in a write transaction that bypasses the change
// log. Only the importer and bootstrap restore use it.
func (s *Store) unloggedWrite(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serr.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return serr.Wrap(err, "failed to commit transaction")
	}
	return nil
}

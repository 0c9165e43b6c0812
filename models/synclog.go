package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/rohanthewiz/serr"
)

// Sync log entry kinds
const (
	SyncKindPush      = "push"
	SyncKindBootstrap = "bootstrap"
	SyncKindManual    = "manual"
)

// SyncLogEntry records one completed synchronization or bootstrap.
type SyncLogEntry struct {
	Seq      int64     `json:"seq"`
	SyncedAt time.Time `json:"synced_at"`
	Kind     string    `json:"kind"`
}

// appendSyncLog records a sync at syncedAt. Entries must be strictly
// increasing; a mark at or before the current maximum is rejected.
func appendSyncLog(ctx context.Context, tx *sql.Tx, syncedAt time.Time, kind string) error {
	syncedAt = syncedAt.UTC().Truncate(time.Microsecond)

	var last sql.NullTime
	if err := tx.QueryRowContext(ctx, "SELECT max(synced_at) FROM sync_log").Scan(&last); err != nil {
		return serr.Wrap(err, "failed to read sync log")
	}
	if last.Valid && !syncedAt.After(last.Time) {
		return serr.New("sync log entries must be strictly increasing: " +
			syncedAt.Format(time.RFC3339Nano) + " is not after " + last.Time.UTC().Format(time.RFC3339Nano))
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sync_log (synced_at, kind) VALUES (?, ?)", syncedAt, kind); err != nil {
		return serr.Wrap(err, "failed to append sync log entry")
	}
	return nil
}

// RecordSync appends a sync-log entry on its own. Used to establish a
// low-water mark out of band, e.g. after both nodes were seeded from the
// same data.
func (s *Store) RecordSync(ctx context.Context, syncedAt time.Time, kind string) error {
	s.observeStamp(syncedAt)
	return s.unloggedWrite(ctx, func(tx *sql.Tx) error {
		return appendSyncLog(ctx, tx, syncedAt, kind)
	})
}

// LastSync returns the current low-water mark, or the zero time if this
// node has never synced.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT max(synced_at) FROM sync_log").Scan(&last); err != nil {
		return time.Time{}, serr.Wrap(err, "failed to read last sync")
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time.UTC(), nil
}

// SyncHistory lists the most recent sync-log entries, newest first.
func (s *Store) SyncHistory(ctx context.Context, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, synced_at, kind FROM sync_log ORDER BY synced_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, serr.Wrap(err, "failed to query sync history")
	}
	defer rows.Close()

	var out []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		if err := rows.Scan(&e.Seq, &e.SyncedAt, &e.Kind); err != nil {
			return nil, serr.Wrap(err, "failed to scan sync log entry")
		}
		e.SyncedAt = e.SyncedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Wrap(err, "sync history iteration failed")
	}
	return out, nil
}

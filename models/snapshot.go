package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// TableRows is a full dump of one table, positional against Columns.
type TableRows struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Snapshot is a complete dump of every tracked table and link table.
// Change logs and the sync log are not part of it.
type Snapshot struct {
	TakenAt time.Time             `json:"taken_at"`
	Tables  map[string]*TableRows `json:"tables"`
	Links   map[string][]LinkPair `json:"links"`
}

// RowCount returns the number of rows held for table.
func (s *Snapshot) RowCount(table string) int {
	if tr, ok := s.Tables[table]; ok {
		return len(tr.Rows)
	}
	return 0
}

// Snapshot dumps the library from one read transaction.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		TakenAt: s.Now(),
		Tables:  make(map[string]*TableRows, len(trackedTables)),
		Links:   make(map[string][]LinkPair, len(linkTables)),
	}

	err := s.Read(ctx, func(tx *sql.Tx) error {
		for _, t := range trackedTables {
			rows, err := readRows(ctx, tx, t, "")
			if err != nil {
				return err
			}
			snap.Tables[t.Name] = &TableRows{Columns: t.ColumnNames(), Rows: rows}
		}
		for _, l := range linkTables {
			pairs, err := queryPairs(ctx, tx, l, "")
			if err != nil {
				return err
			}
			snap.Links[l.Name] = pairs
		}
		return nil
	})
	if err != nil {
		return nil, serr.Wrap(err, "snapshot failed")
	}
	return snap, nil
}

// Restore replaces the whole store with snap: every table, change log and
// sequence is dropped and recreated, the rows are loaded without logging,
// and a bootstrap sync-log entry at bootstrappedAt becomes the new
// low-water mark. It all happens in one transaction.
func (s *Store) Restore(ctx context.Context, snap *Snapshot, bootstrappedAt time.Time) error {
	if snap == nil {
		return serr.New("no snapshot to restore")
	}
	for name := range snap.Tables {
		if _, ok := LookupTable(name); !ok {
			return serr.Wrap(ErrUnknownTable, name)
		}
	}
	for name := range snap.Links {
		if _, ok := LookupLinkTable(name); !ok {
			return serr.Wrap(ErrUnknownTable, name)
		}
	}

	s.observeStamp(bootstrappedAt)

	err := s.unloggedWrite(ctx, func(tx *sql.Tx) error {
		if err := resetSchema(ctx, tx); err != nil {
			return err
		}

		for _, t := range trackedTables {
			tr, ok := snap.Tables[t.Name]
			if !ok {
				continue
			}
			for _, values := range tr.Rows {
				cols, args, err := matchColumns(t, tr.Columns, values)
				if err != nil {
					return err
				}
				query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, quotedList(cols), placeholders(len(cols)))
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return serr.Wrap(err, "failed to load rows into "+t.Name)
				}
			}
		}

		for _, l := range linkTables {
			query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING", l.Name, l.ColumnA, l.ColumnB)
			for _, p := range snap.Links[l.Name] {
				if _, err := tx.ExecContext(ctx, query, p.A, p.B); err != nil {
					return serr.Wrap(err, "failed to load pairs into "+l.Name)
				}
			}
		}

		return appendSyncLog(ctx, tx, bootstrappedAt, SyncKindBootstrap)
	})
	if err != nil {
		return serr.Wrap(err, "restore failed")
	}

	logger.Info("Store restored from snapshot",
		"taken_at", snap.TakenAt.Format(time.RFC3339),
		"entries", snap.RowCount("entry"),
		"authors", snap.RowCount("author"),
		"files", snap.RowCount("file"),
	)
	return nil
}

package models

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Import applies a diff received from a peer in one transaction:
// upserts of inserted and updated rows, then row deletes, then link
// inserts, then link deletes. Nothing is written to the change logs, and
// the sync log is left alone. The diff is trusted as-is; no referential
// checks are made. Any failure rolls back the whole import.
func (s *Store) Import(ctx context.Context, diff *DiffSet) error {
	return s.unloggedWrite(ctx, func(tx *sql.Tx) error {
		return importDiff(ctx, tx, diff)
	})
}

// ImportAndRecordSync applies diff and appends a sync-log entry at syncedAt
// in the same transaction, so that either both happen or neither does.
func (s *Store) ImportAndRecordSync(ctx context.Context, diff *DiffSet, syncedAt time.Time, kind string) error {
	s.observeStamp(syncedAt)
	return s.unloggedWrite(ctx, func(tx *sql.Tx) error {
		if err := importDiff(ctx, tx, diff); err != nil {
			return err
		}
		return appendSyncLog(ctx, tx, syncedAt, kind)
	})
}

func importDiff(ctx context.Context, tx *sql.Tx, diff *DiffSet) error {
	if diff == nil {
		return nil
	}

	// Reject unknown tables before touching anything.
	for name := range diff.Tables {
		if _, ok := LookupTable(name); !ok {
			return serr.Wrap(ErrUnknownTable, name)
		}
	}
	for name := range diff.Links {
		if _, ok := LookupLinkTable(name); !ok {
			return serr.Wrap(ErrUnknownTable, name)
		}
	}

	for _, t := range trackedTables {
		td, ok := diff.Tables[t.Name]
		if !ok {
			continue
		}
		for _, values := range td.Inserted {
			if err := upsertRow(ctx, tx, t, td.Columns, values); err != nil {
				return err
			}
		}
		for _, values := range td.Updated {
			if err := upsertRow(ctx, tx, t, td.Columns, values); err != nil {
				return err
			}
		}
	}

	// Children before parents so subtable rows go before their entry.
	for i := len(trackedTables) - 1; i >= 0; i-- {
		t := trackedTables[i]
		td, ok := diff.Tables[t.Name]
		if !ok {
			continue
		}
		for _, id := range td.Deleted {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.Name), id); err != nil {
				return serr.Wrap(err, "failed to delete from "+t.Name)
			}
		}
	}

	for _, l := range linkTables {
		ld, ok := diff.Links[l.Name]
		if !ok {
			continue
		}
		query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING", l.Name, l.ColumnA, l.ColumnB)
		for _, p := range ld.Inserted {
			if _, err := tx.ExecContext(ctx, query, p.A, p.B); err != nil {
				return serr.Wrap(err, "failed to insert into "+l.Name)
			}
		}
	}

	for _, l := range linkTables {
		ld, ok := diff.Links[l.Name]
		if !ok {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", l.Name, l.ColumnA, l.ColumnB)
		for _, p := range ld.Deleted {
			if _, err := tx.ExecContext(ctx, query, p.A, p.B); err != nil {
				return serr.Wrap(err, "failed to delete from "+l.Name)
			}
		}
	}

	counts := diff.Counts()
	logger.Debug("Imported diff",
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"deleted", counts.Deleted,
		"links_inserted", counts.LinksInserted,
		"links_deleted", counts.LinksDeleted,
	)
	return nil
}

// upsertRow inserts the row or, if the id exists, overwrites the columns the
// sender supplied. Columns the local schema does not know are skipped.
func upsertRow(ctx context.Context, tx *sql.Tx, t Table, columns []string, values []any) error {
	cols, args, err := matchColumns(t, columns, values)
	if err != nil {
		return err
	}

	var conflict string
	var assigns []string
	for _, c := range cols {
		if c != "id" {
			assigns = append(assigns, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
		}
	}
	if len(assigns) == 0 {
		conflict = "ON CONFLICT (id) DO NOTHING"
	} else {
		conflict = "ON CONFLICT (id) DO UPDATE SET " + strings.Join(assigns, ", ")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		t.Name, quotedList(cols), placeholders(len(cols)), conflict)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return serr.Wrap(err, "failed to upsert into "+t.Name)
	}
	return nil
}

// matchColumns maps positional values onto the local table by column name.
func matchColumns(t Table, columns []string, values []any) ([]string, []any, error) {
	if len(values) != len(columns) {
		return nil, nil, serr.New(fmt.Sprintf("%s: row has %d values for %d columns", t.Name, len(values), len(columns)))
	}

	var cols []string
	var args []any
	hasID := false
	for i, name := range columns {
		c, ok := t.Column(name)
		if !ok {
			continue
		}
		v, err := NormalizeValue(c, values[i])
		if err != nil {
			return nil, nil, err
		}
		if name == "id" {
			if v == nil {
				return nil, nil, ErrMissingID
			}
			hasID = true
		}
		cols = append(cols, name)
		args = append(args, v)
	}
	if !hasID {
		return nil, nil, ErrMissingID
	}
	return cols, args, nil
}

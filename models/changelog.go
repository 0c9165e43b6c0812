package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Change log operation types
const (
	OperationInsert = 1
	OperationUpdate = 2
	OperationDelete = 3
)

// OperationName returns a human readable name for a change-log op.
func OperationName(op int) string {
	switch op {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", op)
}

// ChangeEntry is one row of a table's change log.
type ChangeEntry struct {
	Seq       int64     `msgpack:"seq" json:"seq"`
	RowID     string    `msgpack:"row_id" json:"row_id"`
	Op        int       `msgpack:"op" json:"op"`
	ChangedAt time.Time `msgpack:"changed_at" json:"changed_at"`
}

// LinkChangeEntry is one row of a link table's change log.
type LinkChangeEntry struct {
	Seq       int64     `msgpack:"seq" json:"seq"`
	IDA       string    `msgpack:"id_a" json:"id_a"`
	IDB       string    `msgpack:"id_b" json:"id_b"`
	Op        int       `msgpack:"op" json:"op"`
	ChangedAt time.Time `msgpack:"changed_at" json:"changed_at"`
}

func appendChange(ctx context.Context, tx *sql.Tx, t Table, rowID string, op int, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (row_id, op, changed_at) VALUES (?, ?, ?)", t.ChangeTable()),
		rowID, op, at)
	if err != nil {
		return serr.Wrap(err, "failed to append change log entry for "+t.Name)
	}
	return nil
}

func appendLinkChange(ctx context.Context, tx *sql.Tx, l LinkTable, a, b string, op int, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id_a, id_b, op, changed_at) VALUES (?, ?, ?, ?)", l.ChangeTable()),
		a, b, op, at)
	if err != nil {
		return serr.Wrap(err, "failed to append change log entry for "+l.Name)
	}
	return nil
}

// changesSince reads a table's change log at or after mark, in seq order.
func changesSince(ctx context.Context, tx *sql.Tx, t Table, mark time.Time) ([]ChangeEntry, error) {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT seq, row_id, op, changed_at FROM %s WHERE changed_at >= ? ORDER BY seq", t.ChangeTable()),
		mark)
	if err != nil {
		return nil, serr.Wrap(err, "failed to query change log for "+t.Name)
	}
	defer rows.Close()

	var out []ChangeEntry
	for rows.Next() {
		var c ChangeEntry
		if err := rows.Scan(&c.Seq, &c.RowID, &c.Op, &c.ChangedAt); err != nil {
			return nil, serr.Wrap(err, "failed to scan change log entry")
		}
		c.ChangedAt = c.ChangedAt.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Wrap(err, "change log iteration failed")
	}
	return out, nil
}

func linkChangesSince(ctx context.Context, tx *sql.Tx, l LinkTable, mark time.Time) ([]LinkChangeEntry, error) {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT seq, id_a, id_b, op, changed_at FROM %s WHERE changed_at >= ? ORDER BY seq", l.ChangeTable()),
		mark)
	if err != nil {
		return nil, serr.Wrap(err, "failed to query change log for "+l.Name)
	}
	defer rows.Close()

	var out []LinkChangeEntry
	for rows.Next() {
		var c LinkChangeEntry
		if err := rows.Scan(&c.Seq, &c.IDA, &c.IDB, &c.Op, &c.ChangedAt); err != nil {
			return nil, serr.Wrap(err, "failed to scan link change log entry")
		}
		c.ChangedAt = c.ChangedAt.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Wrap(err, "link change log iteration failed")
	}
	return out, nil
}

// ChangesSince returns a table's change-log entries at or after mark.
func (s *Store) ChangesSince(ctx context.Context, table string, mark time.Time) ([]ChangeEntry, error) {
	t, ok := LookupTable(table)
	if !ok {
		return nil, ErrUnknownTable
	}
	var out []ChangeEntry
	err := s.Read(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = changesSince(ctx, tx, t, mark)
		return err
	})
	return out, err
}

// PruneChangeLogs deletes change-log entries older than before. Pruning
// past the last sync would lose changes the peer has not seen, so before
// is rejected if it is later than the current low-water mark. Returns the
// number of entries removed.
func (s *Store) PruneChangeLogs(ctx context.Context, before time.Time) (int64, error) {
	last, err := s.LastSync(ctx)
	if err != nil {
		return 0, err
	}
	if last.IsZero() || before.After(last) {
		return 0, ErrPruneBeyondSync
	}

	var removed int64
	err = s.unloggedWrite(ctx, func(tx *sql.Tx) error {
		tables := make([]string, 0, len(trackedTables)+len(linkTables))
		for _, t := range trackedTables {
			tables = append(tables, t.ChangeTable())
		}
		for _, l := range linkTables {
			tables = append(tables, l.ChangeTable())
		}
		for _, name := range tables {
			res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE changed_at < ?", name), before.UTC())
			if err != nil {
				return serr.Wrap(err, "failed to prune "+name)
			}
			if n, err := res.RowsAffected(); err == nil {
				removed += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Pruned change logs", "before", before.Format(time.RFC3339), "removed", removed)
	return removed, nil
}

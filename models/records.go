package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/rohanthewiz/serr"
)

// getRow reads one row of a tracked table by id.
func (s *Store) getRow(ctx context.Context, table, id string) (Row, error) {
	t, ok := LookupTable(table)
	if !ok {
		return nil, ErrUnknownTable
	}
	var rows [][]any
	err := s.Read(ctx, func(tx *sql.Tx) error {
		var err error
		rows, err = readRows(ctx, tx, t, "WHERE id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return RowAt(t.ColumnNames(), rows[0]), nil
}

// listRows reads rows of a tracked table, optionally filtered.
func (s *Store) listRows(ctx context.Context, table, where string, args ...any) ([]Row, error) {
	t, ok := LookupTable(table)
	if !ok {
		return nil, ErrUnknownTable
	}
	var rows [][]any
	err := s.Read(ctx, func(tx *sql.Tx) error {
		var err error
		rows, err = readRows(ctx, tx, t, where, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	cols := t.ColumnNames()
	for i, r := range rows {
		out[i] = RowAt(cols, r)
	}
	return out, nil
}

// linkedIDs returns the ids on the far side of link l for id on the near side.
func (s *Store) linkedIDs(ctx context.Context, link string, nearIsA bool, id string) ([]string, error) {
	l, ok := LookupLinkTable(link)
	if !ok {
		return nil, ErrUnknownTable
	}
	near, far := l.ColumnA, l.ColumnB
	if !nearIsA {
		near, far = far, near
	}
	var ids []string
	err := s.Read(ctx, func(tx *sql.Tx) error {
		var err error
		ids, err = collectIDs(ctx, tx, "SELECT "+far+" FROM "+l.Name+" WHERE "+near+" = ? ORDER BY "+far, id)
		return err
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to read "+link)
	}
	return ids, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func i64(v any) int64 {
	n, _ := v.(int64)
	return n
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func timestamp(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

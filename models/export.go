package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Export computes every change recorded at or after mark, for all tracked
// tables and link tables, from a single read transaction.
//
// Per row id, the net effect over the window is:
//   - deleted if any entry deletes it (an id is never reused, so a delete
//     is final regardless of what preceded it)
//   - inserted if any entry inserts it
//   - updated otherwise
//
// Inserted and updated rows carry the current row snapshot, not the state
// at the time of the change. Per link pair the last operation wins.
func (s *Store) Export(ctx context.Context, mark time.Time) (*DiffSet, error) {
	if mark.IsZero() {
		return nil, ErrNoLowWaterMark
	}
	mark = mark.UTC()

	diff := NewDiffSet(mark)
	err := s.Read(ctx, func(tx *sql.Tx) error {
		for _, t := range trackedTables {
			if err := exportTable(ctx, tx, t, mark, diff); err != nil {
				return err
			}
		}
		for _, l := range linkTables {
			if err := exportLinks(ctx, tx, l, mark, diff); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, serr.Wrap(err, "export failed")
	}

	counts := diff.Counts()
	logger.Debug("Exported changes",
		"since", mark.Format(time.RFC3339Nano),
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"deleted", counts.Deleted,
		"links_inserted", counts.LinksInserted,
		"links_deleted", counts.LinksDeleted,
	)
	return diff, nil
}

// ExportForSync is Export plus the mark for the next window. The mark is
// stamped while holding the write lock, so every change stamped before it
// has committed and is visible to the export read.
func (s *Store) ExportForSync(ctx context.Context, mark time.Time) (*DiffSet, time.Time, error) {
	s.writeMu.Lock()
	next := s.Now()
	s.writeMu.Unlock()

	diff, err := s.Export(ctx, mark)
	if err != nil {
		return nil, time.Time{}, err
	}
	return diff, next, nil
}

func exportTable(ctx context.Context, tx *sql.Tx, t Table, mark time.Time, diff *DiffSet) error {
	changes, err := changesSince(ctx, tx, t, mark)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	const (
		netUpdate = iota
		netInsert
		netDelete
	)
	net := make(map[string]int, len(changes))
	var order []string
	for _, c := range changes {
		prev, seen := net[c.RowID]
		if !seen {
			order = append(order, c.RowID)
		}
		switch {
		case c.Op == OperationDelete:
			net[c.RowID] = netDelete
		case prev == netDelete:
			// stays deleted
		case c.Op == OperationInsert:
			net[c.RowID] = netInsert
		case !seen:
			net[c.RowID] = netUpdate
		}
	}

	td := diff.Table(t.Name)
	td.Changes = changes

	where := fmt.Sprintf("WHERE id IN (SELECT DISTINCT row_id FROM %s WHERE changed_at >= ?)", t.ChangeTable())
	current, err := readRows(ctx, tx, t, where, mark)
	if err != nil {
		return err
	}
	byID := make(map[string][]any, len(current))
	for _, r := range current {
		if id, ok := r[0].(string); ok {
			byID[id] = r
		}
	}

	for _, id := range order {
		switch net[id] {
		case netDelete:
			td.Deleted = append(td.Deleted, id)
		case netInsert:
			if r, ok := byID[id]; ok {
				td.Inserted = append(td.Inserted, r)
			}
		default:
			if r, ok := byID[id]; ok {
				td.Updated = append(td.Updated, r)
			}
		}
	}
	return nil
}

func exportLinks(ctx context.Context, tx *sql.Tx, l LinkTable, mark time.Time, diff *DiffSet) error {
	changes, err := linkChangesSince(ctx, tx, l, mark)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	last := make(map[LinkPair]int, len(changes))
	var order []LinkPair
	for _, c := range changes {
		p := LinkPair{A: c.IDA, B: c.IDB}
		if _, seen := last[p]; !seen {
			order = append(order, p)
		}
		last[p] = c.Op
	}

	ld := diff.Link(l.Name)
	ld.Changes = changes
	for _, p := range order {
		if last[p] == OperationDelete {
			ld.Deleted = append(ld.Deleted, p)
		} else {
			ld.Inserted = append(ld.Inserted, p)
		}
	}
	return nil
}

package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rohanthewiz/serr"
)

// LinkPair is one row of a link table, ordered (ColumnA, ColumnB).
type LinkPair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// TableDiff holds the net changes for one tracked table. Row snapshots in
// Inserted and Updated are positional against Columns.
type TableDiff struct {
	Columns  []string      `json:"columns"`
	Changes  []ChangeEntry `json:"changes,omitempty"`
	Inserted [][]any       `json:"inserted,omitempty"`
	Updated  [][]any       `json:"updated,omitempty"`
	Deleted  []string      `json:"deleted,omitempty"`
}

// LinkDiff holds the net changes for one link table.
type LinkDiff struct {
	Changes  []LinkChangeEntry `json:"changes,omitempty"`
	Inserted []LinkPair        `json:"inserted,omitempty"`
	Deleted  []LinkPair        `json:"deleted,omitempty"`
}

// DiffSet is the unit of transfer between two nodes: every change recorded
// at or after LowWaterMark, reduced to its net effect per row and per pair.
type DiffSet struct {
	LowWaterMark time.Time             `json:"low_water_mark"`
	Tables       map[string]*TableDiff `json:"tables"`
	Links        map[string]*LinkDiff  `json:"links"`
}

// NewDiffSet returns an empty diff for mark.
func NewDiffSet(mark time.Time) *DiffSet {
	return &DiffSet{
		LowWaterMark: mark.UTC(),
		Tables:       map[string]*TableDiff{},
		Links:        map[string]*LinkDiff{},
	}
}

// DiffCounts summarizes a diff for logging and metrics.
type DiffCounts struct {
	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	Deleted       int `json:"deleted"`
	LinksInserted int `json:"links_inserted"`
	LinksDeleted  int `json:"links_deleted"`
}

// Total is the number of row and link operations in the diff.
func (c DiffCounts) Total() int {
	return c.Inserted + c.Updated + c.Deleted + c.LinksInserted + c.LinksDeleted
}

// Counts tallies the net operations in the diff.
func (d *DiffSet) Counts() DiffCounts {
	var c DiffCounts
	if d == nil {
		return c
	}
	for _, td := range d.Tables {
		c.Inserted += len(td.Inserted)
		c.Updated += len(td.Updated)
		c.Deleted += len(td.Deleted)
	}
	for _, ld := range d.Links {
		c.LinksInserted += len(ld.Inserted)
		c.LinksDeleted += len(ld.Deleted)
	}
	return c
}

// IsEmpty reports whether applying the diff would change nothing.
func (d *DiffSet) IsEmpty() bool {
	return d.Counts().Total() == 0
}

// Table returns the diff for name, creating it if needed.
func (d *DiffSet) Table(name string) *TableDiff {
	td, ok := d.Tables[name]
	if !ok {
		td = &TableDiff{}
		if t, found := LookupTable(name); found {
			td.Columns = t.ColumnNames()
		}
		d.Tables[name] = td
	}
	return td
}

// Link returns the diff for link table name, creating it if needed.
func (d *DiffSet) Link(name string) *LinkDiff {
	ld, ok := d.Links[name]
	if !ok {
		ld = &LinkDiff{}
		d.Links[name] = ld
	}
	return ld
}

// RowAt converts a positional snapshot into a Row keyed by column name.
func RowAt(columns []string, values []any) Row {
	r := make(Row, len(columns))
	for i, c := range columns {
		if i < len(values) {
			r[c] = values[i]
		}
	}
	return r
}

// DeletedSet returns the deleted ids of a table as a set.
func (td *TableDiff) DeletedSet() map[string]bool {
	out := make(map[string]bool, len(td.Deleted))
	for _, id := range td.Deleted {
		out[id] = true
	}
	return out
}

// rowQuerier is satisfied by *sql.Tx and *sql.DB.
type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// readRows selects t's columns for the rows matching where, normalized to
// the canonical value types.
func readRows(ctx context.Context, q rowQuerier, t Table, where string, args ...any) ([][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY id", quotedList(t.ColumnNames()), t.Name, where)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read rows from "+t.Name)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		raw := make([]any, len(t.Columns))
		ptrs := make([]any, len(t.Columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, serr.Wrap(err, "failed to scan row from "+t.Name)
		}
		for i, c := range t.Columns {
			v, err := NormalizeValue(c, raw[i])
			if err != nil {
				return nil, err
			}
			raw[i] = v
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Wrap(err, "row iteration failed for "+t.Name)
	}
	return out, nil
}

func queryPairs(ctx context.Context, q rowQuerier, l LinkTable, where string, args ...any) ([]LinkPair, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s %s ORDER BY %s, %s",
		l.ColumnA, l.ColumnB, l.Name, where, l.ColumnA, l.ColumnB)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read pairs from "+l.Name)
	}
	defer rows.Close()

	var out []LinkPair
	for rows.Next() {
		var p LinkPair
		if err := rows.Scan(&p.A, &p.B); err != nil {
			return nil, serr.Wrap(err, "failed to scan pair from "+l.Name)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Wrap(err, "pair iteration failed for "+l.Name)
	}
	return out, nil
}

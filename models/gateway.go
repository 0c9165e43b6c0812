package models

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rohanthewiz/serr"
)

// WriteTx is the only path for mutating tracked tables. Each mutation and
// its change-log entry are written in the same transaction, so a failure to
// log fails the mutation too.
type WriteTx struct {
	ctx   context.Context
	tx    *sql.Tx
	store *Store
}

// Tx exposes the underlying transaction for reads that must see the
// uncommitted writes of this WriteTx.
func (w *WriteTx) Tx() *sql.Tx { return w.tx }

// Insert adds a row. The row must carry an "id"; every key must be a column
// of the table.
func (w *WriteTx) Insert(table string, row Row) error {
	t, ok := LookupTable(table)
	if !ok {
		return ErrUnknownTable
	}

	cols, args, err := bindRow(t, row)
	if err != nil {
		return err
	}
	var id string
	for i, c := range cols {
		if c == "id" {
			id, _ = args[i].(string)
		}
	}
	if id == "" {
		return ErrMissingID
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, quotedList(cols), placeholders(len(cols)))
	if _, err := w.tx.ExecContext(w.ctx, query, args...); err != nil {
		return serr.Wrap(err, "failed to insert into "+t.Name)
	}

	return appendChange(w.ctx, w.tx, t, id, OperationInsert, w.store.Now())
}

// Update sets the given columns on the row with id. Returns ErrNotFound if
// no such row exists.
func (w *WriteTx) Update(table, id string, set Row) error {
	t, ok := LookupTable(table)
	if !ok {
		return ErrUnknownTable
	}
	fields := make(Row, len(set))
	for k, v := range set {
		if k != "id" {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}

	cols, args, err := bindRow(t, fields)
	if err != nil {
		return err
	}

	assigns := make([]string, len(cols))
	for i, c := range cols {
		assigns[i] = quoteIdent(c) + " = ?"
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.Name, strings.Join(assigns, ", "))
	res, err := w.tx.ExecContext(w.ctx, query, args...)
	if err != nil {
		return serr.Wrap(err, "failed to update "+t.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return appendChange(w.ctx, w.tx, t, id, OperationUpdate, w.store.Now())
}

// Delete removes the row with id. Link rows referencing it, and child rows
// of tables extending it, are removed first through the gateway so their
// removal is logged as well.
func (w *WriteTx) Delete(table, id string) error {
	t, ok := LookupTable(table)
	if !ok {
		return ErrUnknownTable
	}

	if err := w.unlinkAll(t.Name, id); err != nil {
		return err
	}

	for _, child := range trackedTables {
		if child.Parent != t.Name {
			continue
		}
		exists, err := w.exists(child.Name, id)
		if err != nil {
			return err
		}
		if exists {
			if err := w.Delete(child.Name, id); err != nil {
				return err
			}
		}
	}

	res, err := w.tx.ExecContext(w.ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.Name), id)
	if err != nil {
		return serr.Wrap(err, "failed to delete from "+t.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return appendChange(w.ctx, w.tx, t, id, OperationDelete, w.store.Now())
}

// Link associates a with b. Linking an existing pair is a no-op and is not
// logged.
func (w *WriteTx) Link(link, a, b string) error {
	l, ok := LookupLinkTable(link)
	if !ok {
		return ErrUnknownTable
	}

	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING", l.Name, l.ColumnA, l.ColumnB)
	res, err := w.tx.ExecContext(w.ctx, query, a, b)
	if err != nil {
		return serr.Wrap(err, "failed to insert into "+l.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	return appendLinkChange(w.ctx, w.tx, l, a, b, OperationInsert, w.store.Now())
}

// Unlink removes the association between a and b, if present.
func (w *WriteTx) Unlink(link, a, b string) error {
	l, ok := LookupLinkTable(link)
	if !ok {
		return ErrUnknownTable
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", l.Name, l.ColumnA, l.ColumnB)
	res, err := w.tx.ExecContext(w.ctx, query, a, b)
	if err != nil {
		return serr.Wrap(err, "failed to delete from "+l.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	return appendLinkChange(w.ctx, w.tx, l, a, b, OperationDelete, w.store.Now())
}

// unlinkAll removes every link row that references id in table.
func (w *WriteTx) unlinkAll(table, id string) error {
	for _, l := range linkTables {
		var column string
		switch table {
		case l.RefA:
			column = l.ColumnA
		case l.RefB:
			column = l.ColumnB
		default:
			continue
		}

		pairs, err := queryPairs(w.ctx, w.tx, l, fmt.Sprintf("WHERE %s = ?", column), id)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := w.Unlink(l.Name, p.A, p.B); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *WriteTx) exists(table, id string) (bool, error) {
	var n int
	err := w.tx.QueryRowContext(w.ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE id = ?", table), id).Scan(&n)
	if err != nil {
		return false, serr.Wrap(err, "failed to check existence in "+table)
	}
	return n > 0, nil
}

// bindRow validates and normalizes row against t, returning the column
// names in a stable order and the matching arguments.
func bindRow(t Table, row Row) ([]string, []any, error) {
	cols := make([]string, 0, len(row))
	for name := range row {
		if _, ok := t.Column(name); !ok {
			return nil, nil, serr.Wrap(ErrUnknownColumn, t.Name+"."+name)
		}
		cols = append(cols, name)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, name := range cols {
		c, _ := t.Column(name)
		v, err := NormalizeValue(c, row[name])
		if err != nil {
			return nil, nil, err
		}
		args[i] = v
	}
	return cols, args, nil
}

package models

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rohanthewiz/serr"
)

// StoreStatus summarizes the local library for status displays and the
// advisory consistency check between nodes.
type StoreStatus struct {
	Counts     map[string]int `json:"counts"`
	LinkCounts map[string]int `json:"link_counts"`
	// PendingChanges counts change-log entries recorded since the last sync.
	PendingChanges int        `json:"pending_changes"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	// Checksum is a SHA-256 over every table's sorted ids and every link
	// table's sorted pairs. Two nodes holding the same rows agree on it.
	Checksum string `json:"checksum"`
}

// Status computes the store summary from one read transaction.
func (s *Store) Status(ctx context.Context) (*StoreStatus, error) {
	last, err := s.LastSync(ctx)
	if err != nil {
		return nil, err
	}

	st := &StoreStatus{
		Counts:     make(map[string]int, len(trackedTables)),
		LinkCounts: make(map[string]int, len(linkTables)),
	}
	if !last.IsZero() {
		st.LastSync = &last
	}

	h := sha256.New()
	err = s.Read(ctx, func(tx *sql.Tx) error {
		for _, t := range trackedTables {
			ids, err := collectIDs(ctx, tx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", t.Name))
			if err != nil {
				return serr.Wrap(err, "failed to collect ids for "+t.Name)
			}
			st.Counts[t.Name] = len(ids)
			fmt.Fprintf(h, "%s:%s|", t.Name, strings.Join(ids, ","))

			if !last.IsZero() {
				var n int
				q := fmt.Sprintf("SELECT count(*) FROM %s WHERE changed_at >= ?", t.ChangeTable())
				if err := tx.QueryRowContext(ctx, q, last).Scan(&n); err != nil {
					return serr.Wrap(err, "failed to count pending changes for "+t.Name)
				}
				st.PendingChanges += n
			}
		}
		for _, l := range linkTables {
			pairs, err := queryPairs(ctx, tx, l, "")
			if err != nil {
				return err
			}
			st.LinkCounts[l.Name] = len(pairs)
			fmt.Fprintf(h, "%s:", l.Name)
			for _, p := range pairs {
				fmt.Fprintf(h, "%s/%s,", p.A, p.B)
			}
			fmt.Fprint(h, "|")

			if !last.IsZero() {
				var n int
				q := fmt.Sprintf("SELECT count(*) FROM %s WHERE changed_at >= ?", l.ChangeTable())
				if err := tx.QueryRowContext(ctx, q, last).Scan(&n); err != nil {
					return serr.Wrap(err, "failed to count pending changes for "+l.Name)
				}
				st.PendingChanges += n
			}
		}
		return nil
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to compute store status")
	}

	st.Checksum = fmt.Sprintf("%x", h.Sum(nil))
	return st, nil
}

func collectIDs(ctx context.Context, q rowQuerier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

package models

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rohanthewiz/serr"
)

// execer is satisfied by both *sql.DB and *sql.Tx so the schema can be built
// at open time and rebuilt inside a bootstrap transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// changeSeq numbers every change log entry across all tables, giving the
// logs a single total order.
const changeSeq = "change_seq"

const syncLogSeq = "sync_log_seq"

const DDLCreateSyncLogTable = `
CREATE TABLE IF NOT EXISTS sync_log (
    seq        BIGINT PRIMARY KEY DEFAULT nextval('sync_log_seq'),
    synced_at  TIMESTAMP NOT NULL UNIQUE,
    kind       VARCHAR NOT NULL
)`

func changeTableSQL(t Table) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    seq         BIGINT PRIMARY KEY DEFAULT nextval('%s'),
    row_id      VARCHAR NOT NULL,
    op          INTEGER NOT NULL,
    changed_at  TIMESTAMP NOT NULL
)`, t.ChangeTable(), changeSeq)
}

func linkChangeTableSQL(l LinkTable) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    seq         BIGINT PRIMARY KEY DEFAULT nextval('%s'),
    id_a        VARCHAR NOT NULL,
    id_b        VARCHAR NOT NULL,
    op          INTEGER NOT NULL,
    changed_at  TIMESTAMP NOT NULL
)`, l.ChangeTable(), changeSeq)
}

// schemaStatements returns the full DDL in creation order: sequences, entity
// tables with their change logs, link tables with theirs, then the sync log.
func schemaStatements() []string {
	stmts := []string{
		"CREATE SEQUENCE IF NOT EXISTS " + changeSeq + " START 1",
		"CREATE SEQUENCE IF NOT EXISTS " + syncLogSeq + " START 1",
	}
	for _, t := range trackedTables {
		stmts = append(stmts, t.createSQL(), changeTableSQL(t))
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_changed_at ON %s (changed_at)", t.ChangeTable(), t.ChangeTable()))
	}
	for _, l := range linkTables {
		stmts = append(stmts, l.createSQL(), linkChangeTableSQL(l))
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_changed_at ON %s (changed_at)", l.ChangeTable(), l.ChangeTable()))
	}
	return append(stmts, DDLCreateSyncLogTable)
}

// dropStatements removes every table and sequence, the reverse of
// schemaStatements. Tables go first since their defaults reference the
// sequences.
func dropStatements() []string {
	stmts := []string{"DROP TABLE IF EXISTS sync_log"}
	for i := len(linkTables) - 1; i >= 0; i-- {
		l := linkTables[i]
		stmts = append(stmts, "DROP TABLE IF EXISTS "+l.ChangeTable(), "DROP TABLE IF EXISTS "+l.Name)
	}
	for i := len(trackedTables) - 1; i >= 0; i-- {
		t := trackedTables[i]
		stmts = append(stmts, "DROP TABLE IF EXISTS "+t.ChangeTable(), "DROP TABLE IF EXISTS "+t.Name)
	}
	return append(stmts,
		"DROP SEQUENCE IF EXISTS "+syncLogSeq,
		"DROP SEQUENCE IF EXISTS "+changeSeq,
	)
}

// migrateDB creates whatever part of the schema is missing.
func migrateDB(ctx context.Context, db execer) error {
	for _, stmt := range schemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return serr.Wrap(err, "migration failed: "+stmt)
		}
	}
	return nil
}

// resetSchema drops everything and recreates an empty schema.
func resetSchema(ctx context.Context, db execer) error {
	for _, stmt := range dropStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return serr.Wrap(err, "failed to drop schema object: "+stmt)
		}
	}
	return migrateDB(ctx, db)
}

package models

import (
	"fmt"
	"strings"
)

// ColumnType drives both the DDL and how values travel on the wire.
type ColumnType int

const (
	ColText ColumnType = iota
	ColInt
	ColBool
	ColTime
	ColUUID
)

// Column describes a single scalar column of a tracked table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// Table is a tracked entity table. The first column is always the UUID
// primary key named "id".
type Table struct {
	Name    string
	Columns []Column
	// Parent names the table whose id this table's id extends (the entry
	// type subtables). Deleting the parent row deletes the child row.
	Parent string
}

// LinkTable is a many-to-many association keyed by (ColumnA, ColumnB).
type LinkTable struct {
	Name    string
	ColumnA string
	ColumnB string
	RefA    string // table referenced by ColumnA
	RefB    string // table referenced by ColumnB
}

// Entry type discriminators stored in entry.type
const (
	EntryTypeArticle       = "article"
	EntryTypeBook          = "book"
	EntryTypeInProceedings = "inproceedings"
)

var idColumn = Column{Name: "id", Type: ColUUID, NotNull: true}

// trackedTables is ordered so that parents precede children; the importer
// applies upserts in this order.
var trackedTables = []Table{
	{Name: "entry", Columns: []Column{
		idColumn,
		{Name: "type", Type: ColText, NotNull: true},
		{Name: "key", Type: ColText},
		{Name: "doi", Type: ColText},
		{Name: "title", Type: ColText, NotNull: true},
		{Name: "year", Type: ColInt},
		{Name: "created_at", Type: ColTime, NotNull: true},
		{Name: "modified_at", Type: ColTime, NotNull: true},
	}},
	{Name: "article", Columns: []Column{
		idColumn,
		{Name: "journal", Type: ColText},
		{Name: "volume", Type: ColText},
		{Name: "number", Type: ColText},
		{Name: "pages", Type: ColText},
		{Name: "month", Type: ColText},
	}, Parent: "entry"},
	{Name: "book", Columns: []Column{
		idColumn,
		{Name: "publisher", Type: ColText},
		{Name: "address", Type: ColText},
		{Name: "edition", Type: ColText},
	}, Parent: "entry"},
	{Name: "in_proceedings", Columns: []Column{
		idColumn,
		{Name: "booktitle", Type: ColText},
		{Name: "editor", Type: ColText},
		{Name: "volume", Type: ColText},
		{Name: "number", Type: ColText},
		{Name: "series", Type: ColText},
		{Name: "pages", Type: ColText},
		{Name: "address", Type: ColText},
		{Name: "month", Type: ColText},
		{Name: "organization", Type: ColText},
		{Name: "publisher", Type: ColText},
	}, Parent: "entry"},
	{Name: "author", Columns: []Column{
		idColumn,
		{Name: "first_name", Type: ColText},
		{Name: "suffix", Type: ColText},
		{Name: "last_name", Type: ColText, NotNull: true},
	}},
	{Name: "file", Columns: []Column{
		idColumn,
		{Name: "path", Type: ColText, NotNull: true},
		{Name: "type", Type: ColText},
		{Name: "default_open", Type: ColBool, NotNull: true},
	}},
	{Name: "keyword", Columns: []Column{
		idColumn,
		{Name: "name", Type: ColText, NotNull: true},
	}},
	{Name: "collection", Columns: []Column{
		idColumn,
		{Name: "name", Type: ColText, NotNull: true},
		{Name: "description", Type: ColText},
		{Name: "created_at", Type: ColTime, NotNull: true},
		{Name: "modified_at", Type: ColTime, NotNull: true},
	}},
}

var linkTables = []LinkTable{
	{Name: "author_link", ColumnA: "entry_id", ColumnB: "author_id", RefA: "entry", RefB: "author"},
	{Name: "file_link", ColumnA: "entry_id", ColumnB: "file_id", RefA: "entry", RefB: "file"},
	{Name: "collection_link", ColumnA: "collection_id", ColumnB: "entry_id", RefA: "collection", RefB: "entry"},
	{Name: "keyword_link", ColumnA: "entry_id", ColumnB: "keyword_id", RefA: "entry", RefB: "keyword"},
}

// TrackedTables returns the entity tables under change tracking, in
// dependency order.
func TrackedTables() []Table {
	out := make([]Table, len(trackedTables))
	copy(out, trackedTables)
	return out
}

// LinkTables returns the association tables under change tracking.
func LinkTables() []LinkTable {
	out := make([]LinkTable, len(linkTables))
	copy(out, linkTables)
	return out
}

// LookupTable finds a tracked table by name.
func LookupTable(name string) (Table, bool) {
	for _, t := range trackedTables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// LookupLinkTable finds a link table by name.
func LookupLinkTable(name string) (LinkTable, bool) {
	for _, l := range linkTables {
		if l.Name == name {
			return l, true
		}
	}
	return LinkTable{}, false
}

// ColumnNames lists the table's columns in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ChangeTable is the name of the table's change log.
func (t Table) ChangeTable() string { return t.Name + "_changes" }

// ChangeTable is the name of the link table's change log.
func (l LinkTable) ChangeTable() string { return l.Name + "_changes" }

func (c ColumnType) sqlType() string {
	switch c {
	case ColInt:
		return "INTEGER"
	case ColBool:
		return "BOOLEAN"
	case ColTime:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func (c ColumnType) String() string {
	switch c {
	case ColInt:
		return "int"
	case ColBool:
		return "bool"
	case ColTime:
		return "time"
	case ColUUID:
		return "uuid"
	default:
		return "text"
	}
}

func (t Table) createSQL() string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Type.sqlType())
		if c.Name == "id" {
			def += " PRIMARY KEY"
		} else if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", t.Name, strings.Join(defs, ",\n    "))
}

func (l LinkTable) createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s VARCHAR NOT NULL,
    %s VARCHAR NOT NULL,
    PRIMARY KEY (%s, %s)
)`, l.Name, l.ColumnA, l.ColumnB, l.ColumnA, l.ColumnB)
}

// quoteIdent quotes column names that collide with SQL keywords
// ("key", "type", "month", "number", "year").
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func quotedList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = quoteIdent(n)
	}
	return strings.Join(q, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

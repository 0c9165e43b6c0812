package models

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rohanthewiz/serr"
)

// Entry is a bibliographic record. Exactly one of the detail pointers is
// set, matching Type.
type Entry struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Key           string         `json:"key,omitempty"`
	DOI           string         `json:"doi,omitempty"`
	Title         string         `json:"title"`
	Year          int64          `json:"year,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ModifiedAt    time.Time      `json:"modified_at"`
	Article       *Article       `json:"article,omitempty"`
	Book          *Book          `json:"book,omitempty"`
	InProceedings *InProceedings `json:"in_proceedings,omitempty"`
}

// Article holds journal-article specific fields.
type Article struct {
	Journal string `json:"journal,omitempty"`
	Volume  string `json:"volume,omitempty"`
	Number  string `json:"number,omitempty"`
	Pages   string `json:"pages,omitempty"`
	Month   string `json:"month,omitempty"`
}

// Book holds book specific fields.
type Book struct {
	Publisher string `json:"publisher,omitempty"`
	Address   string `json:"address,omitempty"`
	Edition   string `json:"edition,omitempty"`
}

// InProceedings holds conference-paper specific fields.
type InProceedings struct {
	Booktitle    string `json:"booktitle,omitempty"`
	Editor       string `json:"editor,omitempty"`
	Volume       string `json:"volume,omitempty"`
	Number       string `json:"number,omitempty"`
	Series       string `json:"series,omitempty"`
	Pages        string `json:"pages,omitempty"`
	Address      string `json:"address,omitempty"`
	Month        string `json:"month,omitempty"`
	Organization string `json:"organization,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
}

// EntryInput carries the user-editable fields of an entry.
type EntryInput struct {
	Type          string
	Key           string
	DOI           string
	Title         string
	Year          int64
	Article       *Article
	Book          *Book
	InProceedings *InProceedings
}

func (in EntryInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return serr.New("entry title is required")
	}
	switch in.Type {
	case EntryTypeArticle, EntryTypeBook, EntryTypeInProceedings:
	default:
		return serr.New("unknown entry type: " + in.Type)
	}
	return nil
}

// detail returns the subtable name and row for the entry type.
func (in EntryInput) detail() (string, Row) {
	switch in.Type {
	case EntryTypeArticle:
		a := in.Article
		if a == nil {
			a = &Article{}
		}
		return "article", Row{
			"journal": nullable(a.Journal), "volume": nullable(a.Volume), "number": nullable(a.Number),
			"pages": nullable(a.Pages), "month": nullable(a.Month),
		}
	case EntryTypeBook:
		b := in.Book
		if b == nil {
			b = &Book{}
		}
		return "book", Row{
			"publisher": nullable(b.Publisher), "address": nullable(b.Address), "edition": nullable(b.Edition),
		}
	default:
		p := in.InProceedings
		if p == nil {
			p = &InProceedings{}
		}
		return "in_proceedings", Row{
			"booktitle": nullable(p.Booktitle), "editor": nullable(p.Editor), "volume": nullable(p.Volume),
			"number": nullable(p.Number), "series": nullable(p.Series), "pages": nullable(p.Pages),
			"address": nullable(p.Address), "month": nullable(p.Month),
			"organization": nullable(p.Organization), "publisher": nullable(p.Publisher),
		}
	}
}

func (in EntryInput) entryFields() Row {
	var year any
	if in.Year != 0 {
		year = in.Year
	}
	return Row{
		"type":  in.Type,
		"key":   nullable(in.Key),
		"doi":   nullable(in.DOI),
		"title": in.Title,
		"year":  year,
	}
}

// CreateEntry adds an entry together with its type-specific detail row.
func (s *Store) CreateEntry(ctx context.Context, in EntryInput) (*Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	id := NewID()
	now := s.Now()
	err := s.Write(ctx, func(w *WriteTx) error {
		row := in.entryFields()
		row["id"] = id
		row["created_at"] = now
		row["modified_at"] = now
		if err := w.Insert("entry", row); err != nil {
			return err
		}

		table, detail := in.detail()
		detail["id"] = id
		return w.Insert(table, detail)
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to create entry")
	}

	return s.GetEntry(ctx, id)
}

// UpdateEntry overwrites the entry's fields and detail row. Changing the
// type moves the detail into the new subtable.
func (s *Store) UpdateEntry(ctx context.Context, id string, in EntryInput) (*Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	current, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.Write(ctx, func(w *WriteTx) error {
		row := in.entryFields()
		row["modified_at"] = s.Now()
		if err := w.Update("entry", id, row); err != nil {
			return err
		}

		table, detail := in.detail()
		if current.Type == in.Type {
			return w.Update(table, id, detail)
		}

		oldTable, _ := EntryInput{Type: current.Type}.detail()
		if err := w.Delete(oldTable, id); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		detail["id"] = id
		return w.Insert(table, detail)
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to update entry")
	}

	return s.GetEntry(ctx, id)
}

// DeleteEntry removes the entry, its detail row and all of its links.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	return s.Write(ctx, func(w *WriteTx) error {
		return w.Delete("entry", id)
	})
}

// GetEntry loads an entry and its detail row.
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row, err := s.getRow(ctx, "entry", id)
	if err != nil {
		return nil, err
	}
	e := entryFromRow(row)

	table, _ := EntryInput{Type: e.Type}.detail()
	detail, err := s.getRow(ctx, table, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if detail != nil {
		attachDetail(e, detail)
	}
	return e, nil
}

// ListEntries returns every entry ordered by title, without detail rows.
func (s *Store) ListEntries(ctx context.Context) ([]*Entry, error) {
	rows, err := s.listRows(ctx, "entry", "")
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, entryFromRow(r))
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Title) < strings.ToLower(entries[j].Title)
	})
}

func entryFromRow(r Row) *Entry {
	return &Entry{
		ID:         str(r["id"]),
		Type:       str(r["type"]),
		Key:        str(r["key"]),
		DOI:        str(r["doi"]),
		Title:      str(r["title"]),
		Year:       i64(r["year"]),
		CreatedAt:  timestamp(r["created_at"]),
		ModifiedAt: timestamp(r["modified_at"]),
	}
}

func attachDetail(e *Entry, r Row) {
	switch e.Type {
	case EntryTypeArticle:
		e.Article = &Article{
			Journal: str(r["journal"]), Volume: str(r["volume"]), Number: str(r["number"]),
			Pages: str(r["pages"]), Month: str(r["month"]),
		}
	case EntryTypeBook:
		e.Book = &Book{Publisher: str(r["publisher"]), Address: str(r["address"]), Edition: str(r["edition"])}
	case EntryTypeInProceedings:
		e.InProceedings = &InProceedings{
			Booktitle: str(r["booktitle"]), Editor: str(r["editor"]), Volume: str(r["volume"]),
			Number: str(r["number"]), Series: str(r["series"]), Pages: str(r["pages"]),
			Address: str(r["address"]), Month: str(r["month"]),
			Organization: str(r["organization"]), Publisher: str(r["publisher"]),
		}
	}
}

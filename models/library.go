package models

import (
	"context"
	"strings"
	"time"

	"github.com/rohanthewiz/serr"
)

// Author of one or more entries.
type Author struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
	LastName  string `json:"last_name"`
}

// FullName renders "First Last, Suffix".
func (a Author) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if a.Suffix != "" {
		name += ", " + a.Suffix
	}
	return name
}

// File is an attachment record. The blob itself lives in the file store
// under the record's id.
type File struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Type        string `json:"type,omitempty"`
	DefaultOpen bool   `json:"default_open"`
}

// Keyword is a tag that can be applied to entries.
type Keyword struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Collection groups entries.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// ---------- Authors ----------

// CreateAuthor adds an author. A last name is required.
func (s *Store) CreateAuthor(ctx context.Context, a Author) (*Author, error) {
	if strings.TrimSpace(a.LastName) == "" {
		return nil, serr.New("author last name is required")
	}
	a.ID = NewID()
	err := s.Write(ctx, func(w *WriteTx) error {
		return w.Insert("author", Row{
			"id": a.ID, "first_name": nullable(a.FirstName), "suffix": nullable(a.Suffix), "last_name": a.LastName,
		})
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to create author")
	}
	return &a, nil
}

// UpdateAuthor overwrites an author's name fields.
func (s *Store) UpdateAuthor(ctx context.Context, a Author) error {
	return s.Write(ctx, func(w *WriteTx) error {
		return w.Update("author", a.ID, Row{
			"first_name": nullable(a.FirstName), "suffix": nullable(a.Suffix), "last_name": a.LastName,
		})
	})
}

// DeleteAuthor removes the author and unlinks them from every entry.
func (s *Store) DeleteAuthor(ctx context.Context, id string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Delete("author", id) })
}

// GetAuthor loads one author.
func (s *Store) GetAuthor(ctx context.Context, id string) (*Author, error) {
	r, err := s.getRow(ctx, "author", id)
	if err != nil {
		return nil, err
	}
	a := authorFromRow(r)
	return &a, nil
}

// ListAuthors returns all authors.
func (s *Store) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := s.listRows(ctx, "author", "")
	if err != nil {
		return nil, err
	}
	out := make([]Author, len(rows))
	for i, r := range rows {
		out[i] = authorFromRow(r)
	}
	return out, nil
}

// LinkAuthor records authorID as an author of entryID.
func (s *Store) LinkAuthor(ctx context.Context, entryID, authorID string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Link("author_link", entryID, authorID) })
}

// UnlinkAuthor removes authorID from entryID's authors.
func (s *Store) UnlinkAuthor(ctx context.Context, entryID, authorID string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Unlink("author_link", entryID, authorID) })
}

// EntryAuthors returns the authors linked to an entry.
func (s *Store) EntryAuthors(ctx context.Context, entryID string) ([]Author, error) {
	ids, err := s.linkedIDs(ctx, "author_link", true, entryID)
	if err != nil {
		return nil, err
	}
	out := make([]Author, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAuthor(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func authorFromRow(r Row) Author {
	return Author{
		ID: str(r["id"]), FirstName: str(r["first_name"]), Suffix: str(r["suffix"]), LastName: str(r["last_name"]),
	}
}

// ---------- Files ----------

// CreateFile adds an attachment record. The caller stores the blob.
func (s *Store) CreateFile(ctx context.Context, f File) (*File, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, serr.New("file path is required")
	}
	f.ID = NewID()
	err := s.Write(ctx, func(w *WriteTx) error {
		return w.Insert("file", Row{
			"id": f.ID, "path": f.Path, "type": nullable(f.Type), "default_open": f.DefaultOpen,
		})
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to create file record")
	}
	return &f, nil
}

// DeleteFile removes the attachment record and detaches it everywhere.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Delete("file", id) })
}

// GetFile loads one attachment record.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	r, err := s.getRow(ctx, "file", id)
	if err != nil {
		return nil, err
	}
	f := fileFromRow(r)
	return &f, nil
}

// ListFiles returns every attachment record.
func (s *Store) ListFiles(ctx context.Context) ([]File, error) {
	rows, err := s.listRows(ctx, "file", "")
	if err != nil {
		return nil, err
	}
	out := make([]File, len(rows))
	for i, r := range rows {
		out[i] = fileFromRow(r)
	}
	return out, nil
}

// AttachFile links a file to an entry.
func (s *Store) AttachFile(ctx context.Context, entryID, fileID string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Link("file_link", entryID, fileID) })
}

// DetachFile unlinks a file from an entry.
func (s *Store) DetachFile(ctx context.Context, entryID, fileID string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Unlink("file_link", entryID, fileID) })
}

func fileFromRow(r Row) File {
	return File{ID: str(r["id"]), Path: str(r["path"]), Type: str(r["type"]), DefaultOpen: boolean(r["default_open"])}
}

// ---------- Keywords ----------

// CreateKeyword adds a keyword.
func (s *Store) CreateKeyword(ctx context.Context, name string) (*Keyword, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serr.New("keyword name is required")
	}
	k := Keyword{ID: NewID(), Name: name}
	err := s.Write(ctx, func(w *WriteTx) error {
		return w.Insert("keyword", Row{"id": k.ID, "name": k.Name})
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to create keyword")
	}
	return &k, nil
}

// DeleteKeyword removes a keyword and untags every entry.
func (s *Store) DeleteKeyword(ctx context.Context, id string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Delete("keyword", id) })
}

// ListKeywords returns all keywords.
func (s *Store) ListKeywords(ctx context.Context) ([]Keyword, error) {
	rows, err := s.listRows(ctx, "keyword", "")
	if err != nil {
		return nil, err
	}
	out := make([]Keyword, len(rows))
	for i, r := range rows {
		out[i] = Keyword{ID: str(r["id"]), Name: str(r["name"])}
	}
	return out, nil
}

// TagEntry applies a keyword to an entry.
func (s *Store) TagEntry(ctx context.Context, entryID, keywordID string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Link("keyword_link", entryID, keywordID) })
}

// UntagEntry removes a keyword from an entry.
func (s *Store) UntagEntry(ctx context.Context, entryID, keywordID string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Unlink("keyword_link", entryID, keywordID) })
}

// ---------- Collections ----------

// CreateCollection adds an empty collection.
func (s *Store) CreateCollection(ctx context.Context, name, description string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serr.New("collection name is required")
	}
	now := s.Now()
	c := Collection{ID: NewID(), Name: name, Description: description, CreatedAt: now, ModifiedAt: now}
	err := s.Write(ctx, func(w *WriteTx) error {
		return w.Insert("collection", Row{
			"id": c.ID, "name": c.Name, "description": nullable(c.Description),
			"created_at": c.CreatedAt, "modified_at": c.ModifiedAt,
		})
	})
	if err != nil {
		return nil, serr.Wrap(err, "failed to create collection")
	}
	return &c, nil
}

// DeleteCollection removes a collection; its entries are kept.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	return s.Write(ctx, func(w *WriteTx) error { return w.Delete("collection", id) })
}

// ListCollections returns all collections.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.listRows(ctx, "collection", "")
	if err != nil {
		return nil, err
	}
	out := make([]Collection, len(rows))
	for i, r := range rows {
		out[i] = Collection{
			ID: str(r["id"]), Name: str(r["name"]), Description: str(r["description"]),
			CreatedAt: timestamp(r["created_at"]), ModifiedAt: timestamp(r["modified_at"]),
		}
	}
	return out, nil
}

// AddToCollection puts an entry in a collection and bumps its modified time.
func (s *Store) AddToCollection(ctx context.Context, collectionID, entryID string) error {
	return s.Write(ctx, func(w *WriteTx) error {
		if err := w.Link("collection_link", collectionID, entryID); err != nil {
			return err
		}
		return w.Update("collection", collectionID, Row{"modified_at": s.Now()})
	})
}

// RemoveFromCollection takes an entry out of a collection.
func (s *Store) RemoveFromCollection(ctx context.Context, collectionID, entryID string) error {
	return s.Write(ctx, func(w *WriteTx) error {
		if err := w.Unlink("collection_link", collectionID, entryID); err != nil {
			return err
		}
		return w.Update("collection", collectionID, Row{"modified_at": s.Now()})
	})
}

// CollectionEntries returns the ids of the entries in a collection.
func (s *Store) CollectionEntries(ctx context.Context, collectionID string) ([]string, error) {
	return s.linkedIDs(ctx, "collection_link", true, collectionID)
}

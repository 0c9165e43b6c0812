// Package filestore keeps attachment blobs on disk, one file per file-record id.
package filestore

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
)

// ErrNotFound is returned when no blob exists for an id.
var ErrNotFound = errors.New("file not found in storage")

// Store is a flat directory of blobs named by file id.
type Store struct {
	root string
}

// New opens (creating if needed) the storage directory at root.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, serr.New("file storage path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, serr.Wrap(err, "failed to create file storage directory")
	}
	return &Store{root: root}, nil
}

// Root returns the storage directory.
func (s *Store) Root() string { return s.root }

// Path returns where the blob for id lives. Ids must be UUIDs so they can
// never escape the storage directory.
func (s *Store) Path(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", serr.Wrap(err, "invalid file id "+id)
	}
	return filepath.Join(s.root, parsed.String()), nil
}

// Exists reports whether a blob for id is present.
func (s *Store) Exists(id string) bool {
	p, err := s.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Open returns a reader for the blob and its size.
func (s *Store) Open(id string) (io.ReadCloser, int64, error) {
	p, err := s.Path(id)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, serr.Wrap(err, "failed to open stored file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, serr.Wrap(err, "failed to stat stored file")
	}
	return f, info.Size(), nil
}

// Write stores the contents of r under id. The blob appears atomically:
// readers see either the previous blob or the complete new one.
func (s *Store) Write(id string, r io.Reader) (int64, error) {
	p, err := s.Path(id)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.root, ".incoming-*")
	if err != nil {
		return 0, serr.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, serr.Wrap(err, "failed to write file contents")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, serr.Wrap(err, "failed to flush file contents")
	}
	if err := tmp.Close(); err != nil {
		return 0, serr.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, p); err != nil {
		return 0, serr.Wrap(err, "failed to move file into place")
	}
	return n, nil
}

// Remove deletes the blob for id. Missing blobs are not an error.
func (s *Store) Remove(id string) error {
	p, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return serr.Wrap(err, "failed to remove stored file")
	}
	return nil
}

package filestore_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"litman/filestore"

	"github.com/google/uuid"
)

func TestWriteThenOpen(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id := uuid.NewString()

	if store.Exists(id) {
		t.Fatal("blob should not exist yet")
	}
	n, err := store.Write(id, strings.NewReader("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 13 {
		t.Errorf("expected 13 bytes written, got %d", n)
	}
	if !store.Exists(id) {
		t.Fatal("blob should exist after write")
	}

	rc, size, err := store.Open(id)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.4 test" || size != 13 {
		t.Errorf("unexpected contents %q (size %d)", body, size)
	}
}

func TestOpenMissing(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, _, err := store.Open(uuid.NewString()); !errors.Is(err, filestore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Remove(uuid.NewString()); err != nil {
		t.Errorf("removing a missing blob should succeed, got %v", err)
	}
}

func TestRejectsNonUUIDIds(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, id := range []string{"../etc/passwd", "", "notes.txt"} {
		if _, err := store.Write(id, strings.NewReader("x")); err == nil {
			t.Errorf("expected id %q to be rejected", id)
		}
		if store.Exists(id) {
			t.Errorf("Exists(%q) should be false", id)
		}
	}
}

package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"litman/models"
)

// testClock is a controllable clock shared by tests in this package.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupTestStore opens a fresh in-memory store driven by clock.
func setupTestStore(t *testing.T, clock *testClock) *models.Store {
	t.Helper()

	opts := models.StoreOptions{}
	if clock != nil {
		opts.Clock = clock.Now
	}
	store, err := models.OpenStore(context.Background(), opts)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createArticle(t *testing.T, store *models.Store, title string) *models.Entry {
	t.Helper()
	e, err := store.CreateEntry(context.Background(), models.EntryInput{
		Type:    models.EntryTypeArticle,
		Title:   title,
		Year:    2021,
		Article: &models.Article{Journal: "J. Test", Volume: "7"},
	})
	if err != nil {
		t.Fatalf("failed to create entry %q: %v", title, err)
	}
	return e
}

func createAuthor(t *testing.T, store *models.Store, first, last string) *models.Author {
	t.Helper()
	a, err := store.CreateAuthor(context.Background(), models.Author{FirstName: first, LastName: last})
	if err != nil {
		t.Fatalf("failed to create author %s %s: %v", first, last, err)
	}
	return a
}

func TestWriteLogsEveryMutation(t *testing.T) {
	clock := newTestClock()
	store := setupTestStore(t, clock)
	ctx := context.Background()
	t0 := clock.Now()

	entry := createArticle(t, store, "Logged")
	author := createAuthor(t, store, "Ada", "Lovelace")
	if err := store.LinkAuthor(ctx, entry.ID, author.ID); err != nil {
		t.Fatalf("LinkAuthor failed: %v", err)
	}
	if err := store.UpdateAuthor(ctx, models.Author{ID: author.ID, FirstName: "Augusta Ada", LastName: "King"}); err != nil {
		t.Fatalf("UpdateAuthor failed: %v", err)
	}

	changes, err := store.ChangesSince(ctx, "author", t0)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 author change entries, got %d", len(changes))
	}
	if changes[0].Op != models.OperationInsert || changes[1].Op != models.OperationUpdate {
		t.Errorf("expected insert then update, got %s then %s",
			models.OperationName(changes[0].Op), models.OperationName(changes[1].Op))
	}
	if !changes[1].ChangedAt.After(changes[0].ChangedAt) {
		t.Errorf("change timestamps should be strictly increasing: %v, %v", changes[0].ChangedAt, changes[1].ChangedAt)
	}

	entryChanges, err := store.ChangesSince(ctx, "article", t0)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(entryChanges) != 1 || entryChanges[0].RowID != entry.ID {
		t.Errorf("expected one article change for %s, got %+v", entry.ID, entryChanges)
	}

	n, err := models.CountRaw(store, "SELECT count(*) FROM author_link_changes")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 link change entry, got %d", n)
	}
}

func TestLinkingExistingPairIsNotLogged(t *testing.T) {
	store := setupTestStore(t, nil)
	ctx := context.Background()

	entry := createArticle(t, store, "Twice linked")
	author := createAuthor(t, store, "Grace", "Hopper")
	for i := 0; i < 2; i++ {
		if err := store.LinkAuthor(ctx, entry.ID, author.ID); err != nil {
			t.Fatalf("LinkAuthor #%d failed: %v", i+1, err)
		}
	}

	n, err := models.CountRaw(store, "SELECT count(*) FROM author_link_changes")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 link change entry, got %d", n)
	}
}

func TestFailedLogWriteRollsBackMutation(t *testing.T) {
	store := setupTestStore(t, nil)
	ctx := context.Background()

	if err := models.ExecRaw(store, "DROP TABLE author_changes"); err != nil {
		t.Fatalf("failed to drop change log: %v", err)
	}

	if _, err := store.CreateAuthor(ctx, models.Author{LastName: "Orphan"}); err == nil {
		t.Fatal("expected CreateAuthor to fail when its change log cannot be written")
	}

	n, err := models.CountRaw(store, "SELECT count(*) FROM author")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("mutation should have been rolled back, found %d authors", n)
	}
}

func TestDeleteEntryRemovesLinksAndDetail(t *testing.T) {
	store := setupTestStore(t, nil)
	ctx := context.Background()

	entry := createArticle(t, store, "Doomed")
	author := createAuthor(t, store, "Alan", "Turing")
	if err := store.LinkAuthor(ctx, entry.ID, author.ID); err != nil {
		t.Fatalf("LinkAuthor failed: %v", err)
	}

	if err := store.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}

	if _, err := store.GetEntry(ctx, entry.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	for _, q := range []string{
		"SELECT count(*) FROM article",
		"SELECT count(*) FROM author_link",
	} {
		n, err := models.CountRaw(store, q)
		if err != nil {
			t.Fatalf("%s failed: %v", q, err)
		}
		if n != 0 {
			t.Errorf("%s: expected 0, got %d", q, n)
		}
	}

	// the author survives the entry
	if _, err := store.GetAuthor(ctx, author.ID); err != nil {
		t.Errorf("author should remain after entry delete: %v", err)
	}
}

func TestStampsStayMonotonicWhenClockStalls(t *testing.T) {
	clock := newTestClock()
	store := setupTestStore(t, clock)

	a := store.Now()
	b := store.Now()
	if !b.After(a) {
		t.Errorf("expected %v to be after %v with a frozen clock", b, a)
	}

	clock.Advance(-time.Hour)
	c := store.Now()
	if !c.After(b) {
		t.Errorf("expected %v to be after %v with a clock that went backwards", c, b)
	}
}

func TestEntryCRUD(t *testing.T) {
	store := setupTestStore(t, nil)
	ctx := context.Background()

	e, err := store.CreateEntry(ctx, models.EntryInput{
		Type:  models.EntryTypeBook,
		Title: "Structure and Interpretation of Computer Programs",
		Year:  1985,
		Book:  &models.Book{Publisher: "MIT Press", Edition: "2"},
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if e.Book == nil || e.Book.Publisher != "MIT Press" {
		t.Fatalf("expected book detail to round trip, got %+v", e.Book)
	}

	updated, err := store.UpdateEntry(ctx, e.ID, models.EntryInput{
		Type:          models.EntryTypeInProceedings,
		Title:         e.Title,
		Year:          1986,
		InProceedings: &models.InProceedings{Booktitle: "Proc. Lisp"},
	})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if updated.Book != nil || updated.InProceedings == nil || updated.InProceedings.Booktitle != "Proc. Lisp" {
		t.Errorf("expected detail to move to in_proceedings, got %+v", updated)
	}
	if updated.Year != 1986 {
		t.Errorf("expected year 1986, got %d", updated.Year)
	}
	if !updated.ModifiedAt.After(updated.CreatedAt) {
		t.Errorf("modified_at should advance on update")
	}

	if _, err := store.CreateEntry(ctx, models.EntryInput{Type: "pamphlet", Title: "x"}); err == nil {
		t.Error("expected unknown entry type to be rejected")
	}

	list, err := store.ListEntries(ctx)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 entry, got %d", len(list))
	}
}

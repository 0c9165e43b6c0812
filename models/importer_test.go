package models_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"litman/models"
)

func TestImportRoundTripPreservesRows(t *testing.T) {
	clock := newTestClock()
	source := setupTestStore(t, clock)
	target := setupTestStore(t, clock)
	ctx := context.Background()

	t0 := source.Now()
	clock.Advance(time.Second)

	entry, err := source.CreateEntry(ctx, models.EntryInput{
		Type:          models.EntryTypeInProceedings,
		Title:         "Time, Clocks, and the Ordering of Events",
		Key:           "lamport78",
		DOI:           "10.1145/359545.359563",
		Year:          1978,
		InProceedings: &models.InProceedings{Booktitle: "CACM", Pages: "558-565"},
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	author := createAuthor(t, source, "Leslie", "Lamport")
	file, err := source.CreateFile(ctx, models.File{Path: "lamport78.pdf", Type: "pdf", DefaultOpen: true})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := source.LinkAuthor(ctx, entry.ID, author.ID); err != nil {
		t.Fatalf("LinkAuthor failed: %v", err)
	}
	if err := source.AttachFile(ctx, entry.ID, file.ID); err != nil {
		t.Fatalf("AttachFile failed: %v", err)
	}

	diff, err := source.Export(ctx, t0)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := target.Import(ctx, diff); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	got, err := target.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry on target failed: %v", err)
	}
	if !reflect.DeepEqual(got, entry) {
		t.Errorf("entry did not round trip:\n got  %+v\n want %+v", got, entry)
	}

	gotFile, err := target.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile on target failed: %v", err)
	}
	if *gotFile != *file {
		t.Errorf("file did not round trip: got %+v want %+v", gotFile, file)
	}

	authors, err := target.EntryAuthors(ctx, entry.ID)
	if err != nil {
		t.Fatalf("EntryAuthors failed: %v", err)
	}
	if len(authors) != 1 || authors[0] != *author {
		t.Errorf("expected linked author %+v, got %+v", author, authors)
	}

	srcStatus, err := source.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	dstStatus, err := target.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if srcStatus.Checksum != dstStatus.Checksum {
		t.Errorf("checksums differ after import: %s vs %s", srcStatus.Checksum, dstStatus.Checksum)
	}
}

func TestImportIsNotLogged(t *testing.T) {
	clock := newTestClock()
	source := setupTestStore(t, clock)
	target := setupTestStore(t, clock)
	ctx := context.Background()

	t0 := source.Now()
	createAuthor(t, source, "Niklaus", "Wirth")
	diff, err := source.Export(ctx, t0)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := target.Import(ctx, diff); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	n, err := models.CountRaw(target, "SELECT count(*) FROM author_changes")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("import must not write change-log entries, found %d", n)
	}
}

func TestImportFailureLeavesStoreUntouched(t *testing.T) {
	clock := newTestClock()
	store := setupTestStore(t, clock)
	ctx := context.Background()

	existing := createAuthor(t, store, "Donald", "Knuth")
	if err := store.RecordSync(ctx, store.Now(), models.SyncKindManual); err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	before, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	lastBefore, _ := store.LastSync(ctx)

	now := store.Now()
	diff := models.NewDiffSet(now)
	entryCols := []string{"id", "type", "title", "created_at", "modified_at"}
	diff.Tables["entry"] = &models.TableDiff{
		Columns:  entryCols,
		Inserted: [][]any{{models.NewID(), models.EntryTypeBook, "Lands first", now, now}},
	}
	diff.Tables["author"] = &models.TableDiff{
		Columns: []string{"id", "last_name"},
		// last_name is NOT NULL, so this upsert fails after the entry landed
		Inserted: [][]any{{models.NewID(), nil}},
		Deleted:  []string{existing.ID},
	}

	err = store.ImportAndRecordSync(ctx, diff, store.Now(), models.SyncKindPush)
	if err == nil {
		t.Fatal("expected import to fail")
	}

	after, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if after.Checksum != before.Checksum {
		t.Errorf("store changed despite failed import: %v -> %v", before.Counts, after.Counts)
	}
	lastAfter, _ := store.LastSync(ctx)
	if !lastAfter.Equal(lastBefore) {
		t.Errorf("sync log advanced on failed import: %v -> %v", lastBefore, lastAfter)
	}
}

func TestImportRejectsUnknownTable(t *testing.T) {
	store := setupTestStore(t, nil)

	diff := models.NewDiffSet(time.Now())
	diff.Tables["notes"] = &models.TableDiff{Columns: []string{"id"}, Inserted: [][]any{{models.NewID()}}}

	if err := store.Import(context.Background(), diff); err == nil {
		t.Fatal("expected import of an unknown table to fail")
	}
}

func TestImportIgnoresUnknownColumns(t *testing.T) {
	store := setupTestStore(t, nil)
	ctx := context.Background()

	id := models.NewID()
	diff := models.NewDiffSet(time.Now())
	diff.Tables["keyword"] = &models.TableDiff{
		Columns:  []string{"id", "name", "color"},
		Inserted: [][]any{{id, "distributed", "blue"}},
	}
	if err := store.Import(ctx, diff); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	keywords, err := store.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("ListKeywords failed: %v", err)
	}
	if len(keywords) != 1 || keywords[0].ID != id || keywords[0].Name != "distributed" {
		t.Errorf("unexpected keywords %+v", keywords)
	}
}

package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"litman/models"
)

func TestRestoreReproducesSnapshot(t *testing.T) {
	clock := newTestClock()
	server := setupTestStore(t, clock)
	client := setupTestStore(t, clock)
	ctx := context.Background()

	e1 := createArticle(t, server, "First")
	createArticle(t, server, "Second")
	createArticle(t, server, "Third")
	a1 := createAuthor(t, server, "Ken", "Thompson")
	createAuthor(t, server, "Dennis", "Ritchie")
	if err := server.LinkAuthor(ctx, e1.ID, a1.ID); err != nil {
		t.Fatalf("LinkAuthor failed: %v", err)
	}

	// stale local state that bootstrap must discard
	createArticle(t, client, "Stale")

	snap, err := server.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	clock.Advance(time.Minute)
	bootstrappedAt := client.Now()
	if err := client.Restore(ctx, snap, bootstrappedAt); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Counts["entry"] != 3 || status.Counts["author"] != 2 || status.LinkCounts["author_link"] != 1 {
		t.Errorf("expected 3 entries, 2 authors, 1 link; got %v / %v", status.Counts, status.LinkCounts)
	}

	serverStatus, err := server.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Checksum != serverStatus.Checksum {
		t.Errorf("client checksum %s differs from server %s", status.Checksum, serverStatus.Checksum)
	}

	last, err := client.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if !last.Equal(bootstrappedAt) {
		t.Errorf("expected low-water mark %v, got %v", bootstrappedAt, last)
	}
	history, err := client.SyncHistory(ctx, 5)
	if err != nil {
		t.Fatalf("SyncHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].Kind != models.SyncKindBootstrap {
		t.Errorf("expected a single bootstrap sync entry, got %+v", history)
	}

	// change tracking is live again on the restored store
	diff, err := client.Export(ctx, last)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !diff.IsEmpty() {
		t.Errorf("restored rows must not appear as local changes, got %+v", diff.Counts())
	}

	createAuthor(t, client, "Rob", "Pike")
	diff, err = client.Export(ctx, last)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if got := diff.Counts().Inserted; got != 1 {
		t.Errorf("expected the new author to be tracked, got %d inserts", got)
	}
}

func TestPruneChangeLogs(t *testing.T) {
	clock := newTestClock()
	store := setupTestStore(t, clock)
	ctx := context.Background()

	if _, err := store.PruneChangeLogs(ctx, clock.Now()); !errors.Is(err, models.ErrPruneBeyondSync) {
		t.Errorf("expected ErrPruneBeyondSync without sync history, got %v", err)
	}

	createAuthor(t, store, "Old", "Change")
	clock.Advance(time.Hour)
	syncedAt := store.Now()
	if err := store.RecordSync(ctx, syncedAt, models.SyncKindManual); err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	clock.Advance(time.Hour)
	createAuthor(t, store, "New", "Change")

	if _, err := store.PruneChangeLogs(ctx, clock.Now()); !errors.Is(err, models.ErrPruneBeyondSync) {
		t.Errorf("expected pruning past the last sync to be refused, got %v", err)
	}

	removed, err := store.PruneChangeLogs(ctx, syncedAt)
	if err != nil {
		t.Fatalf("PruneChangeLogs failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 entry pruned, got %d", removed)
	}

	remaining, err := store.ChangesSince(ctx, "author", syncedAt.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected the post-sync change to survive, got %d", len(remaining))
	}
}

func TestSyncLogIsStrictlyIncreasing(t *testing.T) {
	clock := newTestClock()
	store := setupTestStore(t, clock)
	ctx := context.Background()

	at := store.Now()
	if err := store.RecordSync(ctx, at, models.SyncKindManual); err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	if err := store.RecordSync(ctx, at, models.SyncKindManual); err == nil {
		t.Error("expected a repeated sync timestamp to be rejected")
	}
	if err := store.RecordSync(ctx, at.Add(-time.Second), models.SyncKindManual); err == nil {
		t.Error("expected an earlier sync timestamp to be rejected")
	}
}

func TestPendingChangesCountsLinks(t *testing.T) {
	clock := newTestClock()
	store := setupTestStore(t, clock)
	ctx := context.Background()

	entry := createArticle(t, store, "Linked later")
	author := createAuthor(t, store, "Ada", "Lovelace")
	clock.Advance(time.Second)
	if err := store.RecordSync(ctx, store.Now(), models.SyncKindManual); err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	clock.Advance(time.Second)

	if err := store.LinkAuthor(ctx, entry.ID, author.ID); err != nil {
		t.Fatalf("LinkAuthor failed: %v", err)
	}

	status, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.PendingChanges != 1 {
		t.Errorf("expected the link to be the one pending change, got %d", status.PendingChanges)
	}
}

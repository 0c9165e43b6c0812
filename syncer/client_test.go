package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"litman/filestore"
	"litman/models"
	"litman/syncer"
)

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

func newStore(t *testing.T, clock *testClock) *models.Store {
	t.Helper()
	store, err := models.OpenStore(context.Background(), models.StoreOptions{Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newFiles(t *testing.T) *filestore.Store {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open file store: %v", err)
	}
	return fs
}

// syncHandler serves the three sync endpoints the way the web server does,
// without authentication.
func syncHandler(merger *syncer.Merger, files *filestore.Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		out, err := merger.MergeFromClient(r.Context(), body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", syncer.ContentType)
		w.Write(out)
	})
	mux.HandleFunc("GET /dump", func(w http.ResponseWriter, r *http.Request) {
		out, err := merger.Dump(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(out)
	})
	mux.HandleFunc("GET /file/{id}", func(w http.ResponseWriter, r *http.Request) {
		rc, _, err := files.Open(r.PathValue("id"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer rc.Close()
		io.Copy(w, rc)
	})
	return mux
}

func newClient(t *testing.T, url string, store *models.Store, files *filestore.Store) *syncer.Client {
	t.Helper()
	c, err := syncer.NewClient(syncer.ClientConfig{ServerURL: url, Timeout: 5 * time.Second}, store, files, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func mustAuthor(t *testing.T, store *models.Store, first, last string) *models.Author {
	t.Helper()
	a, err := store.CreateAuthor(context.Background(), models.Author{FirstName: first, LastName: last})
	if err != nil {
		t.Fatalf("CreateAuthor failed: %v", err)
	}
	return a
}

func mustEntry(t *testing.T, store *models.Store, title string) *models.Entry {
	t.Helper()
	e, err := store.CreateEntry(context.Background(), models.EntryInput{
		Type:    models.EntryTypeArticle,
		Title:   title,
		Year:    2020,
		Article: &models.Article{Journal: "SIGOPS"},
	})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	return e
}

func checksum(t *testing.T, store *models.Store) string {
	t.Helper()
	st, err := store.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	return st.Checksum
}

func TestPushMergesBothSides(t *testing.T) {
	clock := newTestClock()
	serverStore := newStore(t, clock)
	clientStore := newStore(t, clock)
	ctx := context.Background()

	shared := mustEntry(t, serverStore, "Shared before bootstrap")
	srv := httptest.NewServer(syncHandler(syncer.NewMerger(serverStore, nil), newFiles(t)))
	defer srv.Close()
	client := newClient(t, srv.URL, clientStore, newFiles(t))

	clock.Advance(time.Minute)
	if _, err := client.BootstrapFromServer(ctx); err != nil {
		t.Fatalf("BootstrapFromServer failed: %v", err)
	}

	clock.Advance(time.Minute)
	fromServer := mustAuthor(t, serverStore, "Barbara", "Liskov")
	fromClient := mustAuthor(t, clientStore, "Butler", "Lampson")
	if err := clientStore.LinkAuthor(ctx, shared.ID, fromClient.ID); err != nil {
		t.Fatalf("LinkAuthor failed: %v", err)
	}

	clock.Advance(time.Minute)
	res, err := client.PushToServer(ctx)
	if err != nil {
		t.Fatalf("PushToServer failed: %v", err)
	}
	if res.Sent.Inserted != 1 || res.Sent.LinksInserted != 1 {
		t.Errorf("expected one author and one link sent, got %+v", res.Sent)
	}
	if res.Received.Inserted != 1 {
		t.Errorf("expected the server's author back, got %+v", res.Received)
	}

	if _, err := serverStore.GetAuthor(ctx, fromClient.ID); err != nil {
		t.Errorf("server is missing the client's author: %v", err)
	}
	if _, err := clientStore.GetAuthor(ctx, fromServer.ID); err != nil {
		t.Errorf("client is missing the server's author: %v", err)
	}
	if a, b := checksum(t, clientStore), checksum(t, serverStore); a != b {
		t.Errorf("libraries differ after push: client %s server %s", a, b)
	}

	last, err := clientStore.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if !last.Equal(res.SyncedAt) {
		t.Errorf("sync log should hold %v, got %v", res.SyncedAt, last)
	}

	// nothing left to exchange
	clock.Advance(time.Minute)
	again, err := client.PushToServer(ctx)
	if err != nil {
		t.Fatalf("second PushToServer failed: %v", err)
	}
	if again.Sent.Total() != 0 || again.Received.Total() != 0 {
		t.Errorf("expected an empty second round, sent %+v received %+v", again.Sent, again.Received)
	}

	if st := client.Status(); st.LastSuccess == nil || st.LastError != "" || st.InProgress {
		t.Errorf("unexpected client status %+v", st)
	}
}

func TestPushWithoutSyncHistory(t *testing.T) {
	clock := newTestClock()
	client := newClient(t, "http://127.0.0.1:1", newStore(t, clock), nil)

	if _, err := client.PushToServer(context.Background()); !errors.Is(err, syncer.ErrNoSyncHistory) {
		t.Errorf("expected ErrNoSyncHistory, got %v", err)
	}
}

func TestPushFailureDoesNotAdvanceSyncLog(t *testing.T) {
	clock := newTestClock()
	store := newStore(t, clock)
	ctx := context.Background()

	mark := store.Now()
	if err := store.RecordSync(ctx, mark, models.SyncKindManual); err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	mustAuthor(t, store, "Pending", "Change")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    syncer.ErrorKind
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"error":"disk full"}`))
			},
			kind:   syncer.KindTransport,
			status: http.StatusInternalServerError,
		},
		{
			name: "garbage reply",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>proxy error</html>"))
			},
			kind: syncer.KindSerialization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			client := newClient(t, srv.URL, store, nil)

			_, err := client.PushToServer(ctx)
			if err == nil {
				t.Fatal("expected push to fail")
			}
			if got := syncer.KindOf(err); got != tt.kind {
				t.Errorf("expected %s error, got %s (%v)", tt.kind, got, err)
			}
			var se *syncer.SyncError
			if errors.As(err, &se) && se.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, se.StatusCode)
			}
			if tt.status != 0 && !strings.Contains(err.Error(), "disk full") {
				t.Errorf("expected server message in error, got %v", err)
			}

			last, err := store.LastSync(ctx)
			if err != nil {
				t.Fatalf("LastSync failed: %v", err)
			}
			if !last.Equal(mark) {
				t.Errorf("sync log advanced to %v after failure", last)
			}
			if st := client.Status(); st.Stage != "failed" || st.LastError == "" {
				t.Errorf("expected failed status, got %+v", st)
			}
		})
	}
}

func TestConcurrentSyncIsRejected(t *testing.T) {
	clock := newTestClock()
	store := newStore(t, clock)
	ctx := context.Background()
	if err := store.RecordSync(ctx, store.Now(), models.SyncKindManual); err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	// Runs before srv.Close so a failed assertion cannot leave the handler blocked
	unblock := sync.OnceFunc(func() { close(release) })
	defer unblock()
	client := newClient(t, srv.URL, store, nil)

	done := make(chan error, 1)
	go func() {
		_, err := client.PushToServer(ctx)
		done <- err
	}()
	<-entered

	if !client.Status().InProgress {
		t.Error("status should report a sync in progress")
	}
	if _, err := client.PushToServer(ctx); !errors.Is(err, syncer.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
	if _, err := client.BootstrapFromServer(ctx); !errors.Is(err, syncer.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress for bootstrap, got %v", err)
	}

	unblock()
	if err := <-done; err == nil {
		t.Error("expected the first push to fail with 503")
	}
}

func TestBootstrapReportsMissingFiles(t *testing.T) {
	clock := newTestClock()
	serverStore := newStore(t, clock)
	clientStore := newStore(t, clock)
	serverFiles := newFiles(t)
	clientFiles := newFiles(t)
	ctx := context.Background()

	present, err := serverStore.CreateFile(ctx, models.File{Path: "present.pdf", Type: "pdf"})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	absent, err := serverStore.CreateFile(ctx, models.File{Path: "absent.pdf", Type: "pdf"})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if _, err := serverFiles.Write(present.ID, strings.NewReader("pdf bytes")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	srv := httptest.NewServer(syncHandler(syncer.NewMerger(serverStore, nil), serverFiles))
	defer srv.Close()
	client := newClient(t, srv.URL, clientStore, clientFiles)

	clock.Advance(time.Minute)
	res, err := client.BootstrapFromServer(ctx)
	if err != nil {
		t.Fatalf("BootstrapFromServer failed: %v", err)
	}
	if res.FileError != "" {
		t.Errorf("individual fetch failures must not fail reconciliation: %s", res.FileError)
	}
	if res.FilesFetched != 1 {
		t.Errorf("expected 1 file fetched, got %d", res.FilesFetched)
	}
	if len(res.MissingFiles) != 1 || res.MissingFiles[0] != absent.ID {
		t.Errorf("expected %s reported missing, got %v", absent.ID, res.MissingFiles)
	}
	if !clientFiles.Exists(present.ID) {
		t.Error("fetched file should be in the client's file store")
	}
	if res.Counts["file"] != 2 {
		t.Errorf("both file records should be restored, got %v", res.Counts)
	}

	// a later retry fetches nothing new and still reports the gap
	fetched, missing, err := client.FetchMissingFiles(ctx)
	if err != nil {
		t.Fatalf("FetchMissingFiles failed: %v", err)
	}
	if fetched != 0 || len(missing) != 1 {
		t.Errorf("expected 0 fetched / 1 missing, got %d / %v", fetched, missing)
	}
}

func TestClientLogsInOncePerToken(t *testing.T) {
	clock := newTestClock()
	serverStore := newStore(t, clock)
	clientStore := newStore(t, clock)
	ctx := context.Background()
	merger := syncer.NewMerger(serverStore, nil)
	inner := syncHandler(merger, newFiles(t))

	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "reader" || creds["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		logins.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"token": "tok-1", "expires_at": time.Now().Add(time.Hour)},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := syncer.NewClient(syncer.ClientConfig{
		ServerURL: srv.URL,
		Username:  "reader",
		Password:  "s3cret",
	}, clientStore, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := client.BootstrapFromServer(ctx); err != nil {
		t.Fatalf("BootstrapFromServer failed: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := client.PushToServer(ctx); err != nil {
		t.Fatalf("PushToServer failed: %v", err)
	}
	if n := logins.Load(); n != 1 {
		t.Errorf("expected a single login, got %d", n)
	}
}

func TestVerifyReportsDifferences(t *testing.T) {
	clock := newTestClock()
	serverStore := newStore(t, clock)
	clientStore := newStore(t, clock)
	ctx := context.Background()

	author := mustAuthor(t, serverStore, "Jim", "Gray")
	srv := httptest.NewServer(syncHandler(syncer.NewMerger(serverStore, nil), newFiles(t)))
	defer srv.Close()
	client := newClient(t, srv.URL, clientStore, nil)

	clock.Advance(time.Minute)
	if _, err := client.BootstrapFromServer(ctx); err != nil {
		t.Fatalf("BootstrapFromServer failed: %v", err)
	}
	report, err := client.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistent libraries right after bootstrap, got %+v", report)
	}

	if err := clientStore.UpdateAuthor(ctx, models.Author{ID: author.ID, FirstName: "James", LastName: "Gray"}); err != nil {
		t.Fatalf("UpdateAuthor failed: %v", err)
	}
	extra := mustAuthor(t, clientStore, "Local", "Only")

	report, err = client.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if report.Consistent || len(report.Tables) != 1 {
		t.Fatalf("expected one differing table, got %+v", report)
	}
	td := report.Tables[0]
	if td.Table != "author" || len(td.OnlyLocal) != 1 || td.OnlyLocal[0] != extra.ID {
		t.Errorf("expected %s only locally, got %+v", extra.ID, td)
	}
	if len(td.Changed) != 1 || td.Changed[0].Column != "first_name" || td.Changed[0].Patch == "" {
		t.Errorf("expected a first_name difference with a patch, got %+v", td.Changed)
	}
}

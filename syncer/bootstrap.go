package syncer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"litman/metrics"
	"litman/models"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"golang.org/x/sync/errgroup"
)

// BootstrapResult summarizes a bootstrap.
type BootstrapResult struct {
	BootstrappedAt time.Time      `json:"bootstrapped_at"`
	Counts         map[string]int `json:"counts"`
	FilesFetched   int            `json:"files_fetched"`
	// MissingFiles lists attachments that could not be fetched. They can be
	// fetched again later; the restore itself stands.
	MissingFiles []string `json:"missing_files,omitempty"`
	// FileError is set when attachments could not be reconciled at all.
	FileError string        `json:"file_error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// BootstrapFromServer replaces the local library with the server's full
// dump and then fetches every attachment the local file store lacks.
// Destructive: callers confirm with the user first.
func (c *Client) BootstrapFromServer(ctx context.Context) (*BootstrapResult, error) {
	if !c.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.syncMu.Unlock()
	c.inProgress.Store(true)
	defer c.inProgress.Store(false)

	started := time.Now()
	res, err := c.bootstrap(ctx)
	c.finish(started, err)
	c.metrics.ObserveSync(metrics.RoleBootstrap, started, err)
	if err != nil {
		logger.LogErr(err, "bootstrap from server failed", "server", c.config.ServerURL)
		return nil, err
	}
	res.Duration = time.Since(started)

	logger.Info("Bootstrap completed",
		"server", c.config.ServerURL,
		"entries", res.Counts["entry"],
		"files_fetched", res.FilesFetched,
		"files_missing", len(res.MissingFiles),
	)
	return res, nil
}

func (c *Client) bootstrap(ctx context.Context) (*BootstrapResult, error) {
	c.setStage(StageTransmitting)
	// Local writes during the bootstrap are discarded by the restore, so the
	// mark only has to precede whatever happens after it.
	bootstrappedAt := c.store.Now()
	body, err := c.do(ctx, http.MethodGet, "/dump", nil, StageTransmitting)
	if err != nil {
		return nil, err
	}

	c.setStage(StageAwaitingResponse)
	snap, err := DecodeSnapshot(body)
	if err != nil {
		return nil, newSyncError(StageAwaitingResponse, KindSerialization, err)
	}
	c.metrics.ObservePayload("received", len(body))

	c.setStage(StageRestoring)
	if err := c.store.Restore(ctx, snap, bootstrappedAt); err != nil {
		return nil, newSyncError(StageRestoring, KindLocal, err)
	}

	res := &BootstrapResult{BootstrappedAt: bootstrappedAt, Counts: make(map[string]int)}
	for name := range snap.Tables {
		res.Counts[name] = snap.RowCount(name)
	}

	c.setStage(StageFetchingFiles)
	fetched, missing, err := c.FetchMissingFiles(ctx)
	if err != nil {
		// The restore has committed; only the attachments are behind.
		err = newSyncError(StageFetchingFiles, KindLocal, err)
		logger.LogErr(err, "failed to reconcile files after bootstrap")
		res.FileError = err.Error()
	}
	res.FilesFetched = fetched
	res.MissingFiles = missing
	c.setStage(StageCommitted)
	return res, nil
}

// FetchMissingFiles downloads every file record whose blob is absent from
// the local file store, with bounded parallelism. Failed downloads are
// reported, never fatal. It returns the number fetched and the ids still
// missing.
func (c *Client) FetchMissingFiles(ctx context.Context) (int, []string, error) {
	if c.files == nil {
		return 0, nil, nil
	}
	records, err := c.store.ListFiles(ctx)
	if err != nil {
		return 0, nil, err
	}

	var (
		mu      sync.Mutex
		fetched int
		missing []string
		g       errgroup.Group
	)
	g.SetLimit(c.config.FetchConcurrency)

	for _, f := range records {
		if c.files.Exists(f.ID) {
			continue
		}
		id := f.ID
		g.Go(func() error {
			err := c.fetchFile(ctx, id)
			c.metrics.FileFetched(err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.LogErr(newSyncError(StageFetchingFiles, KindFileFetch, err), "failed to fetch file", "file_id", id)
				missing = append(missing, id)
				return nil
			}
			fetched++
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	sort.Strings(missing)
	return fetched, missing, nil
}

func (c *Client) fetchFile(ctx context.Context, id string) error {
	resp, err := c.send(ctx, http.MethodGet, "/file/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return serr.New(fmt.Sprintf("file %s: server responded %s", id, resp.Status))
	}
	if _, err := c.files.Write(id, resp.Body); err != nil {
		return serr.Wrap(err, "failed to store file "+id)
	}
	return nil
}

// Dump downloads the server's full snapshot without applying it.
func (c *Client) Dump(ctx context.Context) (*models.Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/dump", nil, StageTransmitting)
	if err != nil {
		return nil, err
	}
	snap, err := DecodeSnapshot(body)
	if err != nil {
		return nil, newSyncError(StageAwaitingResponse, KindSerialization, err)
	}
	return snap, nil
}

package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"litman/filestore"
	"litman/metrics"
	"litman/models"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// ClientConfig holds what a client node needs to reach its server.
type ClientConfig struct {
	ServerURL string
	Username  string // empty disables authentication
	Password  string
	Timeout   time.Duration
	// FetchConcurrency bounds parallel attachment downloads during bootstrap.
	FetchConcurrency int
}

// Validate checks the configuration and fills defaults.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return serr.New("server URL is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return serr.New("server URL must start with http:// or https://")
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if c.Username != "" && c.Password == "" {
		return serr.New("password is required when a username is set")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	return nil
}

// Client drives push and bootstrap against one server. Only one sync or
// bootstrap runs at a time per client.
type Client struct {
	config     ClientConfig
	store      *models.Store
	files      *filestore.Store
	metrics    *metrics.Metrics
	httpClient *http.Client

	syncMu     sync.Mutex  // held for the whole of a push or bootstrap
	inProgress atomic.Bool // mirrors syncMu for status readers

	stateMu     sync.Mutex
	stage       Stage
	lastAttempt time.Time
	lastSuccess time.Time
	lastError   error

	tokenMu     sync.Mutex
	authToken   string
	tokenExpiry time.Time
}

// ClientStatus is a point-in-time view of the client for status displays.
type ClientStatus struct {
	ServerURL   string     `json:"server_url"`
	Stage       string     `json:"stage"`
	InProgress  bool       `json:"in_progress"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// PushResult summarizes one successful push.
type PushResult struct {
	Mark     time.Time         `json:"mark"`      // low-water mark the export used
	SyncedAt time.Time         `json:"synced_at"` // new low-water mark
	Sent     models.DiffCounts `json:"sent"`
	Received models.DiffCounts `json:"received"`
	Duration time.Duration     `json:"duration"`
}

// NewClient creates a client over store. files may be nil when attachments
// are not synced; m may be nil.
func NewClient(cfg ClientConfig, store *models.Store, files *filestore.Store, m *metrics.Metrics) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, serr.Wrap(err, "invalid client config")
	}
	if store == nil {
		return nil, serr.New("client needs a store")
	}
	return &Client{
		config:     cfg,
		store:      store,
		files:      files,
		metrics:    m,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Status reports the current stage and the outcome of the last attempt.
func (c *Client) Status() ClientStatus {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	st := ClientStatus{
		ServerURL:  c.config.ServerURL,
		Stage:      c.stage.String(),
		InProgress: c.inProgress.Load(),
	}
	if !c.lastAttempt.IsZero() {
		t := c.lastAttempt
		st.LastAttempt = &t
	}
	if !c.lastSuccess.IsZero() {
		t := c.lastSuccess
		st.LastSuccess = &t
	}
	if c.lastError != nil {
		st.LastError = c.lastError.Error()
	}
	return st
}

// PushToServer sends every local change since the last recorded sync,
// applies the server's reply, and records the new sync, all or nothing.
// A node with no sync history gets ErrNoSyncHistory.
func (c *Client) PushToServer(ctx context.Context) (*PushResult, error) {
	mark, err := c.store.LastSync(ctx)
	if err != nil {
		return nil, newSyncError(StageExporting, KindLocal, err)
	}
	if mark.IsZero() {
		return nil, ErrNoSyncHistory
	}
	return c.PushSince(ctx, mark)
}

// PushSince pushes with an explicit low-water mark. It serves first syncs of
// nodes that were seeded out of band, and manual re-sends.
func (c *Client) PushSince(ctx context.Context, mark time.Time) (*PushResult, error) {
	if mark.IsZero() {
		return nil, models.ErrNoLowWaterMark
	}
	if !c.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.syncMu.Unlock()
	c.inProgress.Store(true)
	defer c.inProgress.Store(false)

	started := time.Now()
	res, err := c.push(ctx, mark)
	c.finish(started, err)
	c.metrics.ObserveSync(metrics.RolePush, started, err)
	if err != nil {
		logger.LogErr(err, "push to server failed", "server", c.config.ServerURL)
		return nil, err
	}
	res.Duration = time.Since(started)

	logger.Info("Push completed",
		"server", c.config.ServerURL,
		"sent", res.Sent.Total(),
		"received", res.Received.Total(),
		"synced_at", res.SyncedAt.Format(time.RFC3339Nano),
	)
	return res, nil
}

func (c *Client) push(ctx context.Context, mark time.Time) (*PushResult, error) {
	c.setStage(StageExporting)
	// Everything stamped at or after syncedAt lands in the next window.
	diff, syncedAt, err := c.store.ExportForSync(ctx, mark)
	if err != nil {
		return nil, newSyncError(StageExporting, KindLocal, err)
	}
	payload, err := EncodeDiff(diff)
	if err != nil {
		return nil, newSyncError(StageExporting, KindSerialization, err)
	}
	c.metrics.ObservePayload("sent", len(payload))
	logger.Debug("Exported local changes", "mark", mark.Format(time.RFC3339Nano), "counts", fmt.Sprintf("%+v", diff.Counts()))

	c.setStage(StageTransmitting)
	body, err := c.do(ctx, http.MethodPost, "/sync", payload, StageTransmitting)
	if err != nil {
		return nil, err
	}

	c.setStage(StageAwaitingResponse)
	reply, err := DecodeDiff(body)
	if err != nil {
		return nil, newSyncError(StageAwaitingResponse, KindSerialization, err)
	}
	c.metrics.ObservePayload("received", len(body))

	c.setStage(StageImporting)
	if err := c.store.ImportAndRecordSync(ctx, reply, syncedAt, models.SyncKindPush); err != nil {
		return nil, newSyncError(StageImporting, KindLocal, err)
	}
	c.setStage(StageCommitted)

	sent, received := diff.Counts(), reply.Counts()
	c.metrics.AddDiff("sent", sent)
	c.metrics.AddDiff("received", received)
	return &PushResult{Mark: mark, SyncedAt: syncedAt, Sent: sent, Received: received}, nil
}

func (c *Client) setStage(s Stage) {
	c.stateMu.Lock()
	c.stage = s
	c.stateMu.Unlock()
}

func (c *Client) finish(started time.Time, err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.lastAttempt = started
	c.lastError = err
	if err != nil {
		c.stage = StageFailed
		return
	}
	c.lastSuccess = started
	c.stage = StageIdle
}

// do sends one request to the server and returns the response body.
// Non-2xx responses and transport failures become KindTransport errors.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, stage Stage) ([]byte, error) {
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, newSyncError(stage, KindTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newSyncError(StageAwaitingResponse, KindTransport, serr.Wrap(err, "failed to read response"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SyncError{
			Stage:      StageAwaitingResponse,
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Err:        serr.New(serverMessage(body, resp.Status)),
		}
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.ServerURL+path, body)
	if err != nil {
		return nil, serr.Wrap(err, "failed to create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", ContentType)
	}
	req.Header.Set("Accept", ContentType)

	if c.config.Username != "" {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, serr.Wrap(err, "request to "+path+" failed")
	}
	return resp, nil
}

// token returns a cached bearer token, logging in when there is none or it
// is about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.authToken != "" && time.Until(c.tokenExpiry) > 30*time.Second {
		return c.authToken, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	return c.authToken, nil
}

// login posts credentials to the server's token endpoint and caches the JWT.
func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.config.Username,
		"password": c.config.Password,
	})
	if err != nil {
		return serr.Wrap(err, "failed to marshal login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ServerURL+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return serr.Wrap(err, "failed to create login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return serr.Wrap(err, "login request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serr.New(fmt.Sprintf("login failed with status %d", resp.StatusCode))
	}

	// APIResponse { success, data: { token, expires_at } }
	var apiResp struct {
		Success bool `json:"success"`
		Data    struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return serr.Wrap(err, "failed to decode login response")
	}
	if !apiResp.Success || apiResp.Data.Token == "" {
		return serr.New("login response missing token")
	}

	c.authToken = apiResp.Data.Token
	c.tokenExpiry = apiResp.Data.ExpiresAt
	return nil
}

// serverMessage pulls the error text out of an APIResponse body, falling
// back to the HTTP status line.
func serverMessage(body []byte, status string) string {
	var apiResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != "" {
		return "server responded " + status + ": " + apiResp.Error
	}
	return "server responded " + status
}

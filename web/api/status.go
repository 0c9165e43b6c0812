package api

import (
	"net/http"
	"time"

	"litman/models"
	"litman/syncer"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// historyLimit caps the sync-log entries included in status responses.
const historyLimit = 10

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Mode    string                `json:"mode"`
	Store   *models.StoreStatus   `json:"store"`
	History []models.SyncLogEntry `json:"history"`
	Client  *syncer.ClientStatus  `json:"client,omitempty"`
}

// Health handles GET /api/v1/health
// Unauthenticated liveness check.
func (h *Handlers) Health(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Status handles GET /api/v1/status
// Returns table counts, the library checksum, pending changes and recent
// sync history; on client nodes also the client's last outcome.
func (h *Handlers) Status(ctx rweb.Context) error {
	resp, err := h.status()
	if err != nil {
		logger.LogErr(err, "failed to compute status")
		return writeError(ctx, http.StatusInternalServerError, "failed to compute status")
	}
	return writeSuccess(ctx, http.StatusOK, resp)
}

func (h *Handlers) status() (*StatusResponse, error) {
	c := requestContext()
	st, err := h.deps.Store.Status(c)
	if err != nil {
		return nil, err
	}
	history, err := h.deps.Store.SyncHistory(c, historyLimit)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{Mode: h.deps.Mode, Store: st, History: history}
	if h.deps.Client != nil {
		cs := h.deps.Client.Status()
		resp.Client = &cs
	}
	return resp, nil
}

// Package api holds the HTTP handlers for replication, status and auth.
package api

import (
	"context"
	"net/http"
	"strings"

	"litman/auth"
	"litman/filestore"
	"litman/models"
	"litman/syncer"

	"github.com/rohanthewiz/rweb"
)

// APIResponse provides a consistent JSON response structure for all API endpoints.
// Success responses include data, error responses include an error message.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeSuccess sends a successful JSON response with data.
func writeSuccess(ctx rweb.Context, status int, data interface{}) error {
	ctx.SetStatus(status)
	return ctx.WriteJSON(APIResponse{Success: true, Data: data})
}

// writeError sends an error JSON response.
func writeError(ctx rweb.Context, status int, message string) error {
	ctx.SetStatus(status)
	return ctx.WriteJSON(APIResponse{Success: false, Error: message})
}

// Deps are the collaborators the handlers work against. Merger is set on
// server nodes, Client on client nodes.
type Deps struct {
	Mode    string
	Store   *models.Store
	Files   *filestore.Store
	Merger  *syncer.Merger
	Client  *syncer.Client
	Account auth.Account
	Tokens  *auth.TokenIssuer
}

// Handlers serves every API route over one set of Deps.
type Handlers struct {
	deps Deps
}

// New returns handlers bound to deps.
func New(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Deps returns the collaborators the handlers were built with.
func (h *Handlers) Deps() Deps { return h.deps }

// requestContext is the context handlers run store operations under.
// Requests carry no cancellation of their own.
func requestContext() context.Context {
	return context.Background()
}

func wantsJSON(ctx rweb.Context) bool {
	return strings.Contains(ctx.Request().Header("Accept"), "application/json")
}

// statusForSyncError maps a sync failure onto an HTTP status: malformed or
// unsupported payloads are the caller's fault, everything else is ours.
func statusForSyncError(err error) int {
	if syncer.KindOf(err) == syncer.KindSerialization {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

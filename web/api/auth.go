package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
)

// TokenResponse is returned on successful authentication.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken exchanges the node's credentials for a bearer token.
// POST /api/v1/auth/token
//
// Request body:
//
//	{ "username": "librarian", "password": "..." }
//
// Success (200):
//
//	{ "success": true, "data": { "token": "...", "expires_at": "..." } }
//
// Errors:
//   - 400: Invalid body, or authentication is not enabled on this node
//   - 401: Invalid credentials
func (h *Handlers) IssueToken(ctx rweb.Context) error {
	if !h.deps.Account.Enabled() || h.deps.Tokens == nil {
		return writeError(ctx, http.StatusBadRequest, "authentication is not enabled on this node")
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(ctx.Request().Body(), &input); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if input.Username == "" || input.Password == "" {
		return writeError(ctx, http.StatusBadRequest, "username and password are required")
	}

	if !h.deps.Account.Authenticate(input.Username, input.Password) {
		// Don't reveal which half was wrong
		return writeError(ctx, http.StatusUnauthorized, "invalid username or password")
	}

	token, expires, err := h.deps.Tokens.Issue(input.Username)
	if err != nil {
		logger.LogErr(serr.Wrap(err, "failed to issue token"), "username", input.Username)
		return writeError(ctx, http.StatusInternalServerError, "failed to issue token")
	}

	logger.Info("Issued token", "username", input.Username, "expires_at", expires.Format(time.RFC3339))
	return writeSuccess(ctx, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires})
}

// CurrentUser returns the authenticated account name set by the auth
// middleware, or "" when auth is disabled.
func CurrentUser(ctx rweb.Context) string {
	username, _ := ctx.Get("username").(string)
	return username
}

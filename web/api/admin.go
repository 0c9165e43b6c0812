package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"litman/syncer"
	"litman/web/pages"
	"litman/web/pages/comps"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// AdminPage handles GET /admin
func (h *Handlers) AdminPage(ctx rweb.Context) error {
	return h.renderAdmin(ctx, http.StatusOK, comps.Flash{})
}

// AdminPush handles POST /admin/push
// Runs one push against the configured server. Answers JSON when the
// caller asks for it, otherwise re-renders the admin page with the outcome.
func (h *Handlers) AdminPush(ctx rweb.Context) error {
	if h.deps.Client == nil {
		return writeError(ctx, http.StatusNotFound, "this node is not a sync client")
	}

	res, err := h.deps.Client.PushToServer(requestContext())
	if err != nil {
		status, msg := pushFailure(err)
		if wantsJSON(ctx) {
			return writeError(ctx, status, msg)
		}
		return h.renderAdmin(ctx, status, comps.Flash{Message: msg, IsError: true})
	}

	if wantsJSON(ctx) {
		return writeSuccess(ctx, http.StatusOK, res)
	}
	msg := fmt.Sprintf("Push complete: sent %d changes, received %d.",
		res.Sent.Total(), res.Received.Total())
	return h.renderAdmin(ctx, http.StatusOK, comps.Flash{Message: msg})
}

// AdminBootstrap handles POST /admin/bootstrap
// Replaces the local library with the server's. The form must carry
// confirm=yes.
func (h *Handlers) AdminBootstrap(ctx rweb.Context) error {
	if h.deps.Client == nil {
		return writeError(ctx, http.StatusNotFound, "this node is not a sync client")
	}

	form, err := url.ParseQuery(string(ctx.Request().Body()))
	if err != nil || form.Get("confirm") != "yes" {
		msg := "bootstrap must be confirmed with confirm=yes"
		if wantsJSON(ctx) {
			return writeError(ctx, http.StatusBadRequest, msg)
		}
		return h.renderAdmin(ctx, http.StatusBadRequest, comps.Flash{Message: msg, IsError: true})
	}

	res, err := h.deps.Client.BootstrapFromServer(requestContext())
	if err != nil {
		status, msg := pushFailure(err)
		if wantsJSON(ctx) {
			return writeError(ctx, status, msg)
		}
		return h.renderAdmin(ctx, status, comps.Flash{Message: msg, IsError: true})
	}

	if wantsJSON(ctx) {
		return writeSuccess(ctx, http.StatusOK, res)
	}
	msg := "Bootstrap complete."
	switch {
	case res.FileError != "":
		msg = "Bootstrap complete; attachments were not reconciled: " + res.FileError
	case len(res.MissingFiles) > 0:
		msg = fmt.Sprintf("Bootstrap complete; %d file(s) could not be fetched.", len(res.MissingFiles))
	}
	failed := res.FileError != "" || len(res.MissingFiles) > 0
	return h.renderAdmin(ctx, http.StatusOK, comps.Flash{Message: msg, IsError: failed})
}

// pushFailure maps a client-side sync error onto a status and message.
func pushFailure(err error) (int, string) {
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict, "a sync is already running"
	case errors.Is(err, syncer.ErrNoSyncHistory):
		return http.StatusConflict, "no sync history: bootstrap from the server first"
	}
	logger.LogErr(err, "admin sync action failed")
	return http.StatusBadGateway, err.Error()
}

func (h *Handlers) renderAdmin(ctx rweb.Context, status int, flash comps.Flash) error {
	page := pages.NewAdmin(h.deps.Mode)
	page.Flash = flash

	resp, err := h.status()
	if err != nil {
		logger.LogErr(err, "failed to compute status for admin page")
		page.Flash = comps.Flash{Message: "failed to read store status", IsError: true}
		status = http.StatusInternalServerError
	} else {
		page.Store = resp.Store
		page.History = resp.History
		page.Client = resp.Client
	}

	ctx.SetStatus(status)
	return ctx.WriteHTML(page.Render())
}

package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"litman/filestore"
	"litman/models"
	"litman/syncer"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// ============================================================================
// Replication endpoints
//
// Payloads are msgpack (see syncer.EncodeDiff / EncodeSnapshot); errors are
// reported with the usual JSON envelope.
// ============================================================================

// Sync handles POST /sync
// Merges a client's diff set and answers with the server's diff set since
// the client's low-water mark.
func (h *Handlers) Sync(ctx rweb.Context) error {
	if h.deps.Merger == nil {
		return writeError(ctx, http.StatusNotFound, "this node does not accept sync requests")
	}

	body := ctx.Request().Body()
	if len(body) == 0 {
		return writeError(ctx, http.StatusBadRequest, "empty sync payload")
	}

	out, err := h.deps.Merger.MergeFromClient(requestContext(), body)
	if err != nil {
		return writeError(ctx, statusForSyncError(err), err.Error())
	}

	ctx.Response().SetHeader("Content-Type", syncer.ContentType)
	return ctx.Bytes(out)
}

// Dump handles GET /dump
// Returns a full snapshot of the library for bootstrapping a client.
func (h *Handlers) Dump(ctx rweb.Context) error {
	if h.deps.Merger == nil {
		return writeError(ctx, http.StatusNotFound, "this node does not serve dumps")
	}

	out, err := h.deps.Merger.Dump(requestContext())
	if err != nil {
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	}

	ctx.Response().SetHeader("Content-Type", syncer.ContentType)
	return ctx.Bytes(out)
}

// File handles GET /file/:id
// Streams an attachment blob. The file record must exist and its blob must
// be present in storage.
func (h *Handlers) File(ctx rweb.Context) error {
	if h.deps.Files == nil {
		return writeError(ctx, http.StatusNotFound, "file storage is not configured")
	}
	id := ctx.Request().Param("id")

	record, err := h.deps.Store.GetFile(requestContext(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return writeError(ctx, http.StatusNotFound, "file not found")
		}
		return writeError(ctx, http.StatusBadRequest, "invalid file id")
	}

	rc, _, err := h.deps.Files.Open(record.ID)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return writeError(ctx, http.StatusNotFound, "file content not in storage")
		}
		logger.LogErr(err, "failed to open stored file", "file_id", id)
		return writeError(ctx, http.StatusInternalServerError, "failed to read file")
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		logger.LogErr(err, "failed to read stored file", "file_id", id)
		return writeError(ctx, http.StatusInternalServerError, "failed to read file")
	}

	ctx.Response().SetHeader("Content-Type", "application/octet-stream")
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(record.Path)})
	ctx.Response().SetHeader("Content-Disposition", disposition)
	return ctx.Bytes(content)
}

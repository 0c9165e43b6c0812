package web

import (
	"litman/web/api"

	"github.com/rohanthewiz/rweb"
)

// setupRoutes registers the routes the node's role calls for. Replication
// endpoints exist only on server nodes and the admin sync actions only on
// client nodes.
func setupRoutes(s *rweb.Server, h *api.Handlers) {
	deps := h.Deps()

	s.Get("/", h.AdminPage)
	s.Get("/admin", h.AdminPage)

	if deps.Merger != nil {
		s.Post("/sync", h.Sync)
		s.Get("/dump", h.Dump)
		s.Get("/file/:id", h.File)
	}

	if deps.Client != nil {
		s.Post("/admin/push", h.AdminPush)
		s.Post("/admin/bootstrap", h.AdminBootstrap)
	}

	s.Get("/api/v1/health", h.Health)
	s.Get("/api/v1/status", h.Status)
	s.Post("/api/v1/auth/token", h.IssueToken)
}

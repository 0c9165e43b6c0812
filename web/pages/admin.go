// Package pages renders the node's admin UI.
package pages

import (
	"litman/models"
	"litman/syncer"
	"litman/web/pages/comps"
	"litman/web/pages/shared"

	"github.com/rohanthewiz/element"
)

// Admin is the single admin page: store summary, sync history and, on
// client nodes, the push and bootstrap controls.
type Admin struct {
	shared.Page
	Store   *models.StoreStatus
	History []models.SyncLogEntry
	// Client is nil on server nodes.
	Client *syncer.ClientStatus
	Flash  comps.Flash
}

// NewAdmin returns an Admin page titled for mode.
func NewAdmin(mode string) Admin {
	return Admin{Page: shared.Page{Title: "litman admin", Mode: mode}}
}

func (a Admin) Render() (out string) {
	b := element.NewBuilder()

	b.Html("lang", "en").R(
		a.Head(b),
		b.Body().R(
			element.RenderComponents(b, a.Banner()),
			b.DivClass("container").R(
				element.RenderComponents(b,
					a.Flash,
					comps.Heading{Title: "Library"},
					comps.StoreSummary{Status: a.Store},
					comps.Heading{Title: "Sync history"},
					comps.SyncHistory{Entries: a.History},
				),
				b.Wrap(func() {
					if a.Client != nil {
						element.RenderComponents(b,
							comps.Heading{Title: "Sync client"},
							comps.ClientPanel{Status: *a.Client},
						)
					}
				}),
			),
			element.RenderComponents(b, a.Footer()),
		),
	)

	return b.String()
}

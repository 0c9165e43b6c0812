package comps

import (
	"litman/models"

	"github.com/rohanthewiz/element"
)

// SyncHistory lists recent sync-log entries, newest first.
type SyncHistory struct {
	Entries []models.SyncLogEntry
}

func (h SyncHistory) Render(b *element.Builder) (x any) {
	if len(h.Entries) == 0 {
		b.P("class", "empty").T("No syncs recorded yet.")
		return
	}

	b.Ul("class", "history").R(
		element.ForEach(h.Entries, func(e models.SyncLogEntry) {
			at := e.SyncedAt
			b.Li().R(
				b.SpanClass("history-seq").F("#%d", e.Seq),
				b.SpanClass("history-kind kind-"+e.Kind).T(e.Kind),
				b.SpanClass("history-time").T(FormatTime(&at)),
			)
		}),
	)
	return
}

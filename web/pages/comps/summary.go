package comps

import (
	"sort"
	"time"

	"litman/models"

	"github.com/rohanthewiz/element"
)

// StoreSummary lists table and link counts, the checksum and the pending
// change count.
type StoreSummary struct {
	Status *models.StoreStatus
}

func (s StoreSummary) Render(b *element.Builder) (x any) {
	if s.Status == nil {
		b.P().T("Store status unavailable.")
		return
	}
	st := s.Status

	b.DivClass("summary").R(
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Checksum"),
			b.SpanClass("checksum").T(st.Checksum),
		),
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Last sync"),
			b.Span().T(FormatTime(st.LastSync)),
		),
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Pending changes"),
			b.Span().F("%d", st.PendingChanges),
		),
		b.DivClass("counts").R(
			b.H3().T("Tables"),
			renderCounts(b, st.Counts),
			b.H3().T("Links"),
			renderCounts(b, st.LinkCounts),
		),
	)
	return
}

func renderCounts(b *element.Builder, counts map[string]int) any {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	b.Ul("class", "count-list").R(
		element.ForEach(names, func(name string) {
			b.Li().R(
				b.SpanClass("count-name").T(name),
				b.SpanClass("count-value").F("%d", counts[name]),
			)
		}),
	)
	return nil
}

// FormatTime renders an optional timestamp for display.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05.000000 MST")
}

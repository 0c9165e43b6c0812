package comps

import (
	"html"

	"litman/syncer"

	"github.com/rohanthewiz/element"
)

// ClientPanel shows the sync client's state and the push and bootstrap
// actions. It is only rendered on client nodes.
type ClientPanel struct {
	Status syncer.ClientStatus
}

func (c ClientPanel) Render(b *element.Builder) (x any) {
	st := c.Status

	b.DivClass("client").R(
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Server"),
			b.Span().T(html.EscapeString(st.ServerURL)),
		),
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Stage"),
			b.Span().T(st.Stage),
		),
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Last attempt"),
			b.Span().T(FormatTime(st.LastAttempt)),
		),
		b.DivClass("summary-row").R(
			b.LabelClass("summary-label").T("Last success"),
			b.Span().T(FormatTime(st.LastSuccess)),
		),
		b.Wrap(func() {
			if st.LastError != "" {
				b.DivClass("summary-row error").R(
					b.LabelClass("summary-label").T("Last error"),
					b.Span().T(html.EscapeString(st.LastError)),
				)
			}
		}),

		b.DivClass("actions").R(
			b.Form("method", "post", "action", "/admin/push", "class", "action-form").R(
				b.Button("type", "submit", "class", "btn btn-primary").T("Push now"),
			),
			b.Form("method", "post", "action", "/admin/bootstrap", "class", "action-form").R(
				b.Input("type", "hidden", "name", "confirm", "value", "yes"),
				b.Button("type", "submit", "class", "btn btn-danger",
					"onclick", "return confirm('Replace the local library with the server copy?')").
					T("Bootstrap from server"),
			),
			b.Small().T("Bootstrapping discards every local change that has not been pushed."),
		),
	)
	return
}

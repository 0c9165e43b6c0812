package shared

import "github.com/rohanthewiz/element"

// Banner is the page header.
type Banner struct {
	Title string
	Mode  string
}

func (b Banner) Render(builder *element.Builder) any {
	builder.Header("class", "banner").R(
		builder.H1().T(b.Title),
		builder.Wrap(func() {
			if b.Mode != "" {
				builder.SpanClass("mode-badge mode-" + b.Mode).T(b.Mode + " node")
			}
		}),
	)
	return nil
}

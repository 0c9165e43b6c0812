package comps

import (
	"html"

	"github.com/rohanthewiz/element"
)

// Flash reports the outcome of the last admin action.
type Flash struct {
	Message string
	IsError bool
}

func (f Flash) Render(b *element.Builder) (x any) {
	if f.Message == "" {
		return
	}
	class := "flash flash-ok"
	if f.IsError {
		class = "flash flash-error"
	}
	b.DivClass(class, "role", "status").T(html.EscapeString(f.Message))
	return
}

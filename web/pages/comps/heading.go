package comps

import "github.com/rohanthewiz/element"

// Heading titles one section of a page.
type Heading struct {
	Title string
}

func (h Heading) Render(b *element.Builder) (x any) {
	b.H2Class("section-heading").T(h.Title)
	return
}

// Package shared holds the page chrome used by every admin page.
package shared

import "github.com/rohanthewiz/element"

// Page is embedded by full pages. It supplies the document head and the
// banner and footer components.
type Page struct {
	Title string
	// Mode is the node's role, shown in the banner.
	Mode string
}

func (p Page) Banner() Banner {
	return Banner{Title: p.Title, Mode: p.Mode}
}

func (p Page) Footer() Footer {
	return Footer{}
}

// Head renders the <head> element.
func (p Page) Head(b *element.Builder) any {
	return b.Head().R(
		b.Meta("charset", "UTF-8"),
		b.Meta("name", "viewport", "content", "width=device-width, initial-scale=1.0"),
		b.Title().T(p.Title),
		b.Link("rel", "icon", "href", "/favicon.ico"),
		b.Link("rel", "stylesheet", "href", "/static/css/admin.css"),
	)
}

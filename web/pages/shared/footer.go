package shared

import "github.com/rohanthewiz/element"

type Footer struct{}

func (f Footer) Render(b *element.Builder) any {
	b.Div("class", "footer").R(
		b.P().T("litman &middot; library replication"),
	)
	return nil
}

package web

import (
	"net/http"
	"strings"

	"github.com/rohanthewiz/rweb"
)

const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 500 500"><rect width="500" height="500" rx="40" fill="#4a6b8a"/><rect x="90" y="110" width="60" height="280" rx="8" fill="white" fill-opacity=".9"/><rect x="170" y="140" width="50" height="250" rx="8" fill="white" fill-opacity=".75"/><rect x="240" y="120" width="55" height="270" rx="8" fill="white" fill-opacity=".85"/><rect x="300" y="150" width="60" height="250" rx="8" fill="white" fill-opacity=".7" transform="rotate(-12 330 275)"/></svg>`

const adminCSS = `
body { margin: 0; font-family: system-ui, sans-serif; background: #f4f5f7; color: #222; }
.banner { background: #2c3e50; color: white; padding: 16px 24px; display: flex; align-items: center; gap: 16px; }
.banner h1 { margin: 0; font-size: 1.4rem; }
.mode-badge { background: #4a6b8a; border-radius: 4px; padding: 2px 8px; font-size: .85rem; }
.container { max-width: 880px; margin: 0 auto; padding: 16px 24px; }
.section-heading { border-bottom: 1px solid #ccd; padding-bottom: 4px; margin-top: 28px; }
.summary-row { display: flex; gap: 12px; padding: 4px 0; }
.summary-label { min-width: 140px; color: #556; }
.summary-row.error span { color: #a02020; }
.checksum { font-family: monospace; font-size: .85rem; word-break: break-all; }
.count-list, .history { list-style: none; padding: 0; margin: 0; }
.count-list li, .history li { display: flex; gap: 12px; padding: 2px 0; }
.count-name { min-width: 200px; }
.count-value { font-family: monospace; }
.history-seq { min-width: 48px; color: #778; }
.history-kind { min-width: 90px; }
.history-time { font-family: monospace; }
.flash { padding: 10px 14px; border-radius: 4px; margin-top: 12px; }
.flash-ok { background: #e3f3e6; border: 1px solid #9cc9a6; }
.flash-error { background: #f8e1e1; border: 1px solid #d99; }
.actions { display: flex; flex-wrap: wrap; align-items: center; gap: 12px; margin-top: 16px; }
.action-form { margin: 0; }
.btn { border: none; border-radius: 4px; padding: 8px 14px; cursor: pointer; color: white; }
.btn-primary { background: #2f6fb0; }
.btn-danger { background: #b03a2f; }
.empty { color: #778; }
.footer { margin-top: 40px; padding: 8px 24px; background: #e4e6ea; color: #667; font-size: .85rem; }
`

type staticAsset struct {
	contentType string
	body        []byte
}

var staticAssets = map[string]staticAsset{
	"css/admin.css": {contentType: "text/css; charset=utf-8", body: []byte(adminCSS)},
}

// SetupStaticFiles registers the favicon and the admin stylesheet.
func SetupStaticFiles(s *rweb.Server) {
	s.Get("/favicon.ico", func(c rweb.Context) error {
		c.Response().SetHeader("Content-Type", "image/svg+xml")
		c.Response().SetHeader("Cache-Control", "public, max-age=86400")
		return c.Bytes([]byte(faviconSVG))
	})

	s.Get("/static/*", func(c rweb.Context) error {
		path := strings.TrimPrefix(c.Request().Path(), "/static/")

		asset, ok := staticAssets[path]
		if !ok {
			c.SetStatus(http.StatusNotFound)
			return nil
		}

		c.Response().SetHeader("Content-Type", asset.contentType)
		c.Response().SetHeader("Cache-Control", "public, max-age=3600")
		return c.Bytes(asset.body)
	})
}

// Package web provides the embedded static assets of the web UI.
package web

import "embed"

// StaticFS contains the embedded UI (HTML, CSS, JS).
//
//go:embed all:static
var StaticFS embed.FS

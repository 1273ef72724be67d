// Package assets embeds the viewer static files.
// Run cmd/minify to regenerate index.html from the template sources.
package assets

import _ "embed"

//go:embed index.html
var Index []byte

//go:embed favicon.ico
var Favicon []byte

package static

import "embed"

//go:embed app.css
var FS embed.FS

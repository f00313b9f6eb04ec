//go:build !debug

package ui

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFS embed.FS

// StaticFS returns the embedded dashboard assets (production: baked into binary).
func StaticFS() fs.FS {
	return staticFS
}

//go:build debug

package ui

import (
	"io/fs"
	"os"
)

// StaticFS returns a live filesystem rooted at ui/ (debug: reads from disk).
// Stylesheet edits are visible on refresh without recompiling Go.
func StaticFS() fs.FS {
	return os.DirFS("ui")
}

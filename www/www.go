// Package www embeds the default templates and public assets.
// Both can be replaced at runtime with the templatedir and publicdir
// config keys.
package www

import (
	"embed"
	"io/fs"
)

//go:embed all:templates public
var files embed.FS

// Templates holds the page templates, with shared blocks under _partials/.
func Templates() fs.FS {
	sub, err := fs.Sub(files, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Public holds the static assets served as-is.
func Public() fs.FS {
	sub, err := fs.Sub(files, "public")
	if err != nil {
		panic(err)
	}
	return sub
}

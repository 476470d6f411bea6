// Package groundstation embeds the operator dashboard served at /.
package groundstation

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// StaticFiles is the dashboard rooted at the static directory.
var StaticFiles = mustSub(staticFiles, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// StaticHandler serves the embedded dashboard.
func StaticHandler() http.Handler {
	return http.FileServer(http.FS(StaticFiles))
}

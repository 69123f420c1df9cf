package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:templates all:static all:migrations
var content embed.FS

func TemplateFS() fs.FS {
	return content
}

// MigrationsFS is read by golang-migrate from its "migrations" directory.
func MigrationsFS() fs.FS {
	return content
}

// StaticHandler serves /static/ from the embedded static directory only.
func StaticHandler() http.Handler {
	static, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(static)))
}

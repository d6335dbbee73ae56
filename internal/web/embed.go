// Package web embeds the browser client so the server ships as one binary.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// FS returns the embedded client with dist/ as root.
func FS() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes serves the client for every path the API routes did
// not claim. Unknown non-API paths fall back to index.html.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := FS()
	if err != nil {
		return err
	}
	index, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	e.GET("/*", func(c echo.Context) error {
		p := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(p, "/api/") {
			return echo.ErrNotFound
		}

		name := strings.TrimPrefix(p, "/")
		if name == "" || name == "." || name == "index.html" {
			return c.HTMLBlob(http.StatusOK, index)
		}
		if stat, err := fs.Stat(staticFS, name); err != nil || stat.IsDir() {
			return c.HTMLBlob(http.StatusOK, index)
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})
	return nil
}

// HasEmbeddedFiles reports whether a client build was embedded.
func HasEmbeddedFiles() bool {
	_, err := fs.Stat(staticFiles, "dist/index.html")
	return err == nil
}

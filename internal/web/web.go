// Package web serves the browser chat UI and renders advice markdown
// to HTML for it.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/yuin/goldmark"
)

//go:embed static/*
var staticFiles embed.FS

// Handler returns an http.Handler that serves the chat UI. Mount at
// "/".
func Handler() http.Handler {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "" {
			r.URL.Path = "/index.html"
		}
		fileServer.ServeHTTP(w, r)
	})
}

// RenderMarkdown converts advice markdown to an HTML fragment for the
// chat transcript. On conversion failure the raw text is wrapped in a
// pre block so the farmer still sees the advice.
func RenderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return fmt.Sprintf("<pre>%s</pre>", md)
	}
	return buf.String()
}

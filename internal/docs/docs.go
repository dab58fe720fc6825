// Package docs serves the OpenAPI description of the admin and webhook API
// together with a Swagger UI page that renders it.
package docs

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
)

var (
	//go:embed swagger.html
	swaggerHTML []byte

	//go:embed openapi.yaml
	openAPISpec []byte
)

// Routes returns the docs router: the UI at "/" and the raw document at
// "/openapi.yaml".
func Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", serve("text/html; charset=utf-8", swaggerHTML))
	r.Get("/openapi.yaml", serve("application/yaml", openAPISpec))
	return r
}

func serve(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(body)
	}
}

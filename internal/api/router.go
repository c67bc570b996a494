package api

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/middleware"
	"github.com/adresse-nationale/ban/internal/repository"
)

// NewRouter builds the full HTTP surface: collection and item routes for
// every resource type, version history routes, nested collections, and the
// optional import and export endpoints.
func NewRouter(repos repository.Repositories, allowedOrigins []string, importHandler, exportHandler http.Handler) http.Handler {
	renderer := NewRenderer(repos)
	mux := http.NewServeMux()

	for _, rt := range domain.Resources() {
		h := newResourceHandler(rt, repos, renderer)
		base := "/" + rt.Name

		mux.HandleFunc("GET "+base, h.list)
		mux.HandleFunc("POST "+base, h.create)
		mux.HandleFunc("GET "+base+"/{ref}", h.get)
		mux.HandleFunc("PUT "+base+"/{ref}", h.replace)
		mux.HandleFunc("POST "+base+"/{ref}", h.patch)
		mux.HandleFunc("DELETE "+base+"/{ref}", h.delete)
		mux.HandleFunc("GET "+base+"/{ref}/versions", h.listVersions)
		mux.HandleFunc("GET "+base+"/{ref}/versions/{version}", h.getVersion)

		for _, nc := range rt.Nested {
			mux.HandleFunc("GET "+base+"/{ref}/"+nc.Route, h.nested(nc))
		}
	}

	if importHandler != nil {
		mux.Handle("POST /import", importHandler)
	}
	if exportHandler != nil {
		mux.Handle("GET /export/{resource}", exportHandler)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(middleware.LoggingMiddleware(mux))
}

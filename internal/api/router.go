package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/raido/internal/engine"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/records"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(eng *engine.Engine, log *records.Store, idx *index.DB, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(eng, log, idx)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tracked state.
	r.Get("/items", h.ListItems)
	r.Post("/document", h.SetDocument)
	r.Post("/refresh", h.Refresh)
	r.Get("/reveal", h.Reveal)

	// Transfer triggers.
	r.Post("/uploads", h.Upload)
	r.Post("/uploads/all", h.UploadAll)
	r.Post("/downloads", h.Download)
	r.Post("/downloads/all", h.DownloadAll)

	// Transfer history.
	r.Get("/records", h.ListRecords)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/domneedham/galactic-unicorn-go/internal/panel"
)

// buildRouter mounts the JSON API, the preview socket and the panel page.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID, s.accessLog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
		})
	})

	if s.hub != nil {
		r.Get("/ws", s.handleWebSocket)
	}

	r.Handle("/*", panel.Handler(s.panelDir))

	return r
}

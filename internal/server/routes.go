// Package server wires the HTTP handlers into a chi router.
package server

import "github.com/go-chi/chi/v5"

// SetupRoutes configures and returns the application router: health check,
// WebSocket endpoint, and login.
func SetupRoutes(h *Hub, cipher *Cipher) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(h))
	r.Get("/ws", NewWebSocketHandler(h))
	r.Post("/login", NewLoginHandler(h.Gate(), cipher))
	return r
}

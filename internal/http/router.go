// Package http exposes the sync service to dashboard consumers over REST
// and WebSocket.
package http

import (
	"net/http"

	"meeting-sync-service/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, s *Server) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/meetings", s.handleListMeetings)
		r.Post("/meetings", s.handleStartMeeting)
		r.Route("/meetings/{platform}/{nativeID}", func(r chi.Router) {
			r.Delete("/", s.handleStopMeeting)
			r.Get("/transcript", s.handleGetTranscript)
			r.Put("/config", s.handleUpdateConfig)
		})
		r.Get("/ws", s.hub.ServeWS)
	})

	return r
}

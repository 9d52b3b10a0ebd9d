// Package http exposes the call API, the browser audio and events websockets, and health probes.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"call-assist-service/internal/app"
	"call-assist-service/internal/observability/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browser clients are served from a different origin in development
	},
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, hub *Hub) http.Handler {
	h := &handlers{
		calls:  application.Calls,
		hub:    hub,
		logger: logging.WithComponent("http"),
	}

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
	r.Route("/v1/calls", func(r chi.Router) {
		r.Post("/", h.startCall)
		r.Route("/{callID}", func(r chi.Router) {
			r.Get("/", h.getCall)
			r.Post("/retry", h.retryCall)
			r.Post("/stop", h.stopCall)
			r.Post("/mute", h.muteCall)
			r.Get("/transcript.txt", h.transcript)
			r.Get("/report.pdf", h.reportPDF)
			r.Get("/audio", h.audio)
			r.Get("/events", h.events)
		})
	})

	return r
}

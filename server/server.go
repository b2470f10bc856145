// Package server exposes playground sessions to the browser UI over HTTP:
// one JSON route per session operation and a websocket stream of session
// events.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/weslplay/observability"
	"github.com/hazyhaar/weslplay/session"
	"github.com/hazyhaar/weslplay/shield"
)

// Config holds the server collaborators.
type Config struct {
	Sessions *session.Manager
	// ShareStore, when set, is mounted under /share.
	ShareStore http.Handler
	Metrics    *observability.Metrics // optional
	// AllowedOrigins are the UI origins granted cross-origin API and
	// websocket access.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server routes playground API calls to sessions.
type Server struct {
	sessions *session.Manager
	logger   *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	headers := shield.DefaultHeaders()
	headers.AllowedOrigins = cfg.AllowedOrigins
	s := &Server{
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
		upgrader: newUpgrader(headers),
	}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(cfg.Logger, headers) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	if cfg.ShareStore != nil {
		r.Mount("/share", cfg.ShareStore)
	}

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/", s.handleView)
			r.Delete("/", s.handleClose)

			r.Put("/files", s.handleSetFiles)
			r.Post("/files", s.handleNewFile)
			r.Put("/files/{i}/source", s.handleSetSource)
			r.Patch("/files/{i}", s.handleRename)
			r.Delete("/files/{i}", s.handleDeleteFile)

			r.Patch("/options", s.handlePatchOptions)
			r.Put("/backend", s.handleSetBackend)
			r.Put("/tab", s.handleSetTab)
			r.Put("/autorun", s.handleSetAutorun)

			r.Post("/run", s.handleRun)
			r.Post("/reset", s.handleReset)
			r.Post("/share", s.handleShare)
			r.Post("/load", s.handleLoad)
			r.Post("/navigate", s.handleNavigate)
			r.Post("/back", s.handleBack)
			r.Post("/forward", s.handleForward)
			r.Get("/history", s.handleHistory)
			r.Get("/events", s.handleEvents)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

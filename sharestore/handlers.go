package sharestore

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/weslplay/schema"
)

// Handler returns the store routes. The caller strips the mount prefix:
//
//	r.Mount("/share", store.Handler())
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handleSave)
	r.Get("/", s.handleRecent)
	r.Get("/{handle}", s.handleFetch)
	return r
}

// RegisterMux registers the store routes on a standard ServeMux.
func (s *Store) RegisterMux(mux *http.ServeMux, basePath string) {
	bp := strings.TrimRight(basePath, "/")
	mux.HandleFunc("POST "+bp, s.handleSave)
	mux.HandleFunc("GET "+bp+"/{handle}", func(w http.ResponseWriter, r *http.Request) {
		s.serveFetch(w, r, r.PathValue("handle"))
	})
}

func (s *Store) handleSave(w http.ResponseWriter, r *http.Request) {
	// Form encoding inflates the payload; leave room for it.
	r.Body = http.MaxBytesReader(w, r.Body, 4*s.maxBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	data := r.PostForm.Get("data")
	if data == "" {
		http.Error(w, "data is required", http.StatusBadRequest)
		return
	}

	handle, err := s.Save(r.Context(), []byte(data))
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "sharestore: save failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(handle))
}

func (s *Store) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.serveFetch(w, r, chi.URLParam(r, "handle"))
}

func (s *Store) serveFetch(w http.ResponseWriter, r *http.Request, handle string) {
	data, err := s.Fetch(r.Context(), handle)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "snapshot not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "sharestore: fetch failed", "handle", handle, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}

func (s *Store) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	stats, err := s.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []Stat{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

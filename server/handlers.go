package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/weslplay/horosafe"
	"github.com/hazyhaar/weslplay/kit"
	"github.com/hazyhaar/weslplay/schema"
	"github.com/hazyhaar/weslplay/session"
	"github.com/hazyhaar/weslplay/share"
	"github.com/hazyhaar/weslplay/sharestore"
)

type sessionKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := s.sessions.Get(id)
		switch {
		case errors.Is(err, session.ErrUnknownSession), errors.Is(err, horosafe.ErrInvalidIdentifier):
			jsonErr(w, "session not found", http.StatusNotFound)
			return
		case err != nil:
			kit.Logger(r.Context()).Error("server: open session", "session", id, "error", err)
			jsonErr(w, "internal error", http.StatusInternalServerError)
			return
		}
		ctx := kit.WithSessionID(r.Context(), id)
		ctx = kit.WithLogger(ctx, kit.Logger(ctx).With("session", id))
		ctx = context.WithValue(ctx, sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(sessionKey{}).(*session.Session)
}

// decodeBody decodes a JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeUntyped decodes a JSON body for the schema validators.
func decodeUntyped(w http.ResponseWriter, r *http.Request) (any, bool) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return nil, false
	}
	v, err := schema.Decode(raw)
	if err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return v, true
}

func fileIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil || i < 0 {
		jsonErr(w, "invalid file index", http.StatusBadRequest)
		return 0, false
	}
	return i, true
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).View())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.URL.Query())
	if err != nil {
		kit.Logger(r.Context()).Error("server: create session", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sess.ID(), "state": sess.View()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) { s.view(w, r) }

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.sessions.Close(sessionFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFiles(w http.ResponseWriter, r *http.Request) {
	v, ok := decodeUntyped(w, r)
	if !ok {
		return
	}
	files, err := schema.ValidateFiles(v)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	sessionFrom(r).SetFiles(files)
	s.view(w, r)
}

func (s *Server) handleNewFile(w http.ResponseWriter, r *http.Request) {
	i := sessionFrom(r).NewFile()
	writeJSON(w, http.StatusCreated, map[string]int{"index": i})
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	i, ok := fileIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		Source string `json:"source"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sessionFrom(r).SetFileSource(i, req.Source); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	i, ok := fileIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name, err := sessionFrom(r).RenameFile(i, req.Name)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	i, ok := fileIndex(w, r)
	if !ok {
		return
	}
	if err := sessionFrom(r).DeleteFile(i); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.view(w, r)
}

func (s *Server) handlePatchOptions(w http.ResponseWriter, r *http.Request) {
	v, ok := decodeUntyped(w, r)
	if !ok {
		return
	}
	patch, err := schema.ValidatePartialOptions(v)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	sessionFrom(r).PatchOptions(patch)
	s.view(w, r)
}

func (s *Server) handleSetBackend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend any `json:"backend"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := schema.ValidateBackend(req.Backend)
	if err == nil {
		err = sessionFrom(r).SetBackend(b)
	}
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.view(w, r)
}

func (s *Server) handleSetTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tab int `json:"tab"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sessionFrom(r).SetTab(req.Tab); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAutorun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Autorun bool `json:"autorun"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sessionFrom(r).SetAutorun(req.Autorun)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Run()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Reset()
	s.view(w, r)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	handle, link, err := sessionFrom(r).Share(r.Context())
	if err != nil {
		s.shareErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"handle": handle, "url": link})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sessionFrom(r).Load(r.Context(), req.Handle); err != nil {
		s.shareErr(w, r, err)
		return
	}
	s.view(w, r)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string          `json:"path"`
		State    json.RawMessage `json:"state"`
		Popstate bool            `json:"popstate"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var state any
	if len(req.State) > 0 {
		v, err := schema.Decode(req.State)
		if err != nil {
			jsonErr(w, "invalid history state", http.StatusBadRequest)
			return
		}
		state = v
	}
	if err := sessionFrom(r).Navigate(r.Context(), req.Path, state, req.Popstate); err != nil {
		s.shareErr(w, r, err)
		return
	}
	s.view(w, r)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, sessionFrom(r).Back)
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, sessionFrom(r).Forward)
}

func (s *Server) step(w http.ResponseWriter, r *http.Request, move func(context.Context) (bool, error)) {
	ok, err := move(r.Context())
	if err != nil {
		s.shareErr(w, r, err)
		return
	}
	if !ok {
		jsonErr(w, "no history entry", http.StatusConflict)
		return
	}
	s.view(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, pos := sessionFrom(r).History()
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "index": pos})
}

// shareErr maps snapshot store failures: a missing snapshot is 404, a
// malformed handle or snapshot is 400, an unreachable store is 502.
func (s *Server) shareErr(w http.ResponseWriter, r *http.Request, err error) {
	kit.Logger(r.Context()).Warn("server: share operation failed", "error", err)
	var se *share.ShareError
	var ve *schema.ValidationError
	switch {
	case errors.Is(err, sharestore.ErrNotFound),
		errors.As(err, &se) && se.Status == http.StatusNotFound:
		jsonErr(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &ve), errors.Is(err, share.ErrMalformedHandle):
		jsonErr(w, err.Error(), http.StatusBadRequest)
	default:
		jsonErr(w, err.Error(), http.StatusBadGateway)
	}
}

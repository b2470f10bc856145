// Package share publishes and restores project snapshots.
//
// A snapshot is stored remotely through a Client and addressed by an opaque
// hex handle, reachable at /s/<handle>. History entries carry the snapshot
// inline so that back and forward between shared locations restore state
// without a fetch; inline payloads are validated like fetched ones.
//
// A loaded snapshot is a starting point, not a binding: the first change to
// files, options or backend after a load clears the shared marker and pushes
// the root location.
//
// Service is not safe for concurrent use. The network halves of Save and
// Load (Publish and Fetch) are, so a caller serializing access to the
// project state can run them outside its lock.
package share

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hazyhaar/weslplay/project"
	"github.com/hazyhaar/weslplay/schema"
)

// Service ties a project state to a snapshot store and a history.
type Service struct {
	state   *project.State
	client  Client
	history *History
	logger  *slog.Logger

	handle   string
	unwatch  func()
	onMarker func(handle string)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHistory uses h instead of a fresh history.
func WithHistory(h *History) Option {
	return func(s *Service) { s.history = h }
}

// OnMarkerChange registers fn, called with the new handle ("" when cleared)
// every time the shared marker changes.
func OnMarkerChange(fn func(handle string)) Option {
	return func(s *Service) { s.onMarker = fn }
}

// New returns a Service over state.
func New(state *project.State, client Client, opts ...Option) *Service {
	s := &Service{state: state, client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.history == nil {
		s.history = NewHistory()
	}
	return s
}

// History returns the navigation history.
func (s *Service) History() *History { return s.history }

// Shared returns the handle of the snapshot being viewed, if any.
func (s *Service) Shared() (string, bool) { return s.handle, s.handle != "" }

// Save publishes the current state, pushes its location and marks it as
// shared.
func (s *Service) Save(ctx context.Context) (string, error) {
	snap := s.state.Snapshot()
	handle, err := s.Publish(ctx, snap)
	if err != nil {
		return "", err
	}
	s.Record(handle, snap)
	return handle, nil
}

// Publish stores snap remotely and returns its handle.
func (s *Service) Publish(ctx context.Context, snap schema.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", &ShareError{Op: "save", Cause: err}
	}
	handle, err := s.client.Save(ctx, data)
	if err != nil {
		s.logger.WarnContext(ctx, "share: save failed", "error", err)
		return "", err
	}
	s.logger.InfoContext(ctx, "share: saved", "handle", handle, "bytes", len(data))
	return handle, nil
}

// Record pushes the location of a published snapshot and marks it shared.
func (s *Service) Record(handle string, snap schema.Snapshot) {
	s.history.Push(Entry{Path: PathFor(handle), State: snap.Clone()})
	s.mark(handle)
}

// Load fetches the snapshot for handle and overwrites the state with it.
func (s *Service) Load(ctx context.Context, handle string) (schema.Snapshot, error) {
	snap, err := s.Fetch(ctx, handle)
	if err != nil {
		return schema.Snapshot{}, err
	}
	s.Apply(handle, snap)
	return snap, nil
}

// Fetch retrieves and validates the snapshot for handle.
func (s *Service) Fetch(ctx context.Context, handle string) (schema.Snapshot, error) {
	if !ValidHandle(handle) {
		return schema.Snapshot{}, &ShareError{Op: "load", Handle: handle, Cause: ErrMalformedHandle}
	}
	data, err := s.client.Fetch(ctx, handle)
	if err != nil {
		s.logger.WarnContext(ctx, "share: load failed", "handle", handle, "error", err)
		return schema.Snapshot{}, err
	}
	snap, err := schema.ParseSnapshot(data)
	if err != nil {
		s.logger.WarnContext(ctx, "share: invalid snapshot", "handle", handle, "error", err)
		return schema.Snapshot{}, &ShareError{Op: "load", Handle: handle, Cause: err}
	}
	return snap, nil
}

// Apply overwrites the state with a validated snapshot and marks handle as
// shared. The snapshot is stored inline in the history entry of the handle's
// location, which is pushed unless it is already the current one.
func (s *Service) Apply(handle string, snap schema.Snapshot) {
	s.disarm()
	s.state.Load(snap)
	if path := PathFor(handle); s.history.Current().Path != path {
		s.history.Push(Entry{Path: path, State: snap.Clone()})
	} else {
		s.history.Replace(snap.Clone())
	}
	s.mark(handle)
}

// Navigate follows a deep link. A /s/<hex> path pushes an entry holding the
// handle, for the caller to Load; any other path pushes the root and
// clears the marker. It reports whether a fetch is needed.
func (s *Service) Navigate(path string) (handle string, fetch bool) {
	if h, ok := HandleFromPath(path); ok {
		s.history.Push(Entry{Path: path, State: h})
		return h, true
	}
	s.history.Push(Entry{Path: path})
	s.Clear()
	return "", false
}

// PopState applies a history entry reached by back or forward. A handle
// string is returned for the caller to fetch; nil clears the marker; an
// inline snapshot is validated and applied, and an invalid one clears the
// marker.
func (s *Service) PopState(e Entry) (handle string, fetch bool) {
	switch st := e.State.(type) {
	case nil:
		s.Clear()
		return "", false
	case string:
		return st, true
	default:
		v, err := schema.Untyped(st)
		if err == nil {
			var snap schema.Snapshot
			if snap, err = schema.ValidateSnapshot(v); err == nil {
				h, _ := HandleFromPath(e.Path)
				s.disarm()
				s.state.Load(snap)
				s.mark(h)
				return "", false
			}
		}
		s.logger.Warn("share: invalid history state", "path", e.Path, "error", err)
		s.Clear()
		return "", false
	}
}

// Back moves back in history and applies the entry. fetch reports a handle
// the caller has to Load.
func (s *Service) Back() (handle string, fetch, ok bool) {
	e, ok := s.history.Back()
	if !ok {
		return "", false, false
	}
	handle, fetch = s.PopState(e)
	return handle, fetch, true
}

// Forward is Back in the other direction.
func (s *Service) Forward() (handle string, fetch, ok bool) {
	e, ok := s.history.Forward()
	if !ok {
		return "", false, false
	}
	handle, fetch = s.PopState(e)
	return handle, fetch, true
}

// Clear drops the shared marker without touching the state.
func (s *Service) Clear() {
	s.disarm()
	s.setHandle("")
}

// mark sets the shared marker and arms the one-shot observer that clears it
// on the next tracked mutation.
func (s *Service) mark(handle string) {
	s.disarm()
	s.setHandle(handle)
	if handle == "" {
		return
	}
	s.unwatch = s.state.OnceChanged(s.unshare, project.Tracked...)
}

func (s *Service) unshare() {
	s.unwatch = nil
	if s.handle == "" {
		return
	}
	s.logger.Debug("share: state changed, leaving shared snapshot", "handle", s.handle)
	s.setHandle("")
	s.history.Push(Entry{Path: RootPath})
}

func (s *Service) disarm() {
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
}

func (s *Service) setHandle(h string) {
	if h == s.handle {
		return
	}
	s.handle = h
	if s.onMarker != nil {
		s.onMarker(h)
	}
}

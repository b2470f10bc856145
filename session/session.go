// Package session runs one playground session: the project state with its
// persistent store, the share service and the compile orchestrator, plus
// the output, message and diagnostics the UI displays.
//
// Every mutation goes through a Session method, which serializes access to
// the project state. Network calls to the snapshot store run outside the
// session lock; their results are applied when they return, even if the
// state changed in the meantime.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/compile"
	"github.com/hazyhaar/weslplay/localstore"
	"github.com/hazyhaar/weslplay/observability"
	"github.com/hazyhaar/weslplay/project"
	"github.com/hazyhaar/weslplay/schema"
	"github.com/hazyhaar/weslplay/share"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Router   *backend.Router
	Adapters map[schema.Backend]backend.Adapter
	Share    share.Client
	// PublicURL prefixes share locations in messages ("https://play.example").
	PublicURL    string
	StoreVersion string
	Compile      compile.Options
	Metrics      *observability.Metrics // optional
	Logger       *slog.Logger
}

// View is the full state of a session as the UI sees it.
type View struct {
	ID          string               `json:"id"`
	Files       schema.Files         `json:"files"`
	Options     schema.Options       `json:"options"`
	Backend     schema.Backend       `json:"backend"`
	Manglers    []schema.Mangler     `json:"manglers"`
	Tab         int                  `json:"tab"`
	Autorun     bool                 `json:"autorun"`
	Output      string               `json:"output"`
	Message     string               `json:"message"`
	Diagnostics []backend.Diagnostic `json:"diagnostics"`
	OK          bool                 `json:"ok"`
	Shared      string               `json:"shared,omitempty"`
	Compile     string               `json:"compile"`
}

// Session is one playground session.
type Session struct {
	id     string
	deps   Deps
	logger *slog.Logger

	mu          sync.Mutex
	state       *project.State
	store       *localstore.Store
	share       *share.Service
	orch        *compile.Orchestrator
	output      string
	message     string
	diagnostics []backend.Diagnostic
	ok          bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	cancel context.CancelFunc
	stop   []func()
}

// Open starts a session whose persistent state lives in kv under the id
// namespace. params are the URL query parameters of the page load.
func Open(ctx context.Context, id string, kv localstore.KV, params url.Values, deps Deps) (*Session, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Router == nil {
		return nil, errors.New("session: router is required")
	}
	logger := deps.Logger.With("session", id)

	store, err := localstore.Open(ctx, kv, id, deps.StoreVersion, localstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("session: open store: %w", err)
	}
	if store.Migrated() && deps.Metrics != nil {
		deps.Metrics.StoreMigrated()
	}

	s := &Session{
		id:      id,
		deps:    deps,
		logger:  logger,
		store:   store,
		message: DefaultMessage,
		subs:    make(map[int]chan Event),
	}
	s.state = project.New(params, project.WithStore(store), project.WithLogger(logger))
	s.share = share.New(s.state, deps.Share,
		share.WithLogger(logger),
		share.OnMarkerChange(s.markerChanged))

	copts := deps.Compile
	copts.Logger = logger
	copts.Autorun = s.state.Autorun()
	copts.OnResult = s.deliver
	copts.OnDiscard = func(out compile.Outcome) {
		if deps.Metrics != nil {
			deps.Metrics.ObserveCompile(string(out.Input.Snapshot.Backend), "discarded", out.Duration)
		}
	}
	s.orch = compile.New(s.snapshot, s.invoke, copts)

	s.stop = append(s.stop,
		s.state.Observe(s.orch.Touch, project.Tracked...),
		s.state.Observe(s.emitState, project.FieldFiles, project.FieldOptions,
			project.FieldBackend, project.FieldTab, project.FieldAutorun),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.orch.Run(runCtx)
	if deps.Metrics != nil {
		deps.Metrics.SessionOpened()
	}
	logger.Info("session: opened", "migrated", store.Migrated(), "backend", s.state.Backend())
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Close stops the orchestrator and detaches every observer.
func (s *Session) Close() {
	s.mu.Lock()
	for _, stop := range s.stop {
		stop()
	}
	s.stop = nil
	s.state.Close()
	s.mu.Unlock()
	s.cancel()
	s.closeSubscribers()
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionClosed()
	}
	s.logger.Info("session: closed")
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	shared, _ := s.share.Shared()
	be := s.state.Backend()
	diags := append([]backend.Diagnostic{}, s.diagnostics...)
	return View{
		ID:          s.id,
		Files:       s.state.Files(),
		Options:     s.state.Options(),
		Backend:     be,
		Manglers:    backend.Manglers(be),
		Tab:         s.state.Tab(),
		Autorun:     s.state.Autorun(),
		Output:      s.output,
		Message:     s.message,
		Diagnostics: diags,
		OK:          s.ok,
		Shared:      shared,
		Compile:     s.orch.State().String(),
	}
}

// Diagnostics returns the diagnostics of the last result that point into
// file (a project file name or backend.OutputFile).
func (s *Session) Diagnostics(file string) []backend.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backend.Result{Diagnostics: s.diagnostics}.ForFile(file)
}

// Runs inside a mutator, with s.mu held.
func (s *Session) emitState() {
	v := s.viewLocked()
	s.emit(Event{Type: EventState, State: &v})
}

// Runs inside share.Service calls, with s.mu held.
func (s *Session) markerChanged(handle string) {
	h := handle
	s.emit(Event{Type: EventShared, Shared: &h})
}

func (s *Session) setMessageLocked(msg string) {
	s.message = msg
	s.emit(Event{Type: EventMessage, Message: msg})
}

func (s *Session) snapshot() schema.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

func (s *Session) invoke(ctx context.Context, in compile.Input) backend.Result {
	a, ok := s.deps.Adapters[in.Snapshot.Backend]
	if !ok {
		return backend.Failure(fmt.Sprintf("%s: no adapter", in.Snapshot.Backend), "", nil)
	}
	return backend.Invoke(ctx, s.deps.Router, a, in.Snapshot.Files, in.Snapshot.Options)
}

func (s *Session) deliver(out compile.Outcome) {
	res := out.Result
	if s.deps.Metrics != nil {
		outcome := "ok"
		if !res.OK {
			outcome = "failure"
		}
		s.deps.Metrics.ObserveCompile(string(out.Input.Snapshot.Backend), outcome, out.Duration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = res.Output
	s.ok = res.OK
	s.diagnostics = append([]backend.Diagnostic{}, res.Diagnostics...)
	s.message = textMessage(res.Message)
	s.emit(Event{Type: EventResult, Result: &res})
	s.emit(Event{Type: EventMessage, Message: s.message})
}

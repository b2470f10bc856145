package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/hazyhaar/weslplay/horosafe"
	"github.com/hazyhaar/weslplay/idgen"
	"github.com/hazyhaar/weslplay/localstore"
)

// DefaultMaxOpen bounds the sessions a Manager keeps open.
const DefaultMaxOpen = 256

// ErrUnknownSession is returned by Get for an id that has no stored state.
var ErrUnknownSession = errors.New("session: unknown session")

// Manager owns the open sessions of a server. A session that is not open
// is reopened from the persistent store on first access, the way a page
// reload finds its local storage again. Only ids created by a Manager have
// stored state, so Get never opens a session for an arbitrary id. At most
// maxOpen sessions stay open; opening another closes the least recently
// used one, whose state stays in the store.
type Manager struct {
	ctx     context.Context
	kv      localstore.KV
	deps    Deps
	newID   idgen.Generator
	maxOpen int

	mu       sync.Mutex
	sessions map[string]*openSession
	tick     uint64
}

type openSession struct {
	s    *Session
	used uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDGenerator sets the session id generator (default UUIDv7).
func WithIDGenerator(gen idgen.Generator) ManagerOption {
	return func(m *Manager) { m.newID = gen }
}

// WithMaxOpen sets how many sessions stay open (default DefaultMaxOpen).
func WithMaxOpen(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxOpen = n
		}
	}
}

// NewManager returns a Manager. Sessions run until Close or until ctx is
// done.
func NewManager(ctx context.Context, kv localstore.KV, deps Deps, opts ...ManagerOption) *Manager {
	m := &Manager{
		ctx:      ctx,
		kv:       kv,
		deps:     deps,
		newID:    idgen.Default,
		maxOpen:  DefaultMaxOpen,
		sessions: make(map[string]*openSession),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create opens a new session. params are the page's URL query parameters.
func (m *Manager) Create(params url.Values) (*Session, error) {
	id := m.newID()
	s, err := Open(m.ctx, id, m.kv, params, m.deps)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	evicted := m.addLocked(id, s)
	m.mu.Unlock()
	closeAll(evicted)
	return s, nil
}

// Get returns the session id, reopening it from the store if needed.
func (m *Manager) Get(id string) (*Session, error) {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	m.mu.Lock()
	s, evicted, err := m.getLocked(id)
	m.mu.Unlock()
	closeAll(evicted)
	return s, err
}

func (m *Manager) getLocked(id string) (*Session, []*Session, error) {
	if o, ok := m.sessions[id]; ok {
		m.tick++
		o.used = m.tick
		return o.s, nil, nil
	}
	_, known, err := m.kv.Get(m.ctx, id, localstore.VersionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("session: lookup %s: %w", id, err)
	}
	if !known {
		return nil, nil, ErrUnknownSession
	}
	s, err := Open(m.ctx, id, m.kv, nil, m.deps)
	if err != nil {
		return nil, nil, err
	}
	return s, m.addLocked(id, s), nil
}

// addLocked registers s and returns the sessions evicted to make room.
func (m *Manager) addLocked(id string, s *Session) []*Session {
	var evicted []*Session
	for len(m.sessions) >= m.maxOpen {
		lru, oldest := "", uint64(0)
		for k, o := range m.sessions {
			if lru == "" || o.used < oldest {
				lru, oldest = k, o.used
			}
		}
		evicted = append(evicted, m.sessions[lru].s)
		delete(m.sessions, lru)
	}
	m.tick++
	m.sessions[id] = &openSession{s: s, used: m.tick}
	return evicted
}

func closeAll(sessions []*Session) {
	for _, s := range sessions {
		s.Close()
	}
}

// Close closes session id. Its stored state is kept.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	o, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		o.s.Close()
	}
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*openSession)
	m.mu.Unlock()
	for _, o := range open {
		o.s.Close()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

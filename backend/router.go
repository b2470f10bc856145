package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler is a transport-agnostic backend entry point: payload in, payload
// out. In-process backends and remote clients share this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote route. The returned close
// function, if any, runs when the route is replaced or removed.
type TransportFactory func(rt Route) (h Handler, close func(), err error)

// Route says how a service is reached. Strategy is "local", "noop" or the
// name of a registered transport such as "http".
type Route struct {
	Service  string        `yaml:"service" json:"service"`
	Strategy string        `yaml:"strategy" json:"strategy"`
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

func (rt Route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + rt.Timeout.String()
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// ErrDisabled is returned by Call for services routed to "noop".
var ErrDisabled = errors.New("backend: service disabled")

// ServiceNotFoundError is returned when a service has neither a route nor a
// local handler.
type ServiceNotFoundError struct {
	Service string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("backend: service not available: %s", e.Service)
}

// Router dispatches backend calls. Safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remote    map[string]remoteEntry
	routes    map[string]Route
	factories map[string]TransportFactory
	logger    *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter returns a Router with the "http" transport registered.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		routes:    make(map[string]Route),
		factories: map[string]TransportFactory{"http": HTTPTransport()},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for routes whose strategy is name.
func (r *Router) RegisterTransport(name string, f TransportFactory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Apply replaces the route table. Remote handlers whose route is unchanged
// are kept; the rest are rebuilt through their factory. A route whose
// factory is missing or fails is skipped and reported in the joined error,
// leaving the service on its local handler if any.
func (r *Router) Apply(routes []Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Route, len(routes))
	entries := make(map[string]remoteEntry, len(routes))
	kept := make(map[string]bool)
	var errs []error

	for _, rt := range routes {
		next[rt.Service] = rt
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routes[rt.Service]; ok && old.fingerprint() == rt.fingerprint() {
			if e, ok := r.remote[rt.Service]; ok {
				entries[rt.Service] = e
				kept[rt.Service] = true
				continue
			}
		}
		factory, ok := r.factories[rt.Strategy]
		if !ok {
			errs = append(errs, fmt.Errorf("backend: no transport %q for service %s", rt.Strategy, rt.Service))
			continue
		}
		h, closeFn, err := factory(rt)
		if err != nil {
			errs = append(errs, fmt.Errorf("backend: transport %q for service %s: %w", rt.Strategy, rt.Service, err))
			continue
		}
		entries[rt.Service] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("backend: route built", "service", rt.Service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remote {
		if kept[name] {
			continue
		}
		if old.close != nil {
			old.close()
		}
	}

	r.routes = next
	r.remote = entries
	return errors.Join(errs...)
}

// Call dispatches payload to service: a noop route fails with ErrDisabled, a
// remote route wins over a local handler, and a service with neither fails
// with *ServiceNotFoundError. A panicking handler is reported as an error.
func (r *Router) Call(ctx context.Context, service string, payload []byte) (resp []byte, err error) {
	r.mu.RLock()
	rt, hasRoute := r.routes[service]
	entry, hasRemote := r.remote[service]
	local := r.local[service]
	r.mu.RUnlock()

	var h Handler
	switch {
	case hasRoute && rt.Strategy == "noop":
		return nil, ErrDisabled
	case hasRemote:
		r.logger.DebugContext(ctx, "backend: routing remote", "service", service, "endpoint", rt.Endpoint)
		h = entry.handler
	case local != nil:
		r.logger.DebugContext(ctx, "backend: routing local", "service", service)
		h = local
	default:
		return nil, &ServiceNotFoundError{Service: service}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "backend: handler panic", "service", service, "panic", p)
			resp, err = nil, fmt.Errorf("backend: %s panicked: %v", service, p)
		}
	}()
	return h(ctx, payload)
}

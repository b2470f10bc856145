// Package localstore is the versioned key/value store that keeps a session's
// files, options and backend across restarts.
//
// All keys of a namespace share one schema version tag stored under
// VersionKey. When the stored tag differs from the version the code expects,
// every key of the namespace is discarded before the first read, so values
// written with an older shape are never parsed as current. A single key that
// fails validation is discarded on its own and the caller's default is used.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/weslplay/schema"
)

// VersionKey holds the schema version tag of a namespace.
const VersionKey = "version"

// ErrClosed is returned by drivers after Close.
var ErrClosed = errors.New("localstore: closed")

// KV is a raw namespaced byte store. Implementations: SQLite and bbolt.
type KV interface {
	Get(ctx context.Context, ns, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, ns, key string, value []byte) error
	Delete(ctx context.Context, ns, key string) error
	// Clear removes every key of ns.
	Clear(ctx context.Context, ns string) error
	Close() error
}

// Store is a typed, versioned view on one namespace of a KV.
type Store struct {
	kv       KV
	ns       string
	version  string
	logger   *slog.Logger
	migrated bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for fire-and-forget write failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open binds a Store to namespace ns and runs the version check: on mismatch
// the namespace is cleared and the new version recorded.
func Open(ctx context.Context, kv KV, ns, version string, opts ...Option) (*Store, error) {
	s := &Store{kv: kv, ns: ns, version: version, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	raw, ok, err := kv.Get(ctx, ns, VersionKey)
	if err != nil {
		return nil, fmt.Errorf("localstore: read version: %w", err)
	}
	var stored string
	if ok {
		if err := json.Unmarshal(raw, &stored); err != nil {
			stored = ""
		}
	}
	if stored != version {
		if err := kv.Clear(ctx, ns); err != nil {
			return nil, fmt.Errorf("localstore: clear stale namespace: %w", err)
		}
		data, _ := json.Marshal(version)
		if err := kv.Put(ctx, ns, VersionKey, data); err != nil {
			return nil, fmt.Errorf("localstore: write version: %w", err)
		}
		s.migrated = ok
		s.logger.Info("localstore: namespace reset", "namespace", ns, "stored_version", stored, "version", version)
	}
	return s, nil
}

// Version returns the schema version the store was opened with.
func (s *Store) Version() string { return s.version }

// Migrated reports whether Open discarded data written under another version.
func (s *Store) Migrated() bool { return s.migrated }

// Namespace returns the namespace the store is bound to.
func (s *Store) Namespace() string { return s.ns }

// Validator gates an untyped JSON value into T.
type Validator[T any] func(v any) (T, error)

// Get returns the value stored under key, or def when the key is absent,
// unreadable or rejected by validate. A rejected value is deleted. A nil
// validate decodes the stored JSON straight into T.
func Get[T any](s *Store, key string, def T, validate Validator[T]) T {
	ctx := context.Background()
	raw, ok, err := s.kv.Get(ctx, s.ns, key)
	if err != nil {
		s.logger.Warn("localstore: read failed", "namespace", s.ns, "key", key, "error", err)
		return def
	}
	if !ok {
		return def
	}

	val, err := decode(raw, validate)
	if err != nil {
		s.logger.Warn("localstore: discarding invalid value", "namespace", s.ns, "key", key, "error", err)
		if err := s.kv.Delete(ctx, s.ns, key); err != nil {
			s.logger.Warn("localstore: delete failed", "namespace", s.ns, "key", key, "error", err)
		}
		return def
	}
	return val
}

func decode[T any](raw []byte, validate Validator[T]) (T, error) {
	var zero T
	if validate == nil {
		var val T
		if err := json.Unmarshal(raw, &val); err != nil {
			return zero, &schema.ValidationError{Path: "$", Reason: "malformed JSON", Cause: err}
		}
		return val, nil
	}
	v, err := schema.Decode(raw)
	if err != nil {
		return zero, err
	}
	return validate(v)
}

// Put JSON-encodes value under key. It is fire-and-forget: failures are
// logged, never returned, and the last write wins.
func (s *Store) Put(key string, value any) {
	if key == VersionKey {
		s.logger.Error("localstore: refusing to overwrite version tag", "namespace", s.ns)
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("localstore: encode failed", "namespace", s.ns, "key", key, "error", err)
		return
	}
	if err := s.kv.Put(context.Background(), s.ns, key, data); err != nil {
		s.logger.Error("localstore: write failed", "namespace", s.ns, "key", key, "error", err)
	}
}

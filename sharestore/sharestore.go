// Package sharestore is the snapshot store behind share links. Snapshots are
// validated, stored in SQLite under a content-derived hex handle and served
// back verbatim.
//
// It exposes a chi [Store.Handler] and a standard [Store.RegisterMux]:
//
//	POST /          form field "data" = snapshot JSON  ->  handle (text/plain)
//	GET  /{handle}                                      ->  snapshot JSON
//
// Store also satisfies share.Client for in-process use.
package sharestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/weslplay/dbopen"
	"github.com/hazyhaar/weslplay/horosafe"
	"github.com/hazyhaar/weslplay/idgen"
	"github.com/hazyhaar/weslplay/schema"
)

// ErrNotFound is returned for an unknown handle.
var ErrNotFound = errors.New("sharestore: snapshot not found")

// DefaultMaxBytes caps a stored snapshot.
const DefaultMaxBytes = 1 << 20

// Schema is the DDL of the snapshot table.
const Schema = `
CREATE TABLE IF NOT EXISTS shared_snapshots (
    handle     TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    read_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_shared_created ON shared_snapshots(created_at DESC)
`

// Config holds the settings of a Store.
type Config struct {
	DB       *sql.DB
	MaxBytes int64        // 0 = DefaultMaxBytes
	Logger   *slog.Logger // nil = slog.Default()
	// OnSave and OnLoad, when set, observe every stored and served snapshot.
	OnSave func(handle string, size int)
	OnLoad func(handle string, found bool)
}

// Store persists shared snapshots.
type Store struct {
	db       *sql.DB
	maxBytes int64
	logger   *slog.Logger
	onSave   func(string, int)
	onLoad   func(string, bool)
}

// New applies the schema and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("sharestore: DB is required")
	}
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := cfg.DB.Exec(stmt); err != nil {
			return nil, fmt.Errorf("sharestore: schema: %w", err)
		}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		db:       cfg.DB,
		maxBytes: cfg.MaxBytes,
		logger:   cfg.Logger,
		onSave:   cfg.OnSave,
		onLoad:   cfg.OnLoad,
	}, nil
}

// Save validates data as a snapshot and stores it. Saving the same bytes
// twice returns the same handle.
func (s *Store) Save(ctx context.Context, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", &schema.ValidationError{Path: "$", Reason: fmt.Sprintf("snapshot exceeds %d bytes", s.maxBytes)}
	}
	if _, err := schema.ParseSnapshot(data); err != nil {
		return "", err
	}
	handle := idgen.Handle(data)
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO shared_snapshots (handle, data, created_at) VALUES (?, ?, ?)`,
			handle, data, time.Now().Unix())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sharestore: save: %w", err)
	}
	s.logger.InfoContext(ctx, "sharestore: saved", "handle", handle, "bytes", len(data))
	if s.onSave != nil {
		s.onSave(handle, len(data))
	}
	return handle, nil
}

// Fetch returns the snapshot stored under handle, or ErrNotFound.
func (s *Store) Fetch(ctx context.Context, handle string) ([]byte, error) {
	if !horosafe.IsHex(handle) {
		s.observeLoad(handle, false)
		return nil, ErrNotFound
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM shared_snapshots WHERE handle = ?`, handle).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		s.observeLoad(handle, false)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sharestore: fetch %s: %w", handle, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE shared_snapshots SET read_count = read_count + 1 WHERE handle = ?`, handle); err != nil {
		s.logger.WarnContext(ctx, "sharestore: read count update failed", "handle", handle, "error", err)
	}
	s.observeLoad(handle, true)
	return data, nil
}

func (s *Store) observeLoad(handle string, found bool) {
	if s.onLoad != nil {
		s.onLoad(handle, found)
	}
}

// Stat describes one stored snapshot.
type Stat struct {
	Handle    string `json:"handle"`
	Size      int    `json:"size"`
	CreatedAt int64  `json:"created_at"`
	ReadCount int64  `json:"read_count"`
}

// Recent lists the most recently created snapshots.
func (s *Store) Recent(ctx context.Context, limit int) ([]Stat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, length(data), created_at, read_count
		 FROM shared_snapshots ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sharestore: recent: %w", err)
	}
	defer rows.Close()
	var out []Stat
	for rows.Next() {
		var st Stat
		if err := rows.Scan(&st.Handle, &st.Size, &st.CreatedAt, &st.ReadCount); err != nil {
			return nil, fmt.Errorf("sharestore: recent: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/weslplay/dbopen"
)

// SQLiteSchema is the DDL for the SQLite driver. Pass it to dbopen.WithSchema
// or let NewSQLite apply it.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS local_storage (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      BLOB NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// SQLite is a KV over a local_storage table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite applies the schema and returns a driver over db. The caller keeps
// ownership of db; Close is a no-op.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(SQLiteSchema); err != nil {
		return nil, fmt.Errorf("localstore/sqlite: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_storage WHERE namespace = ? AND key = ?`, ns, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore/sqlite: get %s/%s: %w", ns, key, err)
	}
	return value, true, nil
}

func (s *SQLite) Put(ctx context.Context, ns, key string, value []byte) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO local_storage (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			ns, key, value, time.Now().UnixMilli())
		return err
	})
}

func (s *SQLite) Delete(ctx context.Context, ns, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM local_storage WHERE namespace = ? AND key = ?`, ns, key)
	if err != nil {
		return fmt.Errorf("localstore/sqlite: delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context, ns string) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM local_storage WHERE namespace = ?`, ns)
		return err
	})
}

func (s *SQLite) Close() error { return nil }

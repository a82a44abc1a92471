package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	key        TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoint_locks (
	key        TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);`

// SQLiteStore keeps checkpoints in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the driver serializes on the connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, key string, token *pagination.ResumeToken) error {
	operationsTotal.WithLabelValues("sqlite", "save").Inc()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (key, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*pagination.ResumeToken, error) {
	operationsTotal.WithLabelValues("sqlite", "load").Inc()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM checkpoints WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	var token pagination.ResumeToken
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", key, err)
	}
	return &token, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	operationsTotal.WithLabelValues("sqlite", "delete").Inc()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	return nil
}

// Lock implements Store. Expired locks are taken over.
func (s *SQLiteStore) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	operationsTotal.WithLabelValues("sqlite", "lock").Inc()

	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	owner := uuid.NewString()
	now := time.Now()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoint_locks (key, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		 WHERE checkpoint_locks.expires_at <= ?`,
		key, owner, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("lock checkpoint %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("lock checkpoint %s: %w", key, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	return func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM checkpoint_locks WHERE key = ? AND owner = ?`, key, owner)
		if err != nil {
			return fmt.Errorf("unlock checkpoint %s: %w", key, err)
		}
		return nil
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

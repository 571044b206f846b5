// Package sqlite keeps slots in a single-table SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/lscache/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS lscache_slots (
	slot       TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

type Config struct {
	// Path of the database file, or ":memory:".
	Path        string
	BusyTimeout time.Duration // 0 => 5s
	MaxBytes    int           // per-slot value limit; 0 = unlimited
}

type Store struct {
	db       *sql.DB
	maxBytes int
}

var _ storage.Storage = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite storage: path is required")
	}

	path := cfg.Path
	if path != ":memory:" {
		path = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite storage: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: open: %w", err)
	}
	if path == ":memory:" {
		// each connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}
	s, err := NewWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened database. It applies the same pragmas as
// Open (WAL, busy_timeout, synchronous) and creates the schema if missing.
// cfg.Path is ignored. The caller keeps ownership of db until Close.
func NewWithDB(db *sql.DB, cfg Config) (*Store, error) {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("sqlite storage: %s: %w", firstLine(p), err)
		}
	}
	return &Store{db: db, maxBytes: cfg.MaxBytes}, nil
}

func (s *Store) Get(ctx context.Context, slot string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM lscache_slots WHERE slot = ?`, slot).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, slot string, value []byte) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", storage.ErrQuotaExceeded, len(value), s.maxBytes)
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lscache_slots (slot, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		slot, value, time.Now().UTC().UnixMilli())
	return mapErr(err)
}

func (s *Store) Del(ctx context.Context, slot string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lscache_slots WHERE slot = ?`, slot)
	return mapErr(err)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrConnDone), strings.Contains(err.Error(), "database is closed"):
		return fmt.Errorf("%w: %v", storage.ErrClosed, err)
	case strings.Contains(err.Error(), "database or disk is full"):
		return fmt.Errorf("%w: %v", storage.ErrQuotaExceeded, err)
	default:
		return err
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

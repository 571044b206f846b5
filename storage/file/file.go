// Package file stores each slot as one file in a directory.
//
// Writes go to a temp file that is renamed over the slot file, so readers
// only ever see a complete snapshot. A per-slot flock serializes readers and
// writers across processes sharing the directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/unkn0wn-root/lscache/storage"
)

const (
	slotExt   = ".snap"
	lockExt   = ".lock"
	lockRetry = 10 * time.Millisecond
)

type Config struct {
	Dir      string
	MaxBytes int // per-slot value limit; 0 = unlimited
}

type Store struct {
	dir      string
	maxBytes int
	closed   atomic.Bool
}

var _ storage.Storage = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("file storage: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file storage: create dir: %w", err)
	}
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("file storage: abs path: %w", err)
	}
	return &Store{dir: abs, maxBytes: cfg.MaxBytes}, nil
}

func (s *Store) Get(ctx context.Context, slot string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, storage.ErrClosed
	}
	path, err := s.path(slot)
	if err != nil {
		return nil, false, err
	}
	var data []byte
	err = s.withLock(ctx, slot, true, func() error {
		var rerr error
		data, rerr = os.ReadFile(path)
		return rerr
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file storage: read %s: %w", slot, err)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, slot string, value []byte) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", storage.ErrQuotaExceeded, len(value), s.maxBytes)
	}
	path, err := s.path(slot)
	if err != nil {
		return err
	}
	return s.withLock(ctx, slot, false, func() error {
		return writeAtomic(path, value)
	})
}

func (s *Store) Del(ctx context.Context, slot string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	path, err := s.path(slot)
	if err != nil {
		return err
	}
	return s.withLock(ctx, slot, false, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("file storage: remove %s: %w", slot, err)
		}
		return nil
	})
}

func (s *Store) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

func (s *Store) path(slot string) (string, error) {
	if slot == "" || slot == "." || slot == ".." {
		return "", fmt.Errorf("file storage: invalid slot %q", slot)
	}
	return filepath.Join(s.dir, url.PathEscape(slot)+slotExt), nil
}

func (s *Store) withLock(ctx context.Context, slot string, shared bool, fn func() error) error {
	fl := flock.New(filepath.Join(s.dir, url.PathEscape(slot)+lockExt))
	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = fl.TryRLockContext(ctx, lockRetry)
	} else {
		ok, err = fl.TryLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("file storage: lock %s: %w", slot, err)
	}
	if !ok {
		return fmt.Errorf("file storage: lock %s: %w", slot, storage.ErrUnavailable)
	}
	defer fl.Unlock()
	return fn()
}

// writeAtomic writes to a temp file first and renames it into place.
// This prevents partial snapshot files from ever existing.
func writeAtomic(path string, value []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file storage: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	_, err = tmp.Write(value)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("file storage: write temp: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("file storage: close temp: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("file storage: rename: %w", err)
	}
	return nil
}

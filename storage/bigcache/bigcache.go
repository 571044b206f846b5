// Package bigcache is a process-lifetime slot store on allegro/bigcache.
// Snapshots outlive any one cache instance but not the process, which is
// what session-scoped hosts want.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/lscache/storage"
)

type Store struct {
	c      *bc.BigCache
	closed atomic.Bool
}

var _ storage.Storage = (*Store)(nil)

// slots hold a handful of snapshots, not millions of entries
const (
	defaultShards  = 16
	defaultEntries = 64
	forever        = 100 * 365 * 24 * time.Hour
)

type Config struct {
	LifeWindow         time.Duration // 0 => slots never expire
	CleanWindow        time.Duration // 0 => no background cleanup
	Shards             int           // power of two; 0 => 16
	MaxEntrySize       int           // initial allocation hint in bytes
	HardMaxCacheSizeMB int           // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		// bigcache evicts anything older than LifeWindow on the next write
		life = forever
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	conf.Shards = defaultShards
	conf.MaxEntriesInWindow = defaultEntries
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (p *Store) Get(_ context.Context, slot string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, storage.ErrClosed
	}
	b, err := p.c.Get(slot)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set fails only when the value cannot fit a shard, which is the store's
// capacity limit.
func (p *Store) Set(_ context.Context, slot string, value []byte) error {
	if p.closed.Load() {
		return storage.ErrClosed
	}
	if err := p.c.Set(slot, value); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuotaExceeded, err)
	}
	return nil
}

func (p *Store) Del(_ context.Context, slot string) error {
	if p.closed.Load() {
		return storage.ErrClosed
	}
	if err := p.c.Delete(slot); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Store) Close(_ context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.c.Close()
}

// Package ristretto is a bounded in-process slot store on dgraph-io/ristretto.
// MaxCost is the byte budget shared by all slots; a write ristretto refuses to
// admit is reported as storage.ErrQuotaExceeded.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/lscache/storage"
)

type Store struct {
	c      *rc.Cache
	closed atomic.Bool
}

var _ storage.Storage = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (p *Store) Get(_ context.Context, slot string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, storage.ErrClosed
	}
	v, ok := p.c.Get(slot)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(slot)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the write buffer to drain so the snapshot is visible to the
// next Get, which is what a flush followed by a reload expects.
func (p *Store) Set(_ context.Context, slot string, value []byte) error {
	if p.closed.Load() {
		return storage.ErrClosed
	}
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	if !p.c.Set(slot, append([]byte(nil), value...), cost) {
		return fmt.Errorf("%w: %d bytes rejected", storage.ErrQuotaExceeded, len(value))
	}
	p.c.Wait()
	if _, ok := p.c.Get(slot); !ok {
		// admitted into the buffer but evicted by the policy
		return fmt.Errorf("%w: %d bytes not admitted", storage.ErrQuotaExceeded, len(value))
	}
	return nil
}

func (p *Store) Del(_ context.Context, slot string) error {
	if p.closed.Load() {
		return storage.ErrClosed
	}
	p.c.Del(slot)
	p.c.Wait()
	return nil
}

func (p *Store) Close(_ context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto metrics if enabled (not part of storage.Storage).
func (p *Store) Metrics() *rc.Metrics { return p.c.Metrics }

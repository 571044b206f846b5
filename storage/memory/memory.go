// Package memory is an in-process Storage. Slots live as long as the Store
// value, which makes it the stand-in for durable storage in tests and for
// hosts that only need the cache to survive re-construction, not restarts.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/lscache/storage"
)

type Store struct {
	mu     sync.RWMutex
	m      map[string][]byte
	used   int
	quota  int
	closed bool

	// fault injection
	getErr error
	setErr error
	writes int
}

var _ storage.Storage = (*Store)(nil)

// New returns a store. quota bounds the summed size of all slot values in
// bytes; quota <= 0 means unlimited.
func New(quota int) *Store {
	return &Store{m: make(map[string][]byte), quota: quota}
}

func (s *Store) Get(_ context.Context, slot string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, storage.ErrClosed
	}
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.m[slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(_ context.Context, slot string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if s.setErr != nil {
		return s.setErr
	}
	used := s.used - len(s.m[slot]) + len(value)
	if s.quota > 0 && used > s.quota {
		return fmt.Errorf("%w: %d > %d bytes", storage.ErrQuotaExceeded, used, s.quota)
	}
	s.m[slot] = append([]byte(nil), value...)
	s.used = used
	s.writes++
	return nil
}

func (s *Store) Del(_ context.Context, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.used -= len(s.m[slot])
	delete(s.m, slot)
	return nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Put writes value directly, bypassing quota and injected faults.
// Used to seed or corrupt a slot.
func (s *Store) Put(slot string, value []byte) {
	s.mu.Lock()
	s.used += len(value) - len(s.m[slot])
	s.m[slot] = append([]byte(nil), value...)
	s.mu.Unlock()
}

// Raw returns a copy of the slot value as stored.
func (s *Store) Raw(slot string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[slot]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Writes counts successful Set calls.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FailGet makes every Get return err until called again with nil.
func (s *Store) FailGet(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

// FailSet makes every Set return err until called again with nil.
func (s *Store) FailSet(err error) {
	s.mu.Lock()
	s.setErr = err
	s.mu.Unlock()
}

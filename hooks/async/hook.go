// Package asynchook moves lscache hook calls off the caller's goroutine.
// Events are dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    EntrySkippedEvery: 10, // sample: ~every 10th skipped entry
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := lscache.New[User](lscache.Options[User]{
//	    Storage:   store,
//	    Codec:     codec.JSON[User]{},
//	    Lifecycle: lifecycle.NewSignals(ctx),
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/lscache"
)

type Hooks struct {
	inner   lscache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ lscache.Hooks = (*Hooks)(nil)

func New(inner lscache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Hooks must not be
// called after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) EntryDropped(k string, err error) { h.try(func() { h.inner.EntryDropped(k, err) }) }
func (h *Hooks) EntrySkipped(k string, err error) { h.try(func() { h.inner.EntrySkipped(k, err) }) }
func (h *Hooks) FlushFailed(s string, err error)  { h.try(func() { h.inner.FlushFailed(s, err) }) }
func (h *Hooks) SnapshotRestored(s string, n, d int) {
	h.try(func() { h.inner.SnapshotRestored(s, n, d) })
}
func (h *Hooks) SnapshotRejected(s, r string, err error) {
	h.try(func() { h.inner.SnapshotRejected(s, r, err) })
}
func (h *Hooks) Flushed(s string, w, sk, b int) {
	h.try(func() { h.inner.Flushed(s, w, sk, b) })
}

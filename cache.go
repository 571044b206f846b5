package lscache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/lscache/codec"
	"github.com/unkn0wn-root/lscache/internal/util"
	"github.com/unkn0wn-root/lscache/internal/wire"
	"github.com/unkn0wn-root/lscache/storage"
)

const defaultStorageTimeout = 5 * time.Second

const (
	stateActive int32 = iota
	stateTornDown
)

type entry[V any] struct {
	key string
	val V
}

type cache[V any] struct {
	slot         string
	store        storage.Storage
	codec        codec.Codec[V]
	log          Logger
	hooks        Hooks
	enabled      bool
	closeStorage bool

	debounce time.Duration
	interval time.Duration
	timeout  time.Duration

	// map state; order holds *entry[V] in insertion order
	mu        sync.RWMutex
	order     *list.List
	index     map[string]*list.Element
	mutations uint64

	// flushMu serializes flushes so snapshots reach storage in capture order
	flushMu   sync.Mutex
	flushedAt uint64 // mutations at the last written snapshot
	last      FlushResult

	state atomic.Int32
	load  LoadResult

	// background flushing
	timerMu   sync.Mutex
	timer     *time.Timer
	ticker    *time.Ticker
	stopCh    chan struct{}
	loopWg    sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (o *Options[V]) validate() error {
	if o.Codec == nil {
		return ErrNoCodec
	}
	if o.Storage == nil && !o.Disabled {
		return ErrNoStorage
	}
	return nil
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &cache[V]{
		store:        opts.Storage,
		codec:        opts.Codec,
		enabled:      !opts.Disabled,
		closeStorage: opts.CloseStorage,
		order:        list.New(),
		index:        make(map[string]*list.Element),
		debounce:     opts.FlushDebounce,
		interval:     opts.FlushInterval,
	}

	// defaults
	c.slot = coalesce[string](opts.Slot, DefaultSlot)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.timeout = coalesce[time.Duration](opts.StorageTimeout, defaultStorageTimeout)

	if !c.enabled {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	c.load = c.restore(ctx)
	cancel()

	if c.interval > 0 {
		c.ticker = time.NewTicker(c.interval)
		c.stopCh = make(chan struct{})
		c.loopWg.Add(1)
		go c.flushLoop()
	}
	if opts.Lifecycle != nil {
		opts.Lifecycle.OnTeardown(c.teardown)
	}
	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*entry[V]).val, true
}

func (c *cache[V]) Set(key string, v V) {
	c.mu.Lock()
	c.put(key, v)
	c.mutations++
	c.mu.Unlock()
	c.kick()
}

func (c *cache[V]) Delete(key string) {
	c.mu.Lock()
	el, ok := c.index[key]
	if ok {
		c.order.Remove(el)
		delete(c.index, key)
		c.mutations++
	}
	c.mu.Unlock()
	if ok {
		c.kick()
	}
}

func (c *cache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}

func (c *cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *cache[V]) LoadResult() LoadResult { return c.load }

func (c *cache[V]) LastFlush() FlushResult {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.last
}

func (c *cache[V]) Flush(ctx context.Context) FlushResult {
	if !c.enabled {
		return FlushResult{Status: FlushDisabled}
	}
	return c.flush(ctx, false, false)
}

func (c *cache[V]) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.stopBackground()
		if c.enabled {
			c.flush(ctx, true, false)
		}
		if c.closeStorage && c.store != nil {
			err = c.store.Close(ctx)
		}
	})
	return err
}

func (c *cache[V]) Discard() {
	c.stopBackground()
	c.flushMu.Lock()
	c.state.Store(stateTornDown)
	c.flushMu.Unlock()
}

// put must be called with mu held.
func (c *cache[V]) put(key string, v V) {
	if el, ok := c.index[key]; ok {
		// keep position, swap value
		el.Value = &entry[V]{key: key, val: v}
		return
	}
	c.index[key] = c.order.PushBack(&entry[V]{key: key, val: v})
}

// teardown is the lifecycle callback: final flush, then terminal.
func (c *cache[V]) teardown() {
	c.stopBackground()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.flush(ctx, true, false)
}

func (c *cache[V]) restore(ctx context.Context) LoadResult {
	raw, ok, err := c.store.Get(ctx, c.slot)
	if err != nil {
		c.log.Warn("snapshot read failed; starting empty", Fields{"slot": c.slot, "err": err})
		c.hooks.SnapshotRejected(c.slot, "unavailable", err)
		return LoadResult{Status: LoadUnavailable, Err: err}
	}
	if !ok {
		c.log.Debug("no snapshot; starting empty", Fields{"slot": c.slot})
		return LoadResult{Status: LoadEmpty}
	}

	items, err := wire.DecodeSnapshot(raw)
	if err != nil {
		c.log.Warn("corrupt snapshot; starting empty", Fields{"slot": c.slot, "bytes": len(raw), "err": err})
		c.hooks.SnapshotRejected(c.slot, "corrupt", err)
		return LoadResult{Status: LoadCorrupt, Err: err}
	}

	var dropped []string
	c.mu.Lock()
	for _, it := range items {
		v, err := c.decode(it.Payload)
		if err != nil {
			dropped = append(dropped, it.Key)
			c.hooks.EntryDropped(it.Key, err)
			c.log.Debug("snapshot entry dropped", Fields{"key": util.Redact(it.Key), "err": err})
			continue
		}
		c.put(it.Key, v)
	}
	n := c.order.Len()
	c.mu.Unlock()

	c.hooks.SnapshotRestored(c.slot, n, len(dropped))
	c.log.Debug("snapshot restored", Fields{"slot": c.slot, "entries": n, "dropped": len(dropped)})
	return LoadResult{Status: LoadRestored, Entries: n, Dropped: dropped}
}

// flush captures the map and writes it to the slot. final marks the teardown
// flush: after it, every flush reports FlushClosed. onlyDirty skips the write
// when nothing changed since the last written snapshot.
func (c *cache[V]) flush(ctx context.Context, final, onlyDirty bool) FlushResult {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	if c.state.Load() == stateTornDown {
		return FlushResult{Status: FlushClosed}
	}
	if final {
		c.state.Store(stateTornDown)
	}

	gen, entries := c.capture()
	if onlyDirty && gen == c.flushedAt {
		return c.last
	}

	items := make([]wire.Item, 0, len(entries))
	var skipped []*EntryError
	for _, e := range entries {
		payload, err := c.encode(e)
		if err != nil {
			skipped = append(skipped, &EntryError{Key: e.key, Err: err})
			c.hooks.EntrySkipped(e.key, err)
			c.log.Debug("entry skipped from snapshot", Fields{"key": util.Redact(e.key), "err": err})
			continue
		}
		items = append(items, wire.Item{Key: e.key, Payload: payload})
	}

	res := FlushResult{Skipped: keysOf(skipped)}

	// keys were validated per entry, so this cannot fail on input
	b, err := wire.EncodeSnapshot(items)
	if err == nil {
		err = c.store.Set(ctx, c.slot, b)
	}
	if err != nil {
		res.Status = FlushFailed
		res.Err = &FlushError{Slot: c.slot, Skipped: skipped, WriteErr: err}
		c.hooks.FlushFailed(c.slot, err)
		c.log.Warn("snapshot write failed", Fields{"slot": c.slot, "bytes": len(b), "err": err})
		c.last = res
		return res
	}

	c.flushedAt = gen
	res.Written = len(items)
	res.Bytes = len(b)
	res.Status = FlushWritten
	if len(skipped) > 0 {
		res.Status = FlushPartial
		res.Err = &FlushError{Slot: c.slot, Skipped: skipped}
	}
	c.hooks.Flushed(c.slot, res.Written, len(skipped), res.Bytes)
	c.log.Debug("snapshot written", Fields{
		"slot": c.slot, "entries": res.Written, "skipped": len(skipped), "bytes": res.Bytes, "final": final,
	})
	c.last = res
	return res
}

// capture copies the map under the read lock; encoding happens outside it.
func (c *cache[V]) capture() (uint64, []*entry[V]) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*entry[V], 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[V]))
	}
	return c.mutations, out
}

// encode turns one entry into a payload. A codec panic is an encode failure
// of that entry, not of the flush.
func (c *cache[V]) encode(e *entry[V]) (b []byte, err error) {
	if err := wire.ValidKey(e.key); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("codec panic: %v", r)
		}
	}()
	return c.codec.Encode(e.val)
}

func (c *cache[V]) decode(p []byte) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v, err = zero, fmt.Errorf("codec panic: %v", r)
		}
	}()
	return c.codec.Decode(p)
}

// kick (re)arms the debounce timer after a mutation.
func (c *cache[V]) kick() {
	if !c.enabled || c.debounce <= 0 || c.state.Load() == stateTornDown {
		return
	}
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.backgroundFlush)
		return
	}
	c.timer.Reset(c.debounce)
}

func (c *cache[V]) backgroundFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.flush(ctx, false, true)
}

func (c *cache[V]) flushLoop() {
	defer c.loopWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.backgroundFlush()
		case <-c.stopCh:
			return
		}
	}
}

func (c *cache[V]) stopBackground() {
	c.stopOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.ticker.Stop() // stop ticker before waiting
			c.loopWg.Wait()
		}
		c.timerMu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timerMu.Unlock()
	})
}

func keysOf(errs []*EntryError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Key
	}
	return out
}

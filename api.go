package lscache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/lscache/codec"
	lc "github.com/unkn0wn-root/lscache/lifecycle"
	st "github.com/unkn0wn-root/lscache/storage"
)

// DefaultSlot is the storage slot used when Options.Slot is empty.
const DefaultSlot = "app-cache"

// Map is the surface a data-fetching layer needs from its cache provider.
// Get/Set/Delete never fail and never block on storage.
type Map[V any] interface {
	Get(key string) (v V, ok bool)
	Set(key string, v V)
	Delete(key string)
	// Keys returns keys in insertion order. Re-setting a key keeps its position.
	Keys() []string
	Len() int
}

// Cache is a Map whose contents survive re-construction through a storage slot.
type Cache[V any] interface {
	Map[V]

	Enabled() bool

	// Flush writes the current contents to the slot now.
	// Failures are reported in the result, never panicked or logged-and-dropped.
	Flush(ctx context.Context) FlushResult

	// LoadResult reports how construction went: empty, restored, corrupt or unavailable.
	LoadResult() LoadResult

	// LastFlush returns the result of the most recent flush of any kind.
	LastFlush() FlushResult

	// Close stops background flushing and performs the teardown flush if the
	// lifecycle hook has not fired yet. The storage is closed only when
	// Options.CloseStorage is set.
	Close(ctx context.Context) error

	// Discard ends the cache without the teardown flush: the slot keeps
	// whatever it holds now. Later flushes, including the lifecycle one,
	// report FlushClosed. Close is still needed to release owned storage.
	Discard()
}

// Factory builds a fresh provider per call, one per owner lifetime (page load,
// request scope, process). It takes no arguments, matching what fetching
// layers expect of a cache provider.
type Factory[V any] func() Map[V]

// Options tune the behavior of the persistent cache.
// Only Storage and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required (Storage may be nil when Disabled)
	Storage st.Storage
	Codec   c.Codec[V]

	Slot      string  // storage slot holding the snapshot; "" => DefaultSlot
	Lifecycle lc.Hook // teardown source; nil => flush only on Close/Flush
	Logger    Logger  // if nil, NopLogger is used
	Hooks     Hooks   // if nil, NopHooks is used

	FlushDebounce  time.Duration // flush this long after the last mutation of a burst; 0 => off
	FlushInterval  time.Duration // flush periodically if anything changed; 0 => off
	StorageTimeout time.Duration // deadline for restore and background/teardown flushes; 0 => 5s

	Disabled     bool // memory only: never read or write storage
	CloseStorage bool // set true only if this cache exclusively owns Storage
}

func New[V any](opts Options[V]) (Cache[V], error) {
	cc, err := newCache[V](opts)
	if err != nil {
		return nil, err
	}
	return cc, nil
}

// NewFactory validates opts once and returns a Factory. Each call restores
// from the slot as it is at that moment. Maps are persisted and stopped by
// opts.Lifecycle, which is required unless opts.Disabled is set; every map
// built by the factory registers on it.
func NewFactory[V any](opts Options[V]) (Factory[V], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Lifecycle == nil && !opts.Disabled {
		return nil, ErrNoLifecycle
	}
	return func() Map[V] {
		cc, err := newCache[V](opts)
		if err != nil {
			// unreachable: opts were validated above
			panic(err)
		}
		return cc
	}, nil
}

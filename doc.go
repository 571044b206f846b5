// Package lscache implements a cache provider for data-fetching layers whose
// contents survive re-construction: an in-memory, insertion-ordered map that is
// restored from one storage slot when built and written back to that slot at
// teardown.
//
// Components:
//   - Storage: durable slot store (file, SQLite, Redis, BigCache, Ristretto, memory).
//   - Codec[V]: (de)serializes one entry V <-> []byte.
//   - lifecycle.Hook: tells the cache when its owner is going away.
//
// Snapshot:
//
//	one slot, one value: every (key, encoded entry) pair in insertion order,
//	framed and checksummed (see internal/wire)
//
// Persistence is best-effort. A missing, corrupt or unreadable slot starts the
// cache empty; an entry the codec cannot encode is left out of the snapshot;
// a failed write leaves the slot as it was. None of this reaches Get/Set/Delete.
// The outcomes are reported through LoadResult, FlushResult, Hooks and Logger.
//
// Checkpoints:
//
//	teardown          - lifecycle hook fires (at most once), or Close
//	FlushDebounce     - quiet period after a burst of mutations
//	FlushInterval     - periodic, only when something changed
//	Flush(ctx)        - explicit
//
// Usage:
//
//	unload := lifecycle.NewSignals(ctx)
//	cache, _ := lscache.New(lscache.Options[Response]{
//	    Storage:   store,
//	    Codec:     codec.JSON[Response]{},
//	    Lifecycle: unload,
//	})
//	defer cache.Close(ctx)
package lscache

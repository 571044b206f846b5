package lscache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/lscache/codec"
	"github.com/unkn0wn-root/lscache/internal/wire"
	"github.com/unkn0wn-root/lscache/lifecycle"
	st "github.com/unkn0wn-root/lscache/storage"
	"github.com/unkn0wn-root/lscache/storage/memory"
)

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T, store st.Storage, optsOpt func(*Options[user])) Cache[user] {
	t.Helper()
	opts := Options[user]{
		Storage: store,
		Codec:   c.JSON[user]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[user](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}

// ==============================
// Map semantics
// ==============================

func TestMapSemantics(t *testing.T) {
	cc := newTestCache(t, memory.New(0), nil)
	defer cc.Close(context.Background())

	if _, ok := cc.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	cc.Set("a", user{ID: "1", Name: "Ada"})
	cc.Set("b", user{ID: "2", Name: "Bob"})
	cc.Set("c", user{ID: "3", Name: "Cy"})
	cc.Set("a", user{ID: "1", Name: "Ada L."})

	if got := cc.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Keys after re-set: %v", got)
	}
	if got, ok := cc.Get("a"); !ok || got.Name != "Ada L." {
		t.Fatalf("Get a: ok=%v got=%+v", ok, got)
	}

	cc.Delete("b")
	cc.Delete("nope")
	if got := cc.Keys(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("Keys after delete: %v", got)
	}
	if cc.Len() != 2 {
		t.Fatalf("Len=%d want 2", cc.Len())
	}

	// re-adding a deleted key appends it
	cc.Set("b", user{ID: "2"})
	if got := cc.Keys(); !reflect.DeepEqual(got, []string{"a", "c", "b"}) {
		t.Fatalf("Keys after re-add: %v", got)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New[user](Options[user]{Codec: c.JSON[user]{}}); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("expected ErrNoStorage, got %v", err)
	}
	if _, err := New[user](Options[user]{Storage: memory.New(0)}); !errors.Is(err, ErrNoCodec) {
		t.Fatalf("expected ErrNoCodec, got %v", err)
	}
	if _, err := NewFactory[user](Options[user]{Codec: c.JSON[user]{}}); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("NewFactory: expected ErrNoStorage, got %v", err)
	}
}

// ==============================
// Restore / flush round trip
// ==============================

func TestRoundTripAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)

	first := newTestCache(t, store, nil)
	if lr := first.LoadResult(); lr.Status != LoadEmpty {
		t.Fatalf("fresh slot: status %v", lr.Status)
	}
	first.Set("a", user{ID: "1", Name: "Ada"})
	first.Set("b", user{ID: "2", Name: "Bob"})
	first.Set("c", user{ID: "3", Name: "Cy"})
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if lf := first.LastFlush(); lf.Status != FlushWritten || lf.Written != 3 {
		t.Fatalf("teardown flush: %+v", lf)
	}

	second := newTestCache(t, store, nil)
	defer second.Close(ctx)

	lr := second.LoadResult()
	if lr.Status != LoadRestored || lr.Entries != 3 || len(lr.Dropped) != 0 {
		t.Fatalf("LoadResult: %+v", lr)
	}
	if got := second.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("restored order: %v", got)
	}
	if got, ok := second.Get("b"); !ok || got != (user{ID: "2", Name: "Bob"}) {
		t.Fatalf("restored b: ok=%v got=%+v", ok, got)
	}
}

func TestCustomSlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)

	a := newTestCache(t, store, func(o *Options[user]) { o.Slot = "tenant-a" })
	a.Set("k", user{ID: "a"})
	_ = a.Close(ctx)

	b := newTestCache(t, store, func(o *Options[user]) { o.Slot = "tenant-b" })
	defer b.Close(ctx)
	if b.Len() != 0 {
		t.Fatalf("slot tenant-b should be empty, has %v", b.Keys())
	}
	if _, ok := store.Raw(DefaultSlot); ok {
		t.Fatal("default slot should be untouched")
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cc := newTestCache(t, store, nil)
	defer cc.Close(ctx)

	cc.Set("x", user{ID: "x"})
	cc.Set("y", user{ID: "y"})

	r1 := cc.Flush(ctx)
	b1, _ := store.Raw(DefaultSlot)
	r2 := cc.Flush(ctx)
	b2, _ := store.Raw(DefaultSlot)

	if !r1.OK() || !r2.OK() {
		t.Fatalf("flushes failed: %+v %+v", r1, r2)
	}
	if r1.Bytes != r2.Bytes || !bytes.Equal(b1, b2) {
		t.Fatal("repeated flush without mutation changed the snapshot")
	}
}

func TestEmptyMapFlushesEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	store.Put(DefaultSlot, mustSnapshot(t, wire.Item{Key: "old", Payload: []byte(`{"id":"o"}`)}))

	cc := newTestCache(t, store, nil)
	cc.Delete("old")
	if res := cc.Flush(ctx); res.Status != FlushWritten || res.Written != 0 {
		t.Fatalf("flush of empty map: %+v", res)
	}
	_ = cc.Close(ctx)

	again := newTestCache(t, store, nil)
	defer again.Close(ctx)
	if lr := again.LoadResult(); lr.Status != LoadRestored || lr.Entries != 0 {
		t.Fatalf("empty snapshot should restore as empty map: %+v", lr)
	}
}

// ==============================
// Degraded restore
// ==============================

func TestCorruptSlotStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	store.Put(DefaultSlot, []byte("definitely not a snapshot"))

	cc := newTestCache(t, store, nil)
	defer cc.Close(ctx)

	lr := cc.LoadResult()
	if lr.Status != LoadCorrupt || !errors.Is(lr.Err, ErrCorrupt) {
		t.Fatalf("LoadResult: %+v", lr)
	}
	if cc.Len() != 0 {
		t.Fatalf("corrupt slot must not populate the map, got %v", cc.Keys())
	}
	// the slot is left alone until the next flush overwrites it
	if raw, _ := store.Raw(DefaultSlot); string(raw) != "definitely not a snapshot" {
		t.Fatalf("corrupt slot was modified on load: %q", raw)
	}

	cc.Set("k", user{ID: "k"})
	if res := cc.Flush(ctx); !res.OK() {
		t.Fatalf("flush after corrupt load: %+v", res)
	}
	raw, _ := store.Raw(DefaultSlot)
	if _, err := wire.DecodeSnapshot(raw); err != nil {
		t.Fatalf("slot should hold a valid snapshot now: %v", err)
	}
}

func TestUnavailableStorageStartsEmpty(t *testing.T) {
	store := memory.New(0)
	store.Put(DefaultSlot, mustSnapshot(t, wire.Item{Key: "k", Payload: []byte(`{"id":"k"}`)}))
	store.FailGet(st.ErrUnavailable)

	cc := newTestCache(t, store, nil)
	defer cc.Close(context.Background())

	lr := cc.LoadResult()
	if lr.Status != LoadUnavailable || !errors.Is(lr.Err, st.ErrUnavailable) {
		t.Fatalf("LoadResult: %+v", lr)
	}
	if cc.Len() != 0 {
		t.Fatal("unavailable storage must start empty")
	}

	// the cache keeps working in memory
	cc.Set("a", user{ID: "a"})
	if _, ok := cc.Get("a"); !ok {
		t.Fatal("Set/Get must work when storage read failed")
	}
}

func TestUndecodableEntryIsDropped(t *testing.T) {
	store := memory.New(0)
	store.Put(DefaultSlot, mustSnapshot(t,
		wire.Item{Key: "good", Payload: []byte(`{"id":"1","name":"Ada"}`)},
		wire.Item{Key: "bad", Payload: []byte(`{"id":`)},
		wire.Item{Key: "also-good", Payload: []byte(`{"id":"2"}`)},
	))

	cc := newTestCache(t, store, nil)
	defer cc.Close(context.Background())

	lr := cc.LoadResult()
	if lr.Status != LoadRestored || lr.Entries != 2 || !reflect.DeepEqual(lr.Dropped, []string{"bad"}) {
		t.Fatalf("LoadResult: %+v", lr)
	}
	if got := cc.Keys(); !reflect.DeepEqual(got, []string{"good", "also-good"}) {
		t.Fatalf("Keys: %v", got)
	}
}

func TestDuplicateSnapshotKeysLastWins(t *testing.T) {
	store := memory.New(0)
	store.Put(DefaultSlot, mustSnapshot(t,
		wire.Item{Key: "a", Payload: []byte(`{"id":"first"}`)},
		wire.Item{Key: "b", Payload: []byte(`{"id":"b"}`)},
		wire.Item{Key: "a", Payload: []byte(`{"id":"second"}`)},
	))

	cc := newTestCache(t, store, nil)
	defer cc.Close(context.Background())

	if got, _ := cc.Get("a"); got.ID != "second" {
		t.Fatalf("duplicate key: got %+v", got)
	}
	if got := cc.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Keys: %v", got)
	}
}

// ==============================
// Degraded flush
// ==============================

func TestQuotaExceededKeepsMapAndSlot(t *testing.T) {
	ctx := context.Background()
	store := memory.New(64)
	cc := newTestCache(t, store, nil)
	defer cc.Close(ctx)

	cc.Set("a", user{ID: "1"})
	if res := cc.Flush(ctx); res.Status != FlushWritten {
		t.Fatalf("small flush: %+v", res)
	}
	before, _ := store.Raw(DefaultSlot)

	cc.Set("big", user{ID: "2", Name: string(bytes.Repeat([]byte("x"), 256))})
	res := cc.Flush(ctx)
	if res.Status != FlushFailed || res.OK() {
		t.Fatalf("expected FlushFailed, got %+v", res)
	}
	if !errors.Is(res.Err, st.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", res.Err)
	}
	var fe *FlushError
	if !errors.As(res.Err, &fe) || fe.Slot != DefaultSlot {
		t.Fatalf("expected *FlushError, got %T", res.Err)
	}

	if cc.Len() != 2 {
		t.Fatalf("map changed after failed flush: %v", cc.Keys())
	}
	after, _ := store.Raw(DefaultSlot)
	if !bytes.Equal(before, after) {
		t.Fatal("failed write must leave the previous snapshot in place")
	}
}

func TestTeardownWriteFailureIsReported(t *testing.T) {
	store := memory.New(0)
	hook := &lifecycle.Manual{}
	cc := newTestCache(t, store, func(o *Options[user]) { o.Lifecycle = hook })

	cc.Set("a", user{ID: "a"})
	store.FailSet(st.ErrUnavailable)

	hook.Fire() // must not panic

	lf := cc.LastFlush()
	if lf.Status != FlushFailed || !errors.Is(lf.Err, st.ErrUnavailable) {
		t.Fatalf("LastFlush: %+v", lf)
	}
	if _, ok := cc.Get("a"); !ok {
		t.Fatal("map must survive a failed teardown flush")
	}
}

func TestUnencodableEntryIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cc, err := New[any](Options[any]{Storage: store, Codec: c.JSON[any]{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cc.Set("ok", "fine")
	cc.Set("bad", make(chan int))
	cc.Set("also-ok", 2)

	res := cc.Flush(ctx)
	if res.Status != FlushPartial || !res.OK() {
		t.Fatalf("expected FlushPartial, got %+v", res)
	}
	if res.Written != 2 || !reflect.DeepEqual(res.Skipped, []string{"bad"}) {
		t.Fatalf("Written=%d Skipped=%v", res.Written, res.Skipped)
	}
	var ee *EntryError
	if !errors.As(res.Err, &ee) || ee.Key != "bad" {
		t.Fatalf("expected *EntryError for bad, got %v", res.Err)
	}
	if cc.Len() != 3 {
		t.Fatal("skipped entries stay in memory")
	}
	_ = cc.Close(ctx)

	again, _ := New[any](Options[any]{Storage: store, Codec: c.JSON[any]{}})
	defer again.Close(ctx)
	if got := again.Keys(); !reflect.DeepEqual(got, []string{"ok", "also-ok"}) {
		t.Fatalf("restored keys: %v", got)
	}
}

func TestInvalidKeyIsSkipped(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(0), nil)
	defer cc.Close(ctx)

	cc.Set("", user{ID: "empty"})
	cc.Set("fine", user{ID: "fine"})

	res := cc.Flush(ctx)
	if res.Status != FlushPartial || !errors.Is(res.Err, ErrInvalidKey) {
		t.Fatalf("expected invalid key skip, got %+v", res)
	}
	if got, ok := cc.Get(""); !ok || got.ID != "empty" {
		t.Fatal("empty key still works in memory")
	}
}

type panicCodec struct{ c.JSON[user] }

func (p panicCodec) Encode(u user) ([]byte, error) {
	if u.Name == "panic" {
		panic("boom")
	}
	return p.JSON.Encode(u)
}

func TestCodecPanicIsEntryFailure(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(0), func(o *Options[user]) { o.Codec = panicCodec{} })
	defer cc.Close(ctx)

	cc.Set("a", user{ID: "a"})
	cc.Set("p", user{Name: "panic"})

	res := cc.Flush(ctx)
	if res.Status != FlushPartial || !reflect.DeepEqual(res.Skipped, []string{"p"}) {
		t.Fatalf("expected p skipped, got %+v", res)
	}
}

// ==============================
// Lifecycle
// ==============================

func TestTeardownIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	hook := &lifecycle.Manual{}
	cc := newTestCache(t, store, func(o *Options[user]) { o.Lifecycle = hook })

	cc.Set("a", user{ID: "a"})
	hook.Fire()
	hook.Fire()

	if store.Writes() != 1 {
		t.Fatalf("teardown should write once, wrote %d", store.Writes())
	}
	if lf := cc.LastFlush(); lf.Status != FlushWritten || lf.Written != 1 {
		t.Fatalf("LastFlush: %+v", lf)
	}

	// mutations after teardown stay in memory only
	cc.Set("late", user{ID: "late"})
	if _, ok := cc.Get("late"); !ok {
		t.Fatal("Set after teardown must still apply in memory")
	}
	if res := cc.Flush(ctx); res.Status != FlushClosed {
		t.Fatalf("Flush after teardown: %+v", res)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close after teardown: %v", err)
	}
	if store.Writes() != 1 {
		t.Fatalf("no writes after teardown, got %d", store.Writes())
	}
}

func TestLifecycleAlreadyFired(t *testing.T) {
	store := memory.New(0)
	hook := &lifecycle.Manual{}
	hook.Fire()

	cc := newTestCache(t, store, func(o *Options[user]) { o.Lifecycle = hook })
	if res := cc.Flush(context.Background()); res.Status != FlushClosed {
		t.Fatalf("cache built after teardown should be closed, got %+v", res)
	}
}

func TestCloseFlushesAndOwnsStorage(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cc := newTestCache(t, store, func(o *Options[user]) { o.CloseStorage = true })

	cc.Set("a", user{ID: "a"})
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := store.Get(ctx, DefaultSlot); !errors.Is(err, st.ErrClosed) {
		t.Fatalf("storage should be closed, got %v", err)
	}
	if res := cc.Flush(ctx); res.Status != FlushClosed {
		t.Fatalf("Flush after Close: %+v", res)
	}
}

func TestCloseLeavesSharedStorageOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cc := newTestCache(t, store, nil)
	_ = cc.Close(ctx)

	if _, ok, err := store.Get(ctx, DefaultSlot); err != nil || !ok {
		t.Fatalf("shared storage should stay open: ok=%v err=%v", ok, err)
	}
}

// ==============================
// Background flushing
// ==============================

func TestDebounceFlushesAfterBurst(t *testing.T) {
	store := memory.New(0)
	cc := newTestCache(t, store, func(o *Options[user]) { o.FlushDebounce = 20 * time.Millisecond })
	defer cc.Close(context.Background())

	for i := 0; i < 10; i++ {
		cc.Set(fmt.Sprintf("k%d", i), user{ID: fmt.Sprint(i)})
	}
	waitFor(t, time.Second, func() bool { return cc.LastFlush().Status == FlushWritten })

	lf := cc.LastFlush()
	if lf.Written != 10 {
		t.Fatalf("debounced flush wrote %d entries, want 10", lf.Written)
	}
	if store.Writes() > 2 {
		t.Fatalf("burst should coalesce, got %d writes", store.Writes())
	}
}

func TestIntervalFlushesOnlyWhenDirty(t *testing.T) {
	store := memory.New(0)
	cc := newTestCache(t, store, func(o *Options[user]) { o.FlushInterval = 10 * time.Millisecond })
	defer cc.Close(context.Background())

	time.Sleep(50 * time.Millisecond)
	if store.Writes() != 0 {
		t.Fatalf("clean cache should not flush, got %d writes", store.Writes())
	}

	cc.Set("a", user{ID: "a"})
	waitFor(t, time.Second, func() bool { return store.Writes() == 1 })

	time.Sleep(50 * time.Millisecond)
	if store.Writes() != 1 {
		t.Fatalf("no mutation since last flush, got %d writes", store.Writes())
	}
}

func TestCloseStopsBackgroundLoop(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cc := newTestCache(t, store, func(o *Options[user]) {
		o.FlushInterval = 5 * time.Millisecond
		o.FlushDebounce = 5 * time.Millisecond
	})
	cc.Set("a", user{ID: "a"})
	_ = cc.Close(ctx)
	n := store.Writes()

	cc.Set("b", user{ID: "b"})
	time.Sleep(40 * time.Millisecond)
	if store.Writes() != n {
		t.Fatalf("writes after Close: %d -> %d", n, store.Writes())
	}
}

func TestConcurrentMutationsDuringFlush(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cc := newTestCache(t, store, nil)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("w%d:%d", w, i%20)
				cc.Set(k, user{ID: k})
				if i%7 == 0 {
					cc.Delete(k)
				}
				_, _ = cc.Get(k)
			}
		}(w)
	}
	for i := 0; i < 20; i++ {
		if res := cc.Flush(ctx); !res.OK() {
			t.Errorf("flush %d: %+v", i, res)
		}
	}
	wg.Wait()
	_ = cc.Close(ctx)

	again := newTestCache(t, store, nil)
	defer again.Close(ctx)
	if !reflect.DeepEqual(again.Keys(), cc.Keys()) {
		t.Fatalf("final snapshot differs from final map:\n%v\n%v", again.Keys(), cc.Keys())
	}
}

// ==============================
// Disabled / factory
// ==============================

func TestDisabledNeverTouchesStorage(t *testing.T) {
	ctx := context.Background()
	cc, err := New[user](Options[user]{Codec: c.JSON[user]{}, Disabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cc.Enabled() {
		t.Fatal("expected disabled cache")
	}
	cc.Set("a", user{ID: "a"})
	if _, ok := cc.Get("a"); !ok {
		t.Fatal("disabled cache still stores in memory")
	}
	if res := cc.Flush(ctx); res.Status != FlushDisabled {
		t.Fatalf("Flush: %+v", res)
	}
	if lr := cc.LoadResult(); lr.Status != LoadEmpty {
		t.Fatalf("LoadResult: %+v", lr)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFactoryPersistsThroughLifecycle(t *testing.T) {
	store := memory.New(0)
	newOwner := func() (Factory[user], *lifecycle.Manual) {
		t.Helper()
		hook := &lifecycle.Manual{}
		f, err := NewFactory[user](Options[user]{
			Storage:       store,
			Codec:         c.JSON[user]{},
			Lifecycle:     hook,
			FlushInterval: time.Hour,
		})
		if err != nil {
			t.Fatalf("NewFactory: %v", err)
		}
		return f, hook
	}

	f1, unload1 := newOwner()
	m1 := f1()
	m1.Set("a", user{ID: "a"})
	unload1.Fire()
	if store.Writes() != 1 {
		t.Fatalf("teardown should flush the factory map once, got %d writes", store.Writes())
	}

	f2, unload2 := newOwner()
	m2 := f2()
	if _, ok := m2.Get("a"); !ok {
		t.Fatal("next owner should restore what the first flushed")
	}
	m2.Set("b", user{ID: "b"})
	unload2.Fire()

	f3, unload3 := newOwner()
	defer unload3.Fire()
	m3 := f3()
	if got := m3.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("restored keys: %v", got)
	}
	if m4 := f3(); m4 == m3 {
		t.Fatal("factory must build a fresh provider per call")
	}
}

func TestFactoryRequiresLifecycle(t *testing.T) {
	_, err := NewFactory[user](Options[user]{Storage: memory.New(0), Codec: c.JSON[user]{}})
	if !errors.Is(err, ErrNoLifecycle) {
		t.Fatalf("expected ErrNoLifecycle, got %v", err)
	}

	// a disabled map never persists, so it needs no teardown
	f, err := NewFactory[user](Options[user]{Codec: c.JSON[user]{}, Disabled: true})
	if err != nil {
		t.Fatalf("disabled factory: %v", err)
	}
	m := f()
	m.Set("a", user{ID: "a"})
	if _, ok := m.Get("a"); !ok {
		t.Fatal("disabled map still stores in memory")
	}
}

func TestDiscardSkipsTeardownFlush(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	store.Put(DefaultSlot, []byte("not a snapshot"))
	hook := &lifecycle.Manual{}
	cc := newTestCache(t, store, func(o *Options[user]) {
		o.Lifecycle = hook
		o.FlushDebounce = 50 * time.Millisecond
		o.CloseStorage = true
	})
	if cc.LoadResult().Status != LoadCorrupt {
		t.Fatalf("LoadResult: %+v", cc.LoadResult())
	}

	cc.Set("a", user{ID: "a"})
	cc.Discard()
	hook.Fire()
	time.Sleep(80 * time.Millisecond)

	if res := cc.Flush(ctx); res.Status != FlushClosed {
		t.Fatalf("Flush after Discard: %+v", res)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close after Discard: %v", err)
	}
	if store.Writes() != 0 {
		t.Fatalf("Discard must not write, got %d writes", store.Writes())
	}
	if raw, _ := store.Raw(DefaultSlot); string(raw) != "not a snapshot" {
		t.Fatalf("slot changed: %q", raw)
	}
	if _, _, err := store.Get(ctx, DefaultSlot); !errors.Is(err, st.ErrClosed) {
		t.Fatalf("Close should still release owned storage, got %v", err)
	}
}

// ==============================
// Hooks
// ==============================

type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events []string
}

func (r *recHooks) rec(format string, args ...any) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recHooks) SnapshotRestored(slot string, n, d int) { r.rec("restored %s %d %d", slot, n, d) }
func (r *recHooks) SnapshotRejected(slot, reason string, _ error) {
	r.rec("rejected %s %s", slot, reason)
}
func (r *recHooks) EntryDropped(key string, _ error) { r.rec("dropped %s", key) }
func (r *recHooks) EntrySkipped(key string, _ error) { r.rec("skipped %s", key) }
func (r *recHooks) Flushed(slot string, w, s, _ int) { r.rec("flushed %s %d %d", slot, w, s) }
func (r *recHooks) FlushFailed(slot string, _ error) { r.rec("flush_failed %s", slot) }

func TestHooksSeeEveryEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	store.Put("h", mustSnapshot(t,
		wire.Item{Key: "a", Payload: []byte(`{"id":"a"}`)},
		wire.Item{Key: "x", Payload: []byte(`nope`)},
	))
	h := &recHooks{}
	cc, err := New[any](Options[any]{Storage: store, Codec: c.JSON[any]{}, Slot: "h", Hooks: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cc.Set("c", make(chan int))
	cc.Flush(ctx)
	store.FailSet(st.ErrUnavailable)
	cc.Flush(ctx)
	store.FailSet(nil)

	want := []string{
		"dropped x",
		"restored h 1 1",
		"skipped c",
		"flushed h 1 1",
		"skipped c",
		"flush_failed h",
	}
	if !reflect.DeepEqual(h.events, want) {
		t.Fatalf("events:\n got %v\nwant %v", h.events, want)
	}

	store.Put("h", []byte("junk"))
	h2 := &recHooks{}
	again, _ := New[any](Options[any]{Storage: store, Codec: c.JSON[any]{}, Slot: "h", Hooks: h2})
	defer again.Close(ctx)
	if !reflect.DeepEqual(h2.events, []string{"rejected h corrupt"}) {
		t.Fatalf("corrupt events: %v", h2.events)
	}
	_ = cc.Close(ctx)
}

func mustSnapshot(t *testing.T, items ...wire.Item) []byte {
	t.Helper()
	b, err := wire.EncodeSnapshot(items)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	return b
}

var _ Cache[user] = (*cache[user])(nil)

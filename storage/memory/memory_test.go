package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/lscache/storage"
)

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	if _, ok, err := s.Get(ctx, "slot"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "slot", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "slot")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get: got=%q ok=%v err=%v", got, ok, err)
	}
	// returned bytes are a copy
	got[0] = 'X'
	if raw, _ := s.Raw("slot"); string(raw) != "v1" {
		t.Fatalf("Get must return a copy, stored value is now %q", raw)
	}
	raw, _ := s.Raw("slot")
	raw[0] = 'Y'
	if again, _ := s.Raw("slot"); string(again) != "v1" {
		t.Fatalf("Raw must return a copy, stored value is now %q", again)
	}
	if err := s.Del(ctx, "slot"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := s.Del(ctx, "slot"); err != nil {
		t.Fatalf("Del of missing slot: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "slot"); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestQuota(t *testing.T) {
	ctx := context.Background()
	s := New(8)

	if err := s.Set(ctx, "a", []byte("12345")); err != nil {
		t.Fatalf("Set within quota: %v", err)
	}
	if err := s.Set(ctx, "b", []byte("1234")); !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	// replacing a slot only counts the difference
	if err := s.Set(ctx, "a", []byte("12345678")); err != nil {
		t.Fatalf("replace within quota: %v", err)
	}
	if raw, _ := s.Raw("a"); string(raw) != "12345678" {
		t.Fatalf("unexpected value %q", raw)
	}
	if s.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", s.Writes())
	}
}

func TestFaultsAndClose(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	boom := errors.New("boom")

	s.FailGet(boom)
	if _, _, err := s.Get(ctx, "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected get error, got %v", err)
	}
	s.FailGet(nil)

	s.FailSet(boom)
	if err := s.Set(ctx, "x", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected injected set error, got %v", err)
	}
	s.FailSet(nil)

	_ = s.Close(ctx)
	if err := s.Set(ctx, "x", []byte("v")); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

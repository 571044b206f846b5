// Package sloghooks reports lscache persistence events to a *slog.Logger.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/lscache"
	"github.com/unkn0wn-root/lscache/internal/util"
)

type Options struct {
	// Sampling for per-entry events to avoid floods; 0/1 = log all.
	EntrySkippedEvery uint64
	EntryDroppedEvery uint64
	// Log successful flushes at Debug. Off by default; debounced caches flush often.
	LogFlushes bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	skippedCtr atomic.Uint64
	droppedCtr atomic.Uint64
}

var _ lscache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SnapshotRestored(slot string, entries, dropped int) {
	if h.l == nil {
		return
	}
	h.l.Info("lscache.snapshot_restored",
		"slot", slot,
		"entries", entries,
		"dropped", dropped)
}

func (h *Hooks) SnapshotRejected(slot, reason string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("lscache.snapshot_rejected",
		"slot", slot,
		"reason", reason,
		"err", err)
}

func (h *Hooks) EntryDropped(key string, err error) {
	if h.l == nil || !sample(h.opts.EntryDroppedEvery, &h.droppedCtr) {
		return
	}
	h.l.Debug("lscache.entry_dropped",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) EntrySkipped(key string, err error) {
	if h.l == nil || !sample(h.opts.EntrySkippedEvery, &h.skippedCtr) {
		return
	}
	h.l.Warn("lscache.entry_skipped",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) Flushed(slot string, written, skipped, bytes int) {
	if h.l == nil || !h.opts.LogFlushes {
		return
	}
	h.l.Debug("lscache.flushed",
		"slot", slot,
		"written", written,
		"skipped", skipped,
		"bytes", bytes)
}

func (h *Hooks) FlushFailed(slot string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("lscache.flush_failed",
		"slot", slot,
		"err", err)
}

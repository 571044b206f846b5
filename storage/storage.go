// Package storage defines the durable slot store that lscache snapshots live in.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a slot (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed.
//
// A slot is shared by every cache instance (and process) pointed at it.
// Writes are whole-value replacements; the last writer wins.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned by Set when the value does not fit the
	// store's capacity.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	// ErrUnavailable reports a store that cannot be reached or is disabled.
	ErrUnavailable = errors.New("storage: unavailable")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage: closed")
)

// Storage is a minimal durable key/value store addressed by slot name.
// Must be safe for concurrent use.
type Storage interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, slot string) ([]byte, bool, error)

	// Set replaces the slot's value.
	Set(ctx context.Context, slot string, value []byte) error

	// Del removes a slot (best-effort). Missing slots are not an error.
	Del(ctx context.Context, slot string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

package lscache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/lscache/internal/wire"
)

var (
	ErrNoStorage = errors.New("lscache: storage is required")
	ErrNoCodec   = errors.New("lscache: codec is required")

	// ErrNoLifecycle: a factory-built Map has no Flush or Close, so only the
	// lifecycle hook can persist it.
	ErrNoLifecycle = errors.New("lscache: factory requires a lifecycle hook")

	// ErrCorrupt is the LoadResult.Err cause when the slot is not a valid snapshot.
	ErrCorrupt = wire.ErrCorrupt
	// ErrInvalidKey marks entries whose key cannot be framed (empty or over 65535 bytes).
	ErrInvalidKey = wire.ErrInvalidKey
)

// EntryError ties a codec failure to the entry it happened on.
type EntryError struct {
	Key string
	Err error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Key, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// FlushError describes a degraded flush: entries that were skipped, a storage
// write that failed, or both.
type FlushError struct {
	Slot     string
	Skipped  []*EntryError
	WriteErr error
}

func (e *FlushError) Error() string {
	switch {
	case e.WriteErr != nil && len(e.Skipped) > 0:
		return fmt.Sprintf("flush %q failed: write: %v; %d entries skipped", e.Slot, e.WriteErr, len(e.Skipped))
	case e.WriteErr != nil:
		return fmt.Sprintf("flush %q failed: write: %v", e.Slot, e.WriteErr)
	case len(e.Skipped) == 1:
		return fmt.Sprintf("flush %q: skipped %v", e.Slot, e.Skipped[0])
	case len(e.Skipped) > 1:
		return fmt.Sprintf("flush %q: %d entries skipped, first: %v", e.Slot, len(e.Skipped), e.Skipped[0])
	default:
		return fmt.Sprintf("flush %q: unknown error", e.Slot)
	}
}

func (e *FlushError) Unwrap() []error {
	errs := make([]error, 0, len(e.Skipped)+1)
	if e.WriteErr != nil {
		errs = append(errs, e.WriteErr)
	}
	for _, s := range e.Skipped {
		errs = append(errs, s)
	}
	return errs
}

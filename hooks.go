package lscache

// Hooks lightweight callbacks for persistence events.
// Implementations MUST be cheap and non-blocking.
// Keys are passed raw; redact before logging them.
type Hooks interface {
	// The slot was decoded at construction. dropped counts entries the codec rejected.
	SnapshotRestored(slot string, entries, dropped int)

	// The slot could not be used at construction; the cache started empty.
	// reason ∈ {"corrupt", "unavailable"}
	SnapshotRejected(slot, reason string, err error)

	// An entry payload failed to decode during restore and was left out.
	EntryDropped(key string, err error)

	// An entry failed to encode during a flush and was left out of the snapshot.
	EntrySkipped(key string, err error)

	// A snapshot was written.
	Flushed(slot string, written, skipped, bytes int)

	// A snapshot write failed (quota exceeded, storage unavailable).
	FlushFailed(slot string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SnapshotRestored(string, int, int)      {}
func (NopHooks) SnapshotRejected(string, string, error) {}
func (NopHooks) EntryDropped(string, error)             {}
func (NopHooks) EntrySkipped(string, error)             {}
func (NopHooks) Flushed(string, int, int, int)          {}
func (NopHooks) FlushFailed(string, error)              {}

package lscache

// LoadStatus is the outcome of restoring a snapshot at construction.
type LoadStatus int

const (
	LoadEmpty       LoadStatus = iota // no snapshot in the slot (or cache disabled)
	LoadRestored                      // snapshot decoded; Dropped lists entries the codec rejected
	LoadCorrupt                       // slot held bytes that are not a valid snapshot; started empty
	LoadUnavailable                   // storage read failed; started empty
)

func (s LoadStatus) String() string {
	switch s {
	case LoadEmpty:
		return "empty"
	case LoadRestored:
		return "restored"
	case LoadCorrupt:
		return "corrupt"
	case LoadUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type LoadResult struct {
	Status  LoadStatus
	Entries int      // entries in the map after restore
	Dropped []string // keys whose payload failed to decode
	Err     error    // cause for LoadCorrupt / LoadUnavailable
}

// FlushStatus is the outcome of one flush.
type FlushStatus int

const (
	FlushNone     FlushStatus = iota // no flush has happened yet
	FlushWritten                     // every entry written
	FlushPartial                     // written without the entries in Skipped
	FlushFailed                      // storage write failed; the slot keeps its previous value
	FlushClosed                      // cache already torn down; nothing written
	FlushDisabled                    // cache disabled; nothing written
)

func (s FlushStatus) String() string {
	switch s {
	case FlushNone:
		return "none"
	case FlushWritten:
		return "written"
	case FlushPartial:
		return "partial"
	case FlushFailed:
		return "failed"
	case FlushClosed:
		return "closed"
	case FlushDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

type FlushResult struct {
	Status  FlushStatus
	Written int      // entries in the written snapshot
	Skipped []string // keys left out because they could not be encoded
	Bytes   int      // snapshot size
	Err     error    // *FlushError when entries were skipped or the write failed
}

// OK reports whether a snapshot reached storage, possibly without some entries.
func (r FlushResult) OK() bool {
	return r.Status == FlushWritten || r.Status == FlushPartial
}

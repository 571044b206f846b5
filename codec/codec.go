// Package codec turns cache entries into bytes and back.
//
// Each entry is encoded on its own, so one value that cannot be encoded only
// costs that entry its place in the snapshot.
package codec

// Codec encodes/decodes entries V to []byte for a snapshot.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

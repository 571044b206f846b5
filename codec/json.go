package codec

import "encoding/json"

// JSON encodes entries with encoding/json. Values that json.Marshal rejects
// (channels, funcs, cyclic data, NaN) fail Encode and are left out of a flush.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

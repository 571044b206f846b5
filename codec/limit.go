package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned when a payload exceeds a LimitCodec bound.
var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec wraps another codec and bounds payload sizes in both directions.
// A limit <= 0 disables that direction.
//
// MaxEncode keeps one oversized entry from eating the storage quota of the
// whole snapshot: the entry is skipped on flush instead. MaxDecode protects
// against oversized entries coming back from shared storage.
type LimitCodec[V any] struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner interface {
		Encode(V) ([]byte, error)
		Decode([]byte) (V, error)
	}
	MaxEncode int
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxEncode)
	}
	return b, nil
}

func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	version      byte = 1
	kindSnapshot byte = 1

	headerLen   = 4 + 1 + 1 + 4
	checksumLen = 8

	// MaxKeyLen is the longest key a snapshot item can carry.
	MaxKeyLen = 0xFFFF
)

var (
	ErrCorrupt    = errors.New("lscache: corrupt snapshot")
	ErrInvalidKey = errors.New("lscache: invalid key length")
	magic4        = [...]byte{'L', 'S', 'C', 'S'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Item is one (key, encoded entry) pair of a snapshot.
type Item struct {
	Key     string
	Payload []byte
}

// ValidKey reports whether k fits the u16 key length field.
func ValidKey(k string) error {
	if l := len(k); l == 0 || l > MaxKeyLen {
		return fmt.Errorf("%w: %d", ErrInvalidKey, len(k))
	}
	return nil
}

// Snapshot:
//
//	magic(4) | ver(1) | kind(1=snapshot) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) | vlen(u32 be) | payload(vlen) * n
//	checksum(u64 be, xxhash64 of all preceding bytes)
func EncodeSnapshot(items []Item) ([]byte, error) {
	total := headerLen + checksumLen
	for _, it := range items {
		if err := ValidKey(it.Key); err != nil {
			return nil, err
		}
		total += 2 + len(it.Key) + 4 + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		binary.BigEndian.PutUint16(u2[:], uint16(len(it.Key)))
		buf.Write(u2[:])
		buf.WriteString(it.Key)

		binary.BigEndian.PutUint32(u4[:], uint32(len(it.Payload)))
		buf.Write(u4[:])
		buf.Write(it.Payload)
	}

	binary.BigEndian.PutUint64(u8[:], xxhash.Sum64(buf.Bytes()))
	buf.Write(u8[:])

	return buf.Bytes(), nil
}

// DecodeSnapshot parses a frame produced by EncodeSnapshot. Payloads alias b.
func DecodeSnapshot(b []byte) ([]Item, error) {
	if len(b) < headerLen+checksumLen || !hasMagic(b) || b[4] != version || b[5] != kindSnapshot {
		return nil, ErrCorrupt
	}

	body := b[:len(b)-checksumLen]
	if binary.BigEndian.Uint64(b[len(body):]) != xxhash.Sum64(body) {
		return nil, ErrCorrupt
	}

	off := 6

	// n
	n := int(binary.BigEndian.Uint32(body[off : off+4]))
	off += 4

	// every item needs at least 2+1+4 bytes; don't trust n for preallocation
	if n < 0 || n > (len(body)-off)/7 {
		return nil, ErrCorrupt
	}

	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		// keyLen
		if off+2 > len(body) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if klen <= 0 || klen > len(body)-off {
			return nil, ErrCorrupt
		}

		keyBytes := body[off : off+klen]
		off += klen

		// vlen
		if off+4 > len(body) {
			return nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(body)-off {
			return nil, ErrCorrupt
		}

		payload := body[off : off+vlen]
		off += vlen

		items = append(items, Item{
			Key:     string(keyBytes),
			Payload: payload,
		})
	}

	if off != len(body) {
		return nil, ErrCorrupt
	}

	return items, nil
}

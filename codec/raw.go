package codec

// Bytes is an identity codec for []byte entries. Useful when the fetching
// layer already hands over serialized responses.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) {
	// snapshot payloads alias the storage buffer; entries must own their bytes
	return append([]byte(nil), b...), nil
}

// String stores string entries as their UTF-8 bytes, without validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

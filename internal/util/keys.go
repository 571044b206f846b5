package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Redact returns a short stable digest of key, safe to put in logs.
// Keys are derived from request descriptors and can carry user data.
func Redact(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

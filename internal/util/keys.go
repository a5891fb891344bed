package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashWidth is the number of hex chars kept from the digest (128 bits).
const HashWidth = 32

// SanitizeKey returns prefix + a fixed-width hex digest of raw.
// Any input (URLs, spaces, unicode, oversized strings) maps to a store-safe key.
func SanitizeKey(prefix, raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return prefix + hex.EncodeToString(sum[:])[:HashWidth]
}

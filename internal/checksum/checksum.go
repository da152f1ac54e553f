// Package checksum produces the digests stamped on transfer records:
// every uploaded or downloaded image is logged with the SHA-256 of the
// exact bytes that moved.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

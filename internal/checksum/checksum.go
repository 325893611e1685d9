// Package checksum fingerprints the encoded form of a mem.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/parser"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Of returns the digest of m as it is written to disk. Two mems with the same
// checksum encode to identical files.
func Of(m models.Mem) string {
	return Sum(parser.Encode(m))
}

// Package sha256 digests result files so unchanged content is not uploaded
// twice.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

const prefix = "sha256:"

// Hasher implements results.Hasher. Digests carry a "sha256:" prefix so they
// can be logged next to object URIs unambiguously.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the prefixed hex digest of data.
func (*Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:]), nil
}

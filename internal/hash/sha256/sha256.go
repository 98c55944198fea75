// Package sha256 names content-addressed archive objects.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher returns hex SHA-256 digests, optionally truncated.
type Hasher struct {
	length int
}

// New returns a Hasher producing full 64 character digests.
func New() *Hasher {
	return &Hasher{}
}

// NewTruncated returns a Hasher keeping the first n hex characters. n must be
// even and between 8 and 64.
func NewTruncated(n int) (*Hasher, error) {
	if n < 8 || n > hex.EncodedLen(sha256.Size) || n%2 != 0 {
		return nil, fmt.Errorf("digest length %d out of range", n)
	}
	return &Hasher{length: n}, nil
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.length > 0 {
		digest = digest[:h.length]
	}
	return digest, nil
}

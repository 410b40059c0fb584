// Package crypto holds the hashing primitives shared by events, rounds and the
// consensus orderer. Key management and signatures live in crypto/keys.
package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// SHA256Concat returns the SHA256 hash of the concatenation of all the chunks,
// without copying them into an intermediary buffer.
func SHA256Concat(chunks ...[]byte) []byte {
	hasher := sha256.New()
	for _, c := range chunks {
		hasher.Write(c)
	}
	return hasher.Sum(nil)
}

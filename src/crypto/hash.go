package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SHA256Concat returns the SHA256 hash of the concatenation of all parts.
func SHA256Concat(parts ...[]byte) []byte {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write(p)
	}
	return hasher.Sum(nil)
}

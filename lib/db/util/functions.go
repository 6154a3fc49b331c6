package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// Seeds and Hashing
// --------------------------------------------------------------------------

// UintKey is the hashed form of a string key used inside the engine.
type UintKey uint64

// GenerateSeed returns a random seed, falling back to the current time
// if the system random source is unavailable.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// HashString hashes s with FNV-1a, mixing seed into the offset basis so two
// engines with different seeds place the same key differently.
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return UintKey(hash)
}

// NowMillis returns the wall clock in milliseconds since the unix epoch.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

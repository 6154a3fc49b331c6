package lockmgr

import (
	"crypto/rand"
	"time"
)

const (
	ownerIDLength = 32 // bytes
)

// generateOwnerID creates a new random owner ID.
func generateOwnerID() ([]byte, error) {
	randomBytes := make([]byte, ownerIDLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}

// toMillis converts d to whole milliseconds, rounding sub-millisecond values up.
func toMillis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ms := uint64(d / time.Millisecond)
	if d%time.Millisecond != 0 {
		ms++
	}
	return ms
}

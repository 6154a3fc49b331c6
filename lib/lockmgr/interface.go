package lockmgr

import (
	"errors"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lockmgr: timed out waiting for lock")

// ILockManager defines the interface for a store backed lock provider.
type ILockManager interface {
	// AcquireLock tries once to acquire the lock for key. The lock is released
	// automatically after timeout milliseconds (0 = never).
	// Returns whether the lock was acquired and the owner ID needed to release it.
	AcquireLock(key string, timeout uint64) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Returns whether the lock was released. The method also returns true if the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}

// Locker is a blocking lock with a bounded wait and a bounded hold time.
//
// Lock waits at most timeout for key. The returned lease expires on its own
// after expire, so a crashed holder can not block other callers forever.
// ErrLockTimeout is returned if the wait ran out.
type Locker interface {
	Lock(key string, timeout, expire time.Duration) (Lease, error)
}

// Lease is a held lock. The zero Lease holds nothing and releasing it is a no-op.
type Lease struct {
	Key     string
	OwnerID []byte

	release func() error
}

// NewLease creates a lease that runs release once when released.
func NewLease(key string, ownerID []byte, release func() error) Lease {
	return Lease{Key: key, OwnerID: ownerID, release: release}
}

// Held reports whether the lease was actually acquired.
func (l Lease) Held() bool {
	return l.release != nil
}

// Release gives the lock back. Releasing an expired lease is harmless.
func (l Lease) Release() error {
	if l.release == nil {
		return nil
	}
	return l.release()
}

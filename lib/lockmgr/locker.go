package lockmgr

import (
	"sync/atomic"
	"time"
)

const (
	minPollInterval = 2 * time.Millisecond
	maxPollInterval = 50 * time.Millisecond
)

// --------------------------------------------------------------------------
// Store backed Locker
// --------------------------------------------------------------------------

type managerLocker struct {
	mgr ILockManager
}

// NewLocker turns a non-blocking ILockManager into a Locker by polling it
// with exponential backoff until the lock is acquired or the timeout runs out.
func NewLocker(mgr ILockManager) Locker {
	return &managerLocker{mgr: mgr}
}

func (m *managerLocker) Lock(key string, timeout, expire time.Duration) (Lease, error) {
	deadline := time.Now().Add(timeout)
	wait := minPollInterval

	for {
		ok, ownerID, err := m.mgr.AcquireLock(key, toMillis(expire))
		if err != nil {
			return Lease{}, err
		}
		if ok {
			var released atomic.Bool
			return NewLease(key, ownerID, func() error {
				if released.Swap(true) {
					return nil
				}
				_, err := m.mgr.ReleaseLock(key, ownerID)
				return err
			}), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Lease{}, ErrLockTimeout
		}
		time.Sleep(min(wait, remaining))
		wait = min(wait*2, maxPollInterval)
	}
}

// --------------------------------------------------------------------------
// Chained Locker
// --------------------------------------------------------------------------

type chainLocker struct {
	lockers []Locker
}

// Chain acquires the lock from every locker in order and releases them in
// reverse order. A failure releases everything acquired so far.
//
// Used to take an in-process lock before a shared one, so goroutines of the
// same process queue locally instead of polling the shared lock.
func Chain(lockers ...Locker) Locker {
	return &chainLocker{lockers: lockers}
}

func (c *chainLocker) Lock(key string, timeout, expire time.Duration) (Lease, error) {
	deadline := time.Now().Add(timeout)
	leases := make([]Lease, 0, len(c.lockers))

	releaseAll := func() error {
		var firstErr error
		for i := len(leases) - 1; i >= 0; i-- {
			if err := leases[i].Release(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, locker := range c.lockers {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		lease, err := locker.Lock(key, remaining, expire)
		if err != nil {
			_ = releaseAll()
			return Lease{}, err
		}
		leases = append(leases, lease)
	}

	var ownerID []byte
	for _, lease := range leases {
		if lease.OwnerID != nil {
			ownerID = lease.OwnerID
		}
	}

	var released atomic.Bool
	return NewLease(key, ownerID, func() error {
		if released.Swap(true) {
			return nil
		}
		return releaseAll()
	}), nil
}

// Package lockmgr provides the locks that serialize writers of the same
// document.
//
// Two levels exist:
//
//   - ILockManager is a non-blocking lock kept entirely in a store.IStore.
//     AcquireLock writes a random owner ID with SetEIfUnset and reads it back;
//     the lock is ours only if our ID was written. The key carries a deletion
//     ttl, so a crashed holder releases the lock automatically. ReleaseLock
//     deletes the key only if the stored owner ID matches. The manager has no
//     state of its own and may be created any number of times on the same store.
//
//   - Locker is the blocking form used by the document store: wait at most
//     timeout, hold at most expire. NewLocker polls an ILockManager with
//     exponential backoff, LocalLocker blocks on a per-key channel inside one
//     process, and Chain combines both so local goroutines queue in-process
//     before contending for the shared lock.
//
// Usage Example:
//
//	locker := lockmgr.Chain(lockmgr.NewLocalLocker(), lockmgr.NewLocker(mgr))
//
//	lease, err := locker.Lock("users/alice", 5*time.Second, 20*time.Second)
//	if errors.Is(err, lockmgr.ErrLockTimeout) {
//	    // someone else holds the lock
//	}
//	defer lease.Release()
package lockmgr

package lockmgr

import (
	"bytes"

	"github.com/ValentinKolb/jsondb/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	store store.IStore
}

// NewLockManager creates a lock manager that keeps all its state in s.
func NewLockManager(s store.IStore) ILockManager {
	return &lockMgrImpl{
		store: s,
	}
}

func (lp *lockMgrImpl) AcquireLock(key string, timeout uint64) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// set the value only if it doesn't exist (atomic CAS operation)
	err = lp.store.SetEIfUnset(key, ownerID, 0, timeout)
	if err != nil {
		Logger.Warningf("error setting lock %q: %v", key, err)
		return false, nil, err
	}

	value, found, err := lp.store.Get(key)
	if err != nil {
		return false, nil, err
	}

	// the lock is ours only if our owner ID was written
	if found && bytes.Equal(value, ownerID) {
		return true, ownerID, nil
	}
	return false, nil, nil
}

func (lp *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	value, ok, err := lp.store.Get(key)
	if err != nil || !ok {
		return err == nil, err
	}

	if !bytes.Equal(ownerID, value) {
		return false, nil
	}

	err = lp.store.Delete(key)
	return err == nil, err
}

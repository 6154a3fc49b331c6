package lstore

import (
	"sync/atomic"

	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/db/util"
	"github.com/ValentinKolb/jsondb/lib/store"
)

// Clock returns the current time in milliseconds.
type Clock func() uint64

// Option configures a local store.
type Option func(*storeImpl)

// WithClock replaces the wall clock of the store. Used by tests to control ttl behaviour.
func WithClock(clock Clock) Option {
	return func(s *storeImpl) {
		s.clock = clock
	}
}

type storeImpl struct {
	db    db.KVDB
	clock Clock
	last  atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore(factory store.DBFactory, opts ...Option) store.IStore {
	s := &storeImpl{
		db:    factory(),
		clock: util.NowMillis,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now returns the current time in milliseconds. The result never decreases,
// even if the wall clock jumps backwards.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) now() uint64 {
	t := s.clock()
	for {
		last := s.last.Load()
		if t <= last {
			return last
		}
		if s.last.CompareAndSwap(last, t) {
			return t
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return store.NewError(store.RetCUnsupportedOperation, "Set operation is not supported")
	}
	s.db.Set(key, value, s.now())
	return nil
}

func (s *storeImpl) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	if !s.db.SupportsFeature(db.FeatureSetE) {
		return store.NewError(store.RetCUnsupportedOperation, "SetE operation is not supported")
	}
	s.db.SetE(key, value, s.now(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) error {
	if !s.db.SupportsFeature(db.FeatureSetEIfUnset) {
		return store.NewError(store.RetCUnsupportedOperation, "SetEIfUnset operation is not supported")
	}
	s.db.SetEIfUnset(key, value, s.now(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) Expire(key string) error {
	if !s.db.SupportsFeature(db.FeatureExpire) {
		return store.NewError(store.RetCUnsupportedOperation, "Expire operation is not supported")
	}
	s.db.Expire(key, s.now())
	return nil
}

func (s *storeImpl) Delete(key string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	s.db.Delete(key, s.now())
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	// reads move the engine clock too, otherwise ttls only elapse on writes
	s.db.AdvanceClock(s.now())
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	s.db.AdvanceClock(s.now())
	return s.db.Has(key), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	s.db.AdvanceClock(s.now())
	return s.db.GetInfo(), nil
}

package maple

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/jsondb/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = 250 * time.Millisecond // Default interval between GC sweeps
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl is a sharded in-memory engine with millisecond ttl support.
type mapleImpl struct {
	seed   uint64
	shards []*internal.Shard
	clock  atomic.Uint64

	gcInterval time.Duration
	gcStop     chan struct{}
	gcDone     sync.WaitGroup
	closeOnce  sync.Once
}

// DBOptions configures the engine
type DBOptions struct {
	NumShards  int           // Number of shards (0 = number of CPUs)
	GCInterval time.Duration // Time between GC sweeps (0 = default)
}

// DefaultOptions returns the default engine options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new engine with the given options (nil = DefaultOptions)
// and starts its garbage collector. Call Close to stop it.
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	hasher := func(key util.UintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}

	shards := make([]*internal.Shard, opts.NumShards)
	for i := range shards {
		shards[i] = internal.NewShard(hasher)
	}

	maple := &mapleImpl{
		seed:       util.GenerateSeed(),
		shards:     shards,
		gcInterval: opts.GCInterval,
		gcStop:     make(chan struct{}),
	}

	maple.gcDone.Add(1)
	go maple.garbageCollector()

	return maple
}

// locate hashes key and returns it together with its shard.
func (maple *mapleImpl) locate(key string) (util.UintKey, *internal.Shard) {
	intKey := util.HashString(key, maple.seed)
	return intKey, internal.GetShard(intKey, maple.shards)
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set stores value for key without ttl.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, now uint64) {
	maple.compute(key, value, now, 0, 0, func(next, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return next, false
	})
}

// SetE stores value for key with the given ttl offsets (ms, 0 = none).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetE(key string, value []byte, now uint64, expireIn, deleteIn uint64) {
	maple.compute(key, value, now, expireIn, deleteIn, func(next, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return next, false
	})
}

// SetEIfUnset stores value for key only if the key does not exist (or is deleted).
// The lock manager builds its leases on this operation.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetEIfUnset(key string, value []byte, now uint64, expireIn, deleteIn uint64) {
	maple.compute(key, value, now, expireIn, deleteIn, func(next, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			return old, false
		}
		return next, false
	})
}

// Expire drops the value of key, the key itself stays visible to Has.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Expire(key string, now uint64) {
	maple.compute(key, nil, now, 0, 0, func(_, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return old, true
		}
		old.Value = nil
		old.ExpireAt = now
		return old, false
	})
}

// Delete removes key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, now uint64) {
	maple.compute(key, nil, now, 0, 0, func(_, old internal.Entry, _ bool) (internal.Entry, bool) {
		return old, true
	})
}

// compute is the shared write path of all write operations.
//
// fn receives the entry that would be written, the current entry and whether
// the current entry is live (exists and is not deleted). It returns the entry
// to store, or true to remove the key. Writes older than the stored entry are
// ignored. fn never sees an entry belonging to a colliding key.
func (maple *mapleImpl) compute(key string, value []byte, now uint64, expireIn, deleteIn uint64, fn func(next, old internal.Entry, loaded bool) (internal.Entry, bool)) {
	maple.AdvanceClock(now)

	intKey, shard := maple.locate(key)

	// copy the value, the caller may reuse its buffer
	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	next := internal.Entry{Key: key, Value: valueCopy, Written: now}
	if expireIn > 0 {
		next.ExpireAt = now + expireIn
	}
	if deleteIn > 0 {
		next.DeleteAt = now + deleteIn
	}

	var (
		stored  internal.Entry
		removed bool
		touched bool
	)

	shard.Data.Compute(intKey, func(old internal.Entry, exists bool) (internal.Entry, bool) {
		collision := exists && old.Key != key

		// stale writes are ignored
		if exists && !collision && now < old.Written {
			return old, false
		}

		loaded := exists && !collision
		view := old
		if loaded {
			isExpired, isDeleted := old.TTLInfo(now)
			loaded = !isDeleted
			if isExpired {
				view.Value = nil
			}
		}
		if collision {
			view = internal.Entry{}
		}

		entry, del := fn(next, view, loaded)
		touched = true

		if del {
			if collision {
				// never remove another key's entry
				touched = false
				return old, false
			}
			removed = exists
			return old, true
		}

		stored = entry
		return entry, false
	})

	if !touched {
		return
	}
	if removed {
		shard.Forget(intKey)
		return
	}
	shard.Track(intKey, stored)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the value for key if it exists and is not expired.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	intKey, shard := maple.locate(key)

	e, ok := shard.Data.Load(intKey)
	if !ok || e.Key != key {
		return nil, false
	}
	if isExpired, _ := e.TTLInfo(maple.clock.Load()); isExpired {
		return nil, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has reports whether key exists, even if its value already expired.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	intKey, shard := maple.locate(key)

	e, ok := shard.Data.Load(intKey)
	if !ok || e.Key != key {
		return false
	}
	_, isDeleted := e.TTLInfo(maple.clock.Load())
	return !isDeleted
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// garbageCollector sweeps all shards every gcInterval until Close is called.
func (maple *mapleImpl) garbageCollector() {
	defer maple.gcDone.Done()

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-maple.gcStop:
			return
		case <-ticker.C:
			maple.sweep(maple.clock.Load())
		}
	}
}

// sweep reclaims everything that is due at now.
//
// The heaps may lag behind concurrent writes, so every popped key is checked
// against its current entry: due entries are collected, everything else is
// rescheduled with its real deadlines.
func (maple *mapleImpl) sweep(now uint64) {
	for _, shard := range maple.shards {
		expired, deleted := shard.Due(now)

		for _, key := range deleted {
			var keep *internal.Entry
			shard.Data.Compute(key, func(e internal.Entry, loaded bool) (internal.Entry, bool) {
				if !loaded {
					return e, true
				}
				if _, isDeleted := e.TTLInfo(now); isDeleted {
					return e, true
				}
				keep = &e
				return e, false
			})
			if keep != nil {
				shard.Track(key, *keep)
			} else {
				shard.Forget(key)
			}
		}

		for _, key := range expired {
			var keep *internal.Entry
			shard.Data.Compute(key, func(e internal.Entry, loaded bool) (internal.Entry, bool) {
				if !loaded {
					return e, true
				}
				if isExpired, _ := e.TTLInfo(now); isExpired {
					// drop the value, the key stays until its deletion time
					e.Value = nil
				}
				keep = &e
				return e, false
			})
			if keep != nil {
				shard.Track(key, *keep)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Clock, Features and Metadata
// --------------------------------------------------------------------------

// AdvanceClock moves the clock forward; it never moves backwards.
func (maple *mapleImpl) AdvanceClock(now uint64) {
	for {
		curr := maple.clock.Load()
		if now <= curr {
			return
		}
		if maple.clock.CompareAndSwap(curr, now) {
			return
		}
	}
}

// Clock returns the current engine clock
func (maple *mapleImpl) Clock() uint64 {
	return maple.clock.Load()
}

// GetInfo returns entry counts per shard.
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	sizes := make([]int, len(maple.shards))
	total := 0
	pending := 0
	for i, shard := range maple.shards {
		sizes[i] = shard.Data.Size()
		total += sizes[i]

		shard.Mu.Lock()
		pending += shard.Expiries.Len() + shard.Deletions.Len()
		shard.Mu.Unlock()
	}

	meta := &struct {
		ShardSizes  []int `json:"shard_sizes"`
		PendingTTLs int   `json:"pending_ttls"`
	}{
		ShardSizes:  sizes,
		PendingTTLs: pending,
	}

	return db.DatabaseInfo{
		Entries: total,
		DbType:  db.ImplMaple,
		Clock:   maple.clock.Load(),
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureSetEIfUnset,
			db.FeatureGet, db.FeatureExpire, db.FeatureDelete, db.FeatureHas,
			db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet |
		db.FeatureSetE |
		db.FeatureSetEIfUnset |
		db.FeatureGet |
		db.FeatureExpire |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureGarbageCollect
	return supported&feature == feature
}

// Close stops the garbage collector. The engine stays readable and writable.
func (maple *mapleImpl) Close() error {
	maple.closeOnce.Do(func() {
		close(maple.gcStop)
		maple.gcDone.Wait()
	})
	return nil
}

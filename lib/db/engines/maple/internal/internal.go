package internal

import (
	"sync"

	"github.com/ValentinKolb/jsondb/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its ttl metadata.
// The original key is kept so that hash collisions are detected instead of
// silently answering with another key's value.
type Entry struct {
	Key      string // Original (unhashed) key
	Value    []byte // Nil once the entry expired
	ExpireAt uint64 // Clock value at which the value expires (0 = never)
	DeleteAt uint64 // Clock value at which the key is deleted (0 = never)
	Written  uint64 // Clock value of the write that produced this entry
}

// TTLInfo returns whether the entry is expired and whether it is deleted at the given clock value.
func (e Entry) TTLInfo(now uint64) (isExpired bool, isDeleted bool) {
	isDeleted = e.DeleteAt != 0 && now >= e.DeleteAt
	isExpired = isDeleted || (e.ExpireAt != 0 && now >= e.ExpireAt)
	return isExpired, isDeleted
}

// HasTTL reports whether the garbage collector has to track this entry.
func (e Entry) HasTTL() bool {
	return e.ExpireAt != 0 || e.DeleteAt != 0
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard is one partition of the key space.
// Data is safe for concurrent use on its own; the two heaps are guarded by Mu.
type Shard struct {
	Data *xsync.MapOf[util.UintKey, Entry]

	Mu        sync.Mutex
	Expiries  *util.MapHeap[util.UintKey]
	Deletions *util.MapHeap[util.UintKey]
}

// NewShard creates a new shard with the provided hash function
func NewShard(hasher func(util.UintKey, uint64) uint64) *Shard {
	return &Shard{
		Data:      xsync.NewMapOfWithHasher[util.UintKey, Entry](hasher),
		Expiries:  util.NewMapHeap[util.UintKey](),
		Deletions: util.NewMapHeap[util.UintKey](),
	}
}

// Track (re)schedules the ttl deadlines of an entry, or forgets the key when it has none.
func (s *Shard) Track(key util.UintKey, e Entry) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if e.ExpireAt != 0 && e.Value != nil {
		s.Expiries.Schedule(key, e.ExpireAt)
	} else {
		s.Expiries.Cancel(key)
	}
	if e.DeleteAt != 0 {
		s.Deletions.Schedule(key, e.DeleteAt)
	} else {
		s.Deletions.Cancel(key)
	}
}

// Forget removes a key from both heaps.
func (s *Shard) Forget(key util.UintKey) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Expiries.Cancel(key)
	s.Deletions.Cancel(key)
}

// Due pops all keys whose expiry or deletion is due at now.
func (s *Shard) Due(now uint64) (expired []util.UintKey, deleted []util.UintKey) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Expiries.PopDue(now), s.Deletions.PopDue(now)
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	return shards[shiftedKey%uint64(len(shards))]
}

package db

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

// Feature represents engine capabilities as bit flags
type Feature uint64

const (
	FeatureSet            Feature = 1 << iota // Support for Set operations
	FeatureSetE                               // Support for SetE operations (ttl)
	FeatureSetEIfUnset                        // Support for SetEIfUnset operations (needed by the lock manager)
	FeatureGet                                // Support for Get operations
	FeatureExpire                             // Support for Expire operations
	FeatureDelete                             // Support for Delete operations
	FeatureHas                                // Support for Has operations
	FeatureGarbageCollect                     // Expired and deleted entries are reclaimed in the background
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureSetE:
		return "SetE"
	case FeatureSetEIfUnset:
		return "SetEIfUnset"
	case FeatureGet:
		return "Get"
	case FeatureExpire:
		return "Expire"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureGarbageCollect:
		return "GarbageCollect"
	default:
		return "Unknown"
	}
}

// DatabaseInfo is a point-in-time summary of an engine.
type DatabaseInfo struct {
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	Clock             uint64         `json:"clock"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB is the in-memory engine behind a cache shard.
//
// Every write carries `now`, a millisecond timestamp supplied by the caller.
// Time-to-live values (expireIn, deleteIn) are offsets in milliseconds
// relative to `now`. The engine keeps the highest `now` it has seen as its
// clock; reads are evaluated against that clock.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or replaces the value for key. Any ttl of an existing entry is dropped.
	Set(key string, value []byte, now uint64)

	// SetE inserts or replaces the value for key with a ttl.
	// After expireIn the value is gone but Has() still reports the key,
	// after deleteIn the key is gone entirely. 0 disables the respective ttl.
	SetE(key string, value []byte, now uint64, expireIn, deleteIn uint64)

	// SetEIfUnset behaves like SetE but leaves an existing (not deleted) entry untouched.
	SetEIfUnset(key string, value []byte, now uint64, expireIn, deleteIn uint64)

	// Expire drops the value of key immediately, the key stays visible to Has().
	Expire(key string, now uint64)

	// Delete removes key.
	Delete(key string, now uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns a copy of the value for key. loaded is false for missing or expired entries.
	Get(key string) (value []byte, loaded bool)

	// Has reports whether key exists, expired entries included.
	Has(key string) (loaded bool)

	// --------------------------------------------------------------------------
	// Clock and Features
	// --------------------------------------------------------------------------

	// AdvanceClock moves the engine clock forward. Smaller values are ignored.
	AdvanceClock(now uint64)

	// Clock returns the current engine clock.
	Clock() (now uint64)

	// SupportsFeature reports whether all given features are supported.
	// Multiple features can be checked at once using bitwise OR (|).
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close stops background work of the engine.
	Close() (err error)
}

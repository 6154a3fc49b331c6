package jsondb

import (
	"time"
)

// Options configures a Store.
type Options struct {
	// Root is the directory holding all documents.
	Root string

	// CacheTTL is the lifetime of cache entries written by the store.
	CacheTTL time.Duration

	// LockTimeout bounds the wait for a document lock.
	LockTimeout time.Duration

	// LockExpire bounds how long a lock is held if its holder never releases it.
	LockExpire time.Duration

	// OnFault receives decode faults, at most one per FaultWindow (optional).
	OnFault func(err error)

	// FaultWindow is the minimum distance between two OnFault calls.
	FaultWindow time.Duration
}

// DefaultOptions returns the default options for a store rooted at root.
func DefaultOptions(root string) Options {
	return Options{
		Root:        root,
		CacheTTL:    time.Hour,
		LockTimeout: 5 * time.Second,
		LockExpire:  20 * time.Second,
		FaultWindow: 120 * time.Second,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions(o.Root)
	if o.CacheTTL <= 0 {
		o.CacheTTL = def.CacheTTL
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = def.LockTimeout
	}
	if o.LockExpire <= 0 {
		o.LockExpire = def.LockExpire
	}
	if o.FaultWindow <= 0 {
		o.FaultWindow = def.FaultWindow
	}
}

// --------------------------------------------------------------------------
// Per call options
// --------------------------------------------------------------------------

type callOptions struct {
	noCache bool
}

// CallOption changes the behaviour of a single Get or Commit.
type CallOption func(*callOptions)

// NoCache bypasses the cache: Get reads from disk and does not populate the
// cache, Commit evicts the cache entry instead of refreshing it.
func NoCache() CallOption {
	return func(o *callOptions) {
		o.noCache = true
	}
}

func resolve(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package jsondb

import (
	"sync/atomic"
	"time"
)

// faultKey is the cache key holding the time of the last fault report in
// unix nanoseconds, shared by all processes using the same cache.
const faultKey = "exception_catcher"

// faultThrottle limits fault reports to one per window. The last report time
// is kept in the cache so that several processes share the window; the local
// copy takes over when the cache is unavailable.
type faultThrottle struct {
	window time.Duration
	cache  Cache
	last   atomic.Int64
	now    func() time.Time
}

// report hands err to fn unless another fault was reported within the window.
func (f *faultThrottle) report(err error, fn func(error)) {
	if fn == nil {
		return
	}

	now := f.now().UnixNano()
	last := f.last.Load()

	var shared int64
	if f.cache.GetInto(faultKey, &shared) && shared > last {
		last = shared
	}

	if last != 0 && time.Duration(now-last) < f.window {
		Logger.Warningf("rapid faults, dropping report: %v", err)
		return
	}

	f.last.Store(now)
	f.cache.Set(faultKey, now, f.window)
	fn(err)
}

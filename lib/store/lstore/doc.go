// Package lstore implements store.IStore on top of a local db.KVDB engine.
//
// The store supplies the engine clock: every operation stamps the engine with
// the current wall time in milliseconds, clamped so it never moves backwards.
// Reads stamp the engine as well, so values expire on time even when no
// writes arrive. Tests inject their own clock with WithClock.
//
// Operations the engine does not support return a *store.Error with code
// RetCUnsupportedOperation.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	// value gone after 5 minutes, key after 10
//	err := s.SetE("session:123", sessionData, 5*60_000, 10*60_000)
//	value, exists, err := s.Get("session:123")
package lstore

// Package db defines the engine interface used by the cache server's shards.
//
// A KVDB is a volatile key-value map with per-entry time-to-live. It is the
// lowest layer of the cache that fronts the document store: everything kept
// here can be lost at any time without losing data, so engines carry no
// persistence operations.
//
// Time:
//
//	Engines do not read the wall clock themselves. Each write passes `now`
//	(milliseconds) and ttl offsets are relative to it. The engine keeps the
//	maximum `now` seen so far as its clock and answers reads against it, so
//	callers that only read must call AdvanceClock first. The store layer
//	(lib/store/lstore) does exactly that with a monotonic clock. Tests drive
//	the clock by hand, which keeps ttl behaviour deterministic.
//
// Consistency:
//
//   - Get() never returns a value whose expiry time has passed.
//   - Has() never reports a key whose deletion time has passed.
//   - Physical removal happens later in the engine's garbage collector.
//
// The maple engine (lib/db/engines/maple) is the only implementation.
// Shared conformance tests live in lib/db/testing.
package db

// Package maple implements db.KVDB as a sharded in-memory map with
// millisecond time-to-live support. It is the engine behind every cache
// shard of the lstore package.
//
// Keys are hashed with a per-instance seed and spread over a fixed number of
// shards. Each shard holds an xsync.MapOf for the entries and two min-heaps
// (expiry and deletion deadlines) guarded by a mutex.
//
// Clock:
//
//   - Every write carries `now` (milliseconds). The engine keeps the highest
//     value it has seen and evaluates Get and Has against it. Callers that
//     only read can move the clock with AdvanceClock.
//   - A write whose `now` is lower than the one stored with the entry is
//     dropped (stale write).
//
// Time-to-live:
//
//   - expireIn: after this many ms the value is gone, Has still reports the key.
//   - deleteIn: after this many ms the key is gone.
//
// Get and Has always check the deadlines themselves, so correctness never
// depends on the garbage collector. The collector runs in one goroutine and
// only reclaims memory: it pops due deadlines from the heaps, re-checks each
// entry (the heaps may lag behind concurrent writes) and either clears the
// value, removes the key or reschedules it.
//
// Hash collisions are detected by storing the original key with each entry;
// a colliding key simply behaves as absent.
package maple

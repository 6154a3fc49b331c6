// Package cache is the best-effort JSON cache the document store puts in
// front of the disk.
//
// A Client prefixes every key, encodes values as JSON and talks to a Backend
// (a store.IStore for values plus an optional lockmgr.ILockManager for
// leases). The backend is usually a remote cache server reached through
// rpc/client.NewCacheDialer; LocalDialer serves it from an in-process store.
//
// The connection is dialed lazily, once. If the dial or its ping fails the
// client switches to StateDisabled for good and every later call skips the
// backend without trying again. Faults on a connected backend are wrapped in
// a *BackendError, logged and counted, and the call degrades to a miss
// (Get), a no-op (Set, Delete) or no lock at all (Lock). The cache holds
// nothing that is not also on disk, so losing it only costs latency.
//
// Hits, misses, faults and timings are recorded in a go-metrics registry
// available through Client.Metrics.
package cache

// Package store defines IStore, the key-value interface every cache shard
// implements, together with the error type shared by all implementations.
//
// Two implementations exist:
//
//   - lstore: an in-process store on top of a db.KVDB engine.
//   - rpc/client: a remote store that forwards every call to a cache server
//     which itself hosts an lstore shard.
//
// The document store never talks to IStore directly. It goes through the
// cache package, which adds key prefixing, JSON encoding and failure
// isolation on top of it.
package store

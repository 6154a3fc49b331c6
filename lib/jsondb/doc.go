// Package jsondb is a flat-file JSON document store with a write-through cache.
//
// Every document lives in its own file, <root>/<path>.json, written as
// pretty-printed JSON with sorted keys so the tree stays readable and
// diffable. The store offers Exists, Get, Commit, Delete and ListDocs; there
// are no queries and no multi-document transactions.
//
// Consistency with the cache:
//
//   - Each cached document has a companion entry "<path>_mtime" holding the
//     file's modification time (UnixNano) when the cache was populated.
//   - Get trusts the cache only while that mtime is not older than the file's.
//     Otherwise both entries are evicted and the file is read again.
//   - Commit refreshes both entries before it releases the document lock.
//   - The disk always wins; the cache may be lost at any time.
//
// Concurrency:
//
//   - Commit and Delete hold the document lock (a lockmgr.Locker) for the
//     whole filesystem mutation. A lock that can not be acquired within
//     Options.LockTimeout fails the call with CodeLock.
//   - Disk reads in Get take the same lock but fall back to an unlocked read
//     on timeout. Commits replace files through rename, so no reader ever
//     sees a partial document.
//
// Paths containing ".." are rejected and logged as a security event. Paths
// ending in ".json" are rejected as a programming error.
//
// Usage Example:
//
//	client := cache.New(cache.Config{Prefix: "jsondb:"}, dialer)
//	docs, err := jsondb.Open(jsondb.DefaultOptions("db"), client)
//
//	err = docs.Commit("users/by-id/1", User{UID: 1, Name: "Alice"})
//
//	var u User
//	found, err := docs.Get("users/by-id/1", &u)
package jsondb

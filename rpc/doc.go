// Package rpc connects cache clients with the cache server.
//
// Subpackages:
//
//   - common: the Message protocol, configuration and logging.
//   - serializer: Message encodings (binary, JSON, gob).
//   - transport: framed tcp/unix and http transports.
//   - client: store.IStore and lockmgr.ILockManager over a transport, and a
//     cache.Dialer built from them.
//   - server: routes requests to local lstore and lockmgr shards.
package rpc

// Package transport defines how serialized rpc messages travel between the
// cache client and the cache server.
//
// Implementations live in the sub packages: http, tcp and unix. The tcp and
// unix transports share the framing and connection handling of package base.
// Every frame is addressed to a shard ID, the server routes it to the store or
// lock manager registered under that ID.
package transport

// Package server is the cache server: it owns one in-memory store per shard
// and answers rpc requests for them.
//
// A shard is either a key-value store (common.ShardTypeLocalIStore) or a lock
// manager backed by its own store (common.ShardTypeLocalILockManager). Both
// answer ping requests, which clients use as health check when connecting.
//
// Request counts per message type and handling latency are exported with
// VictoriaMetrics/metrics; set ServerConfig.MetricsEndpoint to serve them.
package server

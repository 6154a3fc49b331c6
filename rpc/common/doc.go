// Package common holds what cache clients and the cache server share: the
// Message protocol, the client and server configuration and the logger
// factory used by every package of the module.
//
// A Message is used for requests and responses alike. Which fields are
// set depends on its MessageType: store operations (set, get, ...), lock
// operations (acquire, release) and ping, a health check every shard answers.
//
// InitLoggers installs a dragonboat logger factory that writes
// "LEVEL | name | message" lines and sets the level of all loggers.
package common

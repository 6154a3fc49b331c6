// Package cmd implements the jsondb command line.
//
//   - serve: run the cache server
//   - doc: read and write documents (get, commit, delete, exists, ls)
//   - kv, lock: talk to a cache server directly
//   - version
//
// Every flag can also be set as environment variable JSONDB_<FLAG>, with
// dashes replaced by underscores (e.g. JSONDB_DB_ROOT). .env and .env.local
// in the working directory are loaded first.
package cmd

// Package serializer encodes common.Message values for the rpc transports.
//
// Three formats are available and selected by name with ByName:
//
//   - binary: flag based, only present fields are written. Smallest frames.
//   - json: readable, useful when debugging with curl against the http transport.
//   - gob: encoding/gob, mostly for completeness.
//
// Client and server must agree on the format. All implementations are
// stateless and safe for concurrent use.
package serializer

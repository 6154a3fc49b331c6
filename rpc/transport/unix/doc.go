// Package unix provides the unix domain socket flavour of the framed base
// transport, for cache servers running on the same host as the document store.
// The endpoint is the socket path.
package unix

package transport

import (
	"github.com/ValentinKolb/jsondb/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one request frame addressed to shardId and
// returns the response frame. It must be safe for concurrent use.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport receives request frames and hands them to a ServerHandleFunc.
type IRPCServerTransport interface {
	// RegisterHandler sets the handler. Must be called before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves until Close is called or the listener fails.
	// It returns nil after Close.
	Listen(config common.ServerConfig) error
	// Close stops accepting requests and closes the listener.
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport sends request frames to a server.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}

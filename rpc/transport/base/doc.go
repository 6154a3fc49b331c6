// Package base implements a framed, multiplexed transport over any stream
// oriented net.Conn. The tcp and unix packages plug in their dialing and
// socket options through IClientConnector and IServerConnector.
//
// Frame layout (big endian):
//
//	[shardID:8][requestID:8][length:4][payload]
//
// The client pools ConnectionsPerEndpoint connections per endpoint and picks
// one round robin per request. Requests on a connection are pipelined;
// responses are matched by request ID. A failed connection fails all of its
// waiting requests and is redialed on next use.
//
// The server handles the frames of one connection with up to WorkersPerConn
// goroutines, so responses may be written out of order.
package base

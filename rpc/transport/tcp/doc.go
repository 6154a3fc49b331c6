// Package tcp provides the tcp flavour of the framed base transport.
//
// Socket buffer sizes, TCP_NODELAY, keep-alive and linger are taken from
// common.SocketConf and common.TCPConf and applied to every connection on
// both sides.
package tcp

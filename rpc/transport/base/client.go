package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

var errTransportClosed = errors.New("transport closed")

// IClientConnector supplies the medium specific parts of a client transport
type IClientConnector interface {
	// Connect dials a single connection to endpoint
	Connect(endpoint string) (net.Conn, error)
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
	// UpgradeConnection applies medium specific socket options
	UpgradeConnection(conn net.Conn, config common.ClientTransportConfig) error
}

type responseResult struct {
	data []byte
	err  error
}

// clientConnection is one pooled connection. It redials lazily after a failure.
type clientConnection struct {
	endpoint string
	parent   *clientTransport

	mu      sync.Mutex // guards conn and serializes writes
	conn    net.Conn
	pending *xsync.MapOf[uint64, chan responseResult]
}

// clientTransport multiplexes requests over a pool of connections.
// Responses are matched to requests by request ID.
type clientTransport struct {
	connector   IClientConnector
	config      common.ClientConfig
	connections []*clientConnection
	nextConn    atomic.Uint64
	nextReqID   atomic.Uint64
	closed      atomic.Bool
}

// NewBaseClientTransport creates a client transport using connector to dial.
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	t.config = config
	perEndpoint := max(config.Transport.ConnectionsPerEndpoint, 1)

	var lastErr error
	connected := 0
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			c := &clientConnection{
				endpoint: endpoint,
				parent:   t,
				pending:  xsync.NewMapOf[uint64, chan responseResult](),
			}
			t.connections = append(t.connections, c)

			c.mu.Lock()
			err := c.dialLocked()
			c.mu.Unlock()
			if err != nil {
				lastErr = err
				Logger.Warningf("failed to connect to %s (connection %d/%d): %v", endpoint, i+1, perEndpoint, err)
				continue
			}
			connected++
		}
	}

	if connected == 0 {
		return fmt.Errorf("failed to connect to any endpoint: %w", lastErr)
	}
	Logger.Infof("connected %d/%d %s connections to %d endpoints",
		connected, len(t.connections), t.connector.GetName(), len(config.Transport.Endpoints))
	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if len(t.connections) == 0 {
		return nil, fmt.Errorf("%s transport not connected", t.connector.GetName())
	}

	attempts := max(t.config.Transport.RetryCount, 1)
	backoff := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		if t.closed.Load() {
			return nil, errTransportClosed
		}
		data, err := t.pick().roundtrip(shardId, t.nextReqID.Add(1), req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		Logger.Debugf("request attempt %d/%d failed: %v", i+1, attempts, err)

		if i+1 < attempts {
			// +-10% jitter
			time.Sleep(time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64())))
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempts, lastErr)
}

func (t *clientTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	for _, c := range t.connections {
		c.mu.Lock()
		c.dropLocked(errTransportClosed)
		c.mu.Unlock()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// pick selects the next connection round robin
func (t *clientTransport) pick() *clientConnection {
	if len(t.connections) == 1 {
		return t.connections[0]
	}
	return t.connections[t.nextConn.Add(1)%uint64(len(t.connections))]
}

func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// roundtrip writes one request and waits for the matching response
func (c *clientConnection) roundtrip(shardID, requestID uint64, req []byte) ([]byte, error) {
	respCh := make(chan responseResult, 1)
	c.pending.Store(requestID, respCh)
	defer c.pending.Delete(requestID)

	timeout := c.parent.timeout()

	c.mu.Lock()
	if c.conn == nil {
		if c.parent.closed.Load() {
			c.mu.Unlock()
			return nil, errTransportClosed
		}
		if err := c.dialLocked(); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := writeFrame(c.conn, shardID, requestID, req)
	if err != nil {
		c.dropLocked(err)
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case res := <-respCh:
		return res.data, res.err
	case <-timer:
		return nil, fmt.Errorf("request %d to %s timed out", requestID, c.endpoint)
	}
}

// dialLocked opens a new connection and starts its reader. c.mu must be held.
func (c *clientConnection) dialLocked() error {
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config.Transport); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}
	c.conn = conn
	go c.readResponses(conn)
	return nil
}

// dropLocked closes the current connection and fails all waiting requests.
// c.mu must be held.
func (c *clientConnection) dropLocked(cause error) {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.pending.Range(func(id uint64, ch chan responseResult) bool {
		if _, ok := c.pending.LoadAndDelete(id); ok {
			ch <- responseResult{err: fmt.Errorf("connection to %s lost: %w", c.endpoint, cause)}
		}
		return true
	})
}

// readResponses delivers responses read from conn until it fails.
func (c *clientConnection) readResponses(conn net.Conn) {
	for {
		_, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				if !c.parent.closed.Load() {
					Logger.Warningf("connection to %s failed: %v", c.endpoint, err)
				}
				c.dropLocked(err)
			}
			c.mu.Unlock()
			return
		}

		if ch, ok := c.pending.LoadAndDelete(requestID); ok {
			ch <- responseResult{data: data}
		} else {
			Logger.Debugf("dropping response for unknown request %d from %s", requestID, c.endpoint)
		}
	}
}

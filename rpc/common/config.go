package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Shards
// --------------------------------------------------------------------------

type ServerShardType string

const (
	// ShardTypeLocalIStore serves a maple backed lstore.
	ShardTypeLocalIStore ServerShardType = "lstore"
	// ShardTypeLocalILockManager serves a lock manager on top of its own lstore.
	ShardTypeLocalILockManager ServerShardType = "lockmgr"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type selects what is served under ShardID
	Type ServerShardType
}

// ParseShards parses a shard list of the form "100=lstore,200=lockmgr".
func ParseShards(list string) ([]ServerShard, error) {
	shards := []ServerShard{}
	seen := make(map[uint64]struct{})

	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", entry)
		}

		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate shard ID %d", id)
		}
		seen[id] = struct{}{}

		t := ServerShardType(strings.TrimSpace(parts[1]))
		switch t {
		case ShardTypeLocalIStore, ShardTypeLocalILockManager:
		default:
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: lstore, lockmgr)", t)
		}

		shards = append(shards, ServerShard{ShardID: id, Type: t})
	}

	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	return shards, nil
}

// --------------------------------------------------------------------------
// Transport settings
// --------------------------------------------------------------------------

// SocketConf holds buffer sizes for stream based transports (bytes).
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds options that only apply to tcp connections.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

type ServerTransportConfig struct {
	// Endpoint is the listen address (host:port or a socket path)
	Endpoint string
	// WorkersPerConn is the number of goroutines handling frames of one connection
	WorkersPerConn int
	// BufferSize is the size of the frame buffers
	BufferSize int
	SocketConf
	TCPConf
}

type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// ServerConfig holds everything the rpc server needs to start.
type ServerConfig struct {
	Shards        []ServerShard
	TimeoutSecond int64
	LogLevel      string
	// MetricsEndpoint is an optional listen address for /metrics
	MetricsEndpoint string
	Transport       ServerTransportConfig
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	addSection, addField := writer(&sb)

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(max(c.Transport.WorkersPerConn, 1)))
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	addSection, addField := writer(&sb)

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Conns Per Endpoint", strconv.Itoa(max(c.Transport.ConnectionsPerEndpoint, 1)))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}
	return sb.String()
}

func writer(sb *strings.Builder) (func(string), func(string, string)) {
	section := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(title))
		sb.WriteString("\n")
	}
	field := func(name, value string) {
		fmt.Fprintf(sb, "  %-22s: %s\n", name, value)
	}
	return section, field
}

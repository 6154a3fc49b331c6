package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/jsondb/lib/cache"
	"github.com/ValentinKolb/jsondb/rpc/client"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
	"github.com/ValentinKolb/jsondb/rpc/transport/http"
	"github.com/ValentinKolb/jsondb/rpc/transport/tcp"
	"github.com/ValentinKolb/jsondb/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
	// EnvPrefix is the prefix of all environment variables, e.g. JSONDB_DB_ROOT
	EnvPrefix = "jsondb"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var lines []string
	var line strings.Builder

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// InitConfig loads .env files and makes viper read JSONDB_* variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Setup binds the flags of cmd to viper and configures the loggers.
// Every command group calls it from its PersistentPreRunE.
func Setup(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// --------------------------------------------------------------------------
// RPC client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the flags needed to reach a cache server
func SetupRPCClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Int("timeout", 10, WrapString("The timeout in seconds of the client"))
	flags.String("transport-endpoints", "localhost:8080", WrapString("The address of the cache server. Multiple endpoints can be given as a comma-separated list"))
	flags.Int("transport-conn-per-endpoint", 1, WrapString("Simultaneous connections per endpoint"))
	flags.Int("transport-retries", 3, WrapString("How many times to try a request"))
	flags.Int("transport-write-buffer", 512, WrapString("Socket write buffer in KB (ignored for http)"))
	flags.Int("transport-read-buffer", 512, WrapString("Socket read buffer in KB (ignored for http)"))
	flags.Bool("transport-tcp-nodelay", true, WrapString("Set TCP_NODELAY (tcp only)"))
	flags.Int("transport-tcp-keepalive", 0, WrapString("Keep-alive period in seconds, 0 keeps the OS default (tcp only)"))
	flags.Int("transport-tcp-linger", 0, WrapString("Linger time in seconds, 0 keeps the OS default (tcp only)"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			RetryCount:             viper.GetInt("transport-retries"),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			},
		},
	}
}

// GetSerializer creates the configured serializer
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetTransport returns a constructor for the configured client transport
func GetTransport() (func() transport.IRPCClientTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "http":
		return http.NewHttpClientTransport, nil
	case "tcp":
		return tcp.NewTCPClientTransport, nil
	case "unix":
		return unix.NewUnixClientTransport, nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected http, tcp or unix)", name)
	}
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return viper.GetUint64("shard")
}

// --------------------------------------------------------------------------
// Cache client
// --------------------------------------------------------------------------

// SetupCacheFlags adds the flags of the document store cache
func SetupCacheFlags(cmd *cobra.Command) {
	SetupRPCClientFlags(cmd)
	flags := cmd.PersistentFlags()
	flags.Bool("no-cache", false, WrapString("Do not use a cache server"))
	flags.String("cache-prefix", "jsondb:", WrapString("Prefix of all cache keys"))
	flags.Duration("cache-ttl", 0, WrapString("Lifetime of cache entries (0 = 1h)"))
	flags.Duration("lock-timeout", 0, WrapString("Maximum wait for a document lock (0 = 5s)"))
	flags.Duration("lock-expire", 0, WrapString("Lifetime of a document lock (0 = 20s)"))
	flags.Uint64("store-shard", 100, WrapString("Shard ID of the cache values"))
	flags.Uint64("lock-shard", 200, WrapString("Shard ID of the cache locks (0 = lock only within this process)"))
}

// NewCacheClient creates the cache client described by the cache flags.
// The server is contacted lazily; an unreachable server disables the cache.
func NewCacheClient() (*cache.Client, error) {
	if viper.GetBool("no-cache") {
		return cache.Disabled(), nil
	}
	ser, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	newTransport, err := GetTransport()
	if err != nil {
		return nil, err
	}

	dial := client.NewCacheDialer(
		GetClientConfig(),
		viper.GetUint64("store-shard"),
		viper.GetUint64("lock-shard"),
		newTransport,
		ser,
	)
	return cache.New(cache.Config{
		Prefix:      viper.GetString("cache-prefix"),
		LockTimeout: viper.GetDuration("lock-timeout"),
		LockExpire:  viper.GetDuration("lock-expire"),
	}, dial), nil
}

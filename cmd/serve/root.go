package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/jsondb/cmd/util"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/server"
	"github.com/ValentinKolb/jsondb/rpc/transport"
	"github.com/ValentinKolb/jsondb/rpc/transport/http"
	"github.com/ValentinKolb/jsondb/rpc/transport/tcp"
	"github.com/ValentinKolb/jsondb/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the cache server",
		Long: `Start the cache server the document store uses for cached reads and document locks.
Flags can be set as environment variables JSONDB_<FLAG> (e.g. JSONDB_SHARDS=100=lstore,200=lockmgr).`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	flags := ServeCmd.Flags()
	flags.String("shards", "100=lstore,200=lockmgr", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is lstore (values) or lockmgr (locks)"))
	flags.String("endpoint", "0.0.0.0:8080", cmdUtil.WrapString("The address to listen on (host:port, or a socket path for the unix transport)"))
	flags.Int64("timeout", 5, cmdUtil.WrapString("Read and write timeout of connections in seconds"))
	flags.String("metrics-endpoint", "", cmdUtil.WrapString("Serve prometheus metrics on this address under /metrics (disabled if empty)"))
	flags.Int("workers-per-conn", 4, cmdUtil.WrapString("Requests handled in parallel per connection (tcp, unix)"))
	flags.Int("buffer-size", 64, cmdUtil.WrapString("Frame buffer size in KB (tcp, unix)"))
	flags.Int("socket-write-buffer", 0, cmdUtil.WrapString("Socket write buffer in KB, 0 keeps the OS default (tcp, unix)"))
	flags.Int("socket-read-buffer", 0, cmdUtil.WrapString("Socket read buffer in KB, 0 keeps the OS default (tcp, unix)"))
	flags.Bool("tcp-nodelay", true, cmdUtil.WrapString("Set TCP_NODELAY on accepted connections (tcp only)"))
	flags.Int("tcp-keepalive", 0, cmdUtil.WrapString("Keep-alive period in seconds, 0 keeps the OS default (tcp only)"))
}

// processConfig converts flags and environment variables into the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.Setup(cmd); err != nil {
		return err
	}

	shards, err := common.ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}

	serveCmdConfig = common.ServerConfig{
		Shards:          shards,
		TimeoutSecond:   viper.GetInt64("timeout"),
		LogLevel:        viper.GetString("log-level"),
		MetricsEndpoint: viper.GetString("metrics-endpoint"),
		Transport: common.ServerTransportConfig{
			Endpoint:       viper.GetString("endpoint"),
			WorkersPerConn: viper.GetInt("workers-per-conn"),
			BufferSize:     viper.GetInt("buffer-size") * 1024,
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			},
		},
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	s, err := serializer.ByName(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	var t transport.IRPCServerTransport
	switch name := viper.GetString("transport"); name {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", name)
	}

	srv, err := server.NewRPCServer(serveCmdConfig, t, s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		server.Logger.Infof("shutting down")
		_ = srv.Close()
	}()

	return srv.Serve()
}

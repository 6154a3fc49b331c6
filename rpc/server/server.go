package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/db/engines/maple"
	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/lib/store/lstore"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// RPCServer routes frames from a transport to the shards it serves.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, IRPCServerAdapter]

	mu         sync.Mutex
	dbs        []db.KVDB
	metricsSrv *http.Server
}

// NewRPCServer creates the server and its shards. Nothing listens until Serve.
//
//	s, err := server.NewRPCServer(conf, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err != nil { ... }
//	err = s.Serve()
func NewRPCServer(
	config common.ServerConfig,
	t transport.IRPCServerTransport,
	s serializer.IRPCSerializer,
) (*RPCServer, error) {
	srv := &RPCServer{
		config:     config,
		transport:  t,
		serializer: s,
		shards:     xsync.NewMapOf[uint64, IRPCServerAdapter](),
	}

	for _, shard := range config.Shards {
		if _, exists := srv.shards.Load(shard.ShardID); exists {
			srv.closeDBs()
			return nil, fmt.Errorf("duplicate shard ID %d", shard.ShardID)
		}
		st := lstore.NewLocalStore(srv.newDB)

		switch shard.Type {
		case common.ShardTypeLocalIStore:
			srv.shards.Store(shard.ShardID, NewIStoreServerAdapter(st))
		case common.ShardTypeLocalILockManager:
			srv.shards.Store(shard.ShardID, NewLockManagerServerAdapter(lockmgr.NewLockManager(st)))
		default:
			srv.closeDBs()
			return nil, fmt.Errorf("invalid shard type %q for shard %d", shard.Type, shard.ShardID)
		}
		Logger.Infof("created %s shard %d", shard.Type, shard.ShardID)
	}

	t.RegisterHandler(srv.Handle)
	return srv, nil
}

// newDB is the db factory of all shards; it keeps track of the engines so
// Close can stop them
func (s *RPCServer) newDB() db.KVDB {
	d := maple.NewMapleDB(nil)
	s.mu.Lock()
	s.dbs = append(s.dbs, d)
	s.mu.Unlock()
	return d
}

// Handle decodes one request for shardId, dispatches it and encodes the
// response. Unknown shards and undecodable requests get an error response.
func (s *RPCServer) Handle(shardId uint64, req []byte) []byte {
	start := time.Now()

	var resp *common.Message
	msgType := common.MsgTUnknown

	if adapter, ok := s.shards.Load(shardId); !ok {
		resp = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else {
		var msg common.Message
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			resp = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			msgType = msg.MsgType
			resp = adapter.Handle(&msg)
		}
	}

	if resp.MsgType == common.MsgTError {
		metrics.GetOrCreateCounter(`jsondb_rpc_errors_total`).Inc()
		Logger.Debugf("shard %d: %s", shardId, resp.Err)
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`jsondb_rpc_requests_total{type=%q}`, msgType)).Inc()
	metrics.GetOrCreateHistogram(`jsondb_rpc_request_duration_seconds`).UpdateDuration(start)

	out, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		out, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return out
}

// Serve starts the optional metrics endpoint and blocks in the transport
// until Close is called.
func (s *RPCServer) Serve() error {
	Logger.Infof("starting rpc server%s", s.config.String())

	if s.config.MetricsEndpoint != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
			metrics.WritePrometheus(w, true)
		})
		s.mu.Lock()
		s.metricsSrv = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}
		srv := s.metricsSrv
		s.mu.Unlock()

		go func() {
			Logger.Infof("serving metrics on %s/metrics", s.config.MetricsEndpoint)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("metrics endpoint failed: %v", err)
			}
		}()
	}

	return s.transport.Listen(s.config)
}

// Close stops the transport, the metrics endpoint and all shard engines.
func (s *RPCServer) Close() error {
	err := s.transport.Close()

	s.mu.Lock()
	if s.metricsSrv != nil {
		err = errors.Join(err, s.metricsSrv.Close())
	}
	s.mu.Unlock()

	return errors.Join(err, s.closeDBs())
}

func (s *RPCServer) closeDBs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, d := range s.dbs {
		err = errors.Join(err, d.Close())
	}
	s.dbs = nil
	return err
}

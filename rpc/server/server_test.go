package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/jsondb/lib/cache"
	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/rpc/client"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
	"github.com/ValentinKolb/jsondb/rpc/transport/http"
	"github.com/ValentinKolb/jsondb/rpc/transport/tcp"
	"github.com/ValentinKolb/jsondb/rpc/transport/unix"
)

const (
	storeShard = 100
	lockShard  = 200
)

var testShards = []common.ServerShard{
	{ShardID: storeShard, Type: common.ShardTypeLocalIStore},
	{ShardID: lockShard, Type: common.ShardTypeLocalILockManager},
}

// idleTransport never listens, the tests call Handle directly
type idleTransport struct {
	handler transport.ServerHandleFunc
}

func (t *idleTransport) RegisterHandler(h transport.ServerHandleFunc) { t.handler = h }
func (t *idleTransport) Listen(common.ServerConfig) error           { return nil }
func (t *idleTransport) Close() error                               { return nil }

func newTestServer(t *testing.T, tr transport.IRPCServerTransport, ser serializer.IRPCSerializer) *RPCServer {
	t.Helper()
	srv, err := NewRPCServer(common.ServerConfig{Shards: testShards, TimeoutSecond: 5}, tr, ser)
	if err != nil {
		t.Fatalf("NewRPCServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func call(t *testing.T, srv *RPCServer, ser serializer.IRPCSerializer, shard uint64, req *common.Message) common.Message {
	t.Helper()
	data, err := ser.Serialize(*req)
	if err != nil {
		t.Fatal(err)
	}
	var resp common.Message
	if err := ser.Deserialize(srv.Handle(shard, data), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandleStoreShard(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	srv := newTestServer(t, &idleTransport{}, ser)

	if resp := call(t, srv, ser, storeShard, common.NewSetRequest("k", []byte("v"))); resp.Err != "" {
		t.Fatalf("set: %s", resp.Err)
	}
	resp := call(t, srv, ser, storeShard, common.NewGetRequest("k"))
	if !resp.Ok || !bytes.Equal(resp.Value, []byte("v")) {
		t.Errorf("get: %+v", resp)
	}
	if resp := call(t, srv, ser, storeShard, common.NewHasRequest("missing")); resp.Ok {
		t.Error("has: missing key reported present")
	}

	resp = call(t, srv, ser, storeShard, common.NewInfoRequest())
	var info map[string]any
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		t.Fatalf("info meta: %v", err)
	}
	if info["entries"] != float64(1) {
		t.Errorf("info entries = %v, want 1", info["entries"])
	}
}

func TestHandleLockShard(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	srv := newTestServer(t, &idleTransport{}, ser)

	first := call(t, srv, ser, lockShard, common.NewAcquireRequest("l", 10_000))
	if !first.Ok || len(first.Value) == 0 {
		t.Fatalf("acquire: %+v", first)
	}
	if second := call(t, srv, ser, lockShard, common.NewAcquireRequest("l", 10_000)); second.Ok {
		t.Fatal("lock acquired twice")
	}
	if rel := call(t, srv, ser, lockShard, common.NewReleaseRequest("l", first.Value)); !rel.Ok {
		t.Fatalf("release: %+v", rel)
	}
	if again := call(t, srv, ser, lockShard, common.NewAcquireRequest("l", 10_000)); !again.Ok {
		t.Fatal("lock not free after release")
	}
}

func TestHandleErrors(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	srv := newTestServer(t, &idleTransport{}, ser)

	tests := []struct {
		name  string
		shard uint64
		req   *common.Message
	}{
		{"unknown shard", 7, common.NewGetRequest("k")},
		{"lock request on store shard", storeShard, common.NewAcquireRequest("k", 1)},
		{"store request on lock shard", lockShard, common.NewGetRequest("k")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, srv, ser, tc.shard, tc.req)
			if resp.MsgType != common.MsgTError || resp.Err == "" {
				t.Errorf("want error response, got %+v", resp)
			}
		})
	}

	var resp common.Message
	if err := ser.Deserialize(srv.Handle(storeShard, []byte{1}), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.MsgType != common.MsgTError {
		t.Errorf("garbage request: want error response, got %+v", resp)
	}
}

func TestPingAllShards(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	srv := newTestServer(t, &idleTransport{}, ser)
	for _, shard := range testShards {
		if resp := call(t, srv, ser, shard.ShardID, common.NewPingRequest()); !resp.Ok {
			t.Errorf("shard %d: ping failed: %+v", shard.ShardID, resp)
		}
	}
}

func TestNewRPCServerRejectsDuplicates(t *testing.T) {
	conf := common.ServerConfig{Shards: []common.ServerShard{
		{ShardID: 1, Type: common.ShardTypeLocalIStore},
		{ShardID: 1, Type: common.ShardTypeLocalILockManager},
	}}
	if _, err := NewRPCServer(conf, &idleTransport{}, serializer.NewJSONSerializer()); err == nil {
		t.Fatal("expected error for duplicate shard IDs")
	}
}

// --------------------------------------------------------------------------
// End to end over real transports
// --------------------------------------------------------------------------

type stack struct {
	endpoint  string
	newClient func() transport.IRPCClientTransport
}

func startStream(t *testing.T, tr transport.IRPCServerTransport, endpoint string, ser serializer.IRPCSerializer) {
	t.Helper()
	srv := newTestServer(t, tr, ser)
	srv.config.Transport = common.ServerTransportConfig{Endpoint: endpoint, WorkersPerConn: 4}

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})
}

func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func stacks(t *testing.T, ser serializer.IRPCSerializer) map[string]func(t *testing.T) stack {
	return map[string]func(t *testing.T) stack{
		"unix": func(t *testing.T) stack {
			path := filepath.Join(t.TempDir(), "cache.sock")
			startStream(t, unix.NewUnixServerTransport(), path, ser)
			return stack{path, unix.NewUnixClientTransport}
		},
		"tcp": func(t *testing.T) stack {
			addr := freeTCPAddr(t)
			startStream(t, tcp.NewTCPServerTransport(), addr, ser)
			return stack{addr, tcp.NewTCPClientTransport}
		},
		"http": func(t *testing.T) stack {
			ht := http.NewHttpServerTransport()
			newTestServer(t, ht, ser)
			ts := httptest.NewServer(ht.Handler())
			t.Cleanup(ts.Close)
			return stack{ts.URL, http.NewHttpClientTransport}
		},
	}
}

// dialCache waits until the server accepts connections
func dialCache(t *testing.T, st stack, ser serializer.IRPCSerializer) *cache.Client {
	t.Helper()
	conf := common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{st.endpoint},
			RetryCount:             1,
			ConnectionsPerEndpoint: 2,
		},
	}
	dial := client.NewCacheDialer(conf, storeShard, lockShard, st.newClient, ser)

	deadline := time.Now().Add(5 * time.Second)
	for {
		backend, err := dial()
		if err == nil {
			err = backend.Ping()
		}
		if err == nil {
			_ = backend.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server at %s not reachable: %v", st.endpoint, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	c := cache.New(cache.Config{Prefix: "t:", LockTimeout: time.Second, LockExpire: 5 * time.Second}, dial)
	t.Cleanup(func() { _ = c.Close() })
	if state := c.Connect(); state != cache.StateConnected {
		t.Fatalf("cache state = %s", state)
	}
	return c
}

func TestEndToEnd(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	for name, start := range stacks(t, ser) {
		t.Run(name, func(t *testing.T) {
			c := dialCache(t, start(t), ser)

			c.Set("users/alice", map[string]string{"name": "Alice"}, time.Minute)
			var got map[string]string
			if !c.GetInto("users/alice", &got) || got["name"] != "Alice" {
				t.Fatalf("GetInto = %v", got)
			}

			c.Delete("users/alice")
			if _, ok := c.Get("users/alice"); ok {
				t.Error("entry survived Delete")
			}

			lease, err := c.Lock("users/alice", 0, 0)
			if err != nil || !lease.Held() {
				t.Fatalf("Lock: held=%v err=%v", lease.Held(), err)
			}
			if _, err := c.Lock("users/alice", 20*time.Millisecond, 0); !errors.Is(err, lockmgr.ErrLockTimeout) {
				t.Errorf("second Lock: want ErrLockTimeout, got %v", err)
			}
			c.Unlock(lease)
			second, err := c.Lock("users/alice", 0, 0)
			if err != nil || !second.Held() {
				t.Fatalf("Lock after Unlock: held=%v err=%v", second.Held(), err)
			}
			c.Unlock(second)
		})
	}
}

func TestRPCStoreInfo(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	st := stacks(t, ser)["unix"](t)
	conf := common.ClientConfig{TimeoutSecond: 5, Transport: common.ClientTransportConfig{Endpoints: []string{st.endpoint}}}

	var s *client.RPCStore
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		if s, err = client.NewRPCStore(storeShard, conf, st.newClient(), ser); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer s.Close()

	if err := s.SetE("a", []byte{}, 60_000, 60_000); err != nil {
		t.Fatal(err)
	}
	val, ok, err := s.Get("a")
	if err != nil || !ok || val == nil || len(val) != 0 {
		t.Errorf("Get empty value = %v %v %v", val, ok, err)
	}

	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Entries != 1 {
		t.Errorf("Entries = %d, want 1", info.Entries)
	}

	var remote *client.RemoteError
	bad, _ := client.NewRPCStore(9, conf, st.newClient(), ser)
	defer bad.Close()
	if _, _, err := bad.Get("a"); !errors.As(err, &remote) {
		t.Errorf("unknown shard: want RemoteError, got %v", err)
	}
}

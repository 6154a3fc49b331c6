// Package client talks to a cache server over rpc.
//
// RPCStore implements store.IStore and RPCLockMgr implements
// lockmgr.ILockManager for one remote shard each. NewCacheDialer combines
// both into a cache.Dialer:
//
//	conf := common.ClientConfig{
//		TimeoutSecond: 5,
//		Transport: common.ClientTransportConfig{
//			Endpoints:  []string{"localhost:8080"},
//			RetryCount: 2,
//		},
//	}
//	dial := client.NewCacheDialer(conf, 100, 200, tcp.NewTCPClientTransport, serializer.NewBinarySerializer())
//	c := cache.New(cache.Config{Prefix: "docs:"}, dial)
//
// Errors reported by the server are returned as *RemoteError.
package client

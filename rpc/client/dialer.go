package client

import (
	"errors"

	"github.com/ValentinKolb/jsondb/lib/cache"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
)

// NewCacheDialer returns a cache.Dialer connecting to a remote cache server.
// Values go to storeShard. Locks go to lockShard, 0 disables remote locking.
// Each shard gets its own transport from newTransport.
func NewCacheDialer(
	config common.ClientConfig,
	storeShard, lockShard uint64,
	newTransport func() transport.IRPCClientTransport,
	s serializer.IRPCSerializer,
) cache.Dialer {
	return func() (cache.Backend, error) {
		st, err := NewRPCStore(storeShard, config, newTransport(), s)
		if err != nil {
			return cache.Backend{}, err
		}
		backend := cache.Backend{
			Store: st,
			Ping:  st.Ping,
			Close: st.Close,
		}
		if lockShard == 0 {
			return backend, nil
		}

		locks, err := NewRPCLockMgr(lockShard, config, newTransport(), s)
		if err != nil {
			_ = st.Close()
			return cache.Backend{}, err
		}
		backend.Locks = locks
		backend.Ping = func() error {
			return errors.Join(st.Ping(), locks.Ping())
		}
		backend.Close = func() error {
			return errors.Join(st.Close(), locks.Close())
		}
		return backend, nil
	}
}

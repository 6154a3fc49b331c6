package client

import (
	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
)

// RPCLockMgr is a lockmgr.ILockManager served by a remote shard.
type RPCLockMgr struct {
	rpcClientAdapter
}

var _ lockmgr.ILockManager = (*RPCLockMgr)(nil)

// NewRPCLockMgr connects t and returns a lock manager for shardId.
func NewRPCLockMgr(
	shardId uint64,
	config common.ClientConfig,
	t transport.IRPCClientTransport,
	s serializer.IRPCSerializer,
) (*RPCLockMgr, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	return &RPCLockMgr{rpcClientAdapter{shardId: shardId, transport: t, serializer: s}}, nil
}

func (i *RPCLockMgr) AcquireLock(key string, timeout uint64) (bool, []byte, error) {
	resp, err := i.invoke(common.NewAcquireRequest(key, timeout))
	if err != nil {
		return false, nil, err
	}
	return resp.Ok, resp.Value, nil
}

func (i *RPCLockMgr) ReleaseLock(key string, ownerID []byte) (bool, error) {
	resp, err := i.invoke(common.NewReleaseRequest(key, ownerID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

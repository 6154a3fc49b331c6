package server

import (
	"fmt"

	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/lib/store"
	"github.com/ValentinKolb/jsondb/rpc/common"
)

// IRPCServerAdapter turns requests into calls on the backend of one shard.
// Errors are reported inside the response message.
type IRPCServerAdapter interface {
	Handle(req *common.Message) (resp *common.Message)
}

// --------------------------------------------------------------------------
// store.IStore
// --------------------------------------------------------------------------

// NewIStoreServerAdapter serves key-value requests from s
func NewIStoreServerAdapter(s store.IStore) IRPCServerAdapter {
	return &iStoreServerAdapter{store: s}
}

type iStoreServerAdapter struct {
	store store.IStore
}

func (a *iStoreServerAdapter) Handle(req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTKVSet:
		return common.NewResponse(req.MsgType, a.store.Set(req.Key, req.Value))
	case common.MsgTKVSetE:
		return common.NewResponse(req.MsgType, a.store.SetE(req.Key, req.Value, req.ExpireIn, req.DeleteIn))
	case common.MsgTKVSetEIfUnset:
		return common.NewResponse(req.MsgType, a.store.SetEIfUnset(req.Key, req.Value, req.ExpireIn, req.DeleteIn))
	case common.MsgTKVExpire:
		return common.NewResponse(req.MsgType, a.store.Expire(req.Key))
	case common.MsgTKVDelete:
		return common.NewResponse(req.MsgType, a.store.Delete(req.Key))
	case common.MsgTKVGet:
		val, ok, err := a.store.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := a.store.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTKVInfo:
		info, err := a.store.GetDBInfo()
		return common.NewInfoResponse(info, err)
	case common.MsgTPing:
		return common.NewPingResponse()
	default:
		return common.NewErrorResponse(fmt.Sprintf("store shard: unsupported message type %s", req.MsgType))
	}
}

// --------------------------------------------------------------------------
// lockmgr.ILockManager
// --------------------------------------------------------------------------

// NewLockManagerServerAdapter serves lock requests from locks
func NewLockManagerServerAdapter(locks lockmgr.ILockManager) IRPCServerAdapter {
	return &lockMgrServerAdapter{locks: locks}
}

type lockMgrServerAdapter struct {
	locks lockmgr.ILockManager
}

func (a *lockMgrServerAdapter) Handle(req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTLCKAcquire:
		ok, ownerID, err := a.locks.AcquireLock(req.Key, req.DeleteIn)
		return common.NewAcquireResponse(ok, ownerID, err)
	case common.MsgTLCKRelease:
		ok, err := a.locks.ReleaseLock(req.Key, req.Value)
		return common.NewReleaseResponse(ok, err)
	case common.MsgTPing:
		return common.NewPingResponse()
	default:
		return common.NewErrorResponse(fmt.Sprintf("lock shard: unsupported message type %s", req.MsgType))
	}
}

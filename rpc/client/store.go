package client

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/store"
	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
)

// RPCStore is a store.IStore served by a remote shard.
type RPCStore struct {
	rpcClientAdapter
}

var _ store.IStore = (*RPCStore)(nil)

// NewRPCStore connects t and returns a store for shardId.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	t transport.IRPCClientTransport,
	s serializer.IRPCSerializer,
) (*RPCStore, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	return &RPCStore{rpcClientAdapter{shardId: shardId, transport: t, serializer: s}}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *RPCStore) Set(key string, value []byte) error {
	_, err := i.invoke(common.NewSetRequest(key, value))
	return err
}

func (i *RPCStore) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	_, err := i.invoke(common.NewSetERequest(key, value, expireIn, deleteIn))
	return err
}

func (i *RPCStore) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) error {
	_, err := i.invoke(common.NewSetEIfUnsetRequest(key, value, expireIn, deleteIn))
	return err
}

func (i *RPCStore) Expire(key string) error {
	_, err := i.invoke(common.NewExpireRequest(key))
	return err
}

func (i *RPCStore) Delete(key string) error {
	_, err := i.invoke(common.NewDeleteRequest(key))
	return err
}

func (i *RPCStore) Get(key string) ([]byte, bool, error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	if resp.Ok && resp.Value == nil {
		// some serializers drop empty slices
		return []byte{}, true, nil
	}
	return resp.Value, resp.Ok, nil
}

func (i *RPCStore) Has(key string) (bool, error) {
	resp, err := i.invoke(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *RPCStore) GetDBInfo() (db.DatabaseInfo, error) {
	resp, err := i.invoke(common.NewInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("rpc info: decode: %w", err)
	}
	return info, nil
}

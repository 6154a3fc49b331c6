package client

import (
	"fmt"

	"github.com/ValentinKolb/jsondb/rpc/common"
	"github.com/ValentinKolb/jsondb/rpc/serializer"
	"github.com/ValentinKolb/jsondb/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// RemoteError is an error reported by the server for a request.
type RemoteError struct {
	ShardID uint64
	Type    common.MessageType
	Msg     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s on shard %d: %s", e.Type, e.ShardID, e.Msg)
}

// rpcClientAdapter holds what every rpc client needs to talk to one shard.
// Embedded by rpcStore and rpcLockMgr.
type rpcClientAdapter struct {
	shardId    uint64
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends req and decodes the response. Error responses and responses
// of an unexpected type are returned as errors.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: encode request: %w", req.MsgType, err)
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		return nil, fmt.Errorf("rpc %s on shard %d: %w", req.MsgType, a.shardId, err)
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("rpc %s: decode response: %w", req.MsgType, err)
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, &RemoteError{ShardID: a.shardId, Type: req.MsgType, Msg: resp.Err}
	}
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("rpc %s: unexpected response type %s", req.MsgType, resp.MsgType)
	}
	return resp, nil
}

// Ping checks that the shard is served.
func (a *rpcClientAdapter) Ping() error {
	_, err := a.invoke(common.NewPingRequest())
	return err
}

// Close closes the underlying transport.
func (a *rpcClientAdapter) Close() error {
	return a.transport.Close()
}

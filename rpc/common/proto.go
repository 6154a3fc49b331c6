package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is used for both requests and responses between cache clients and
// the cache server. Which fields are set depends on the message type.
type Message struct {
	MsgType MessageType `json:"msg_type"`

	Key      string `json:"key,omitempty"`      // all key and lock operations
	ExpireIn uint64 `json:"expireIn,omitempty"` // SetE, SetEIfUnset (ms)
	DeleteIn uint64 `json:"deleteIn,omitempty"` // SetE, SetEIfUnset, Acquire (ms)
	Value    []byte `json:"value,omitempty"`    // Set* requests, Get and Acquire responses, Release requests

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Get, Has, Acquire, Release responses
	Err string `json:"err,omitempty"` // empty if no error

	Meta []byte `json:"meta,omitempty"` // Info responses: JSON encoded db.DatabaseInfo
}

// errString converts err into the wire representation
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewResponse creates a response of type t carrying err.
// Used by all operations that return nothing but an error.
func NewResponse(t MessageType, err error) *Message {
	return &Message{MsgType: t, Err: errString(err)}
}

// NewErrorResponse creates a response signalling that the request could not be handled at all.
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// --------------------------------------------------------------------------
// Store requests and responses
// --------------------------------------------------------------------------

func NewSetRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTKVSet, Key: key, Value: value}
}

func NewSetERequest(key string, value []byte, expireIn, deleteIn uint64) *Message {
	return &Message{MsgType: MsgTKVSetE, Key: key, Value: value, ExpireIn: expireIn, DeleteIn: deleteIn}
}

func NewSetEIfUnsetRequest(key string, value []byte, expireIn, deleteIn uint64) *Message {
	return &Message{MsgType: MsgTKVSetEIfUnset, Key: key, Value: value, ExpireIn: expireIn, DeleteIn: deleteIn}
}

func NewExpireRequest(key string) *Message {
	return &Message{MsgType: MsgTKVExpire, Key: key}
}

func NewDeleteRequest(key string) *Message {
	return &Message{MsgType: MsgTKVDelete, Key: key}
}

func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTKVGet, Key: key}
}

func NewGetResponse(value []byte, ok bool, err error) *Message {
	return &Message{MsgType: MsgTKVGet, Value: value, Ok: ok, Err: errString(err)}
}

func NewHasRequest(key string) *Message {
	return &Message{MsgType: MsgTKVHas, Key: key}
}

func NewHasResponse(ok bool, err error) *Message {
	return &Message{MsgType: MsgTKVHas, Ok: ok, Err: errString(err)}
}

func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTKVInfo}
}

// NewInfoResponse carries info JSON encoded in Meta
func NewInfoResponse(info any, err error) *Message {
	msg := &Message{MsgType: MsgTKVInfo, Err: errString(err)}
	if err == nil {
		meta, mErr := json.Marshal(info)
		if mErr != nil {
			msg.Err = mErr.Error()
		}
		msg.Meta = meta
	}
	return msg
}

// --------------------------------------------------------------------------
// Lock requests and responses
// --------------------------------------------------------------------------

func NewAcquireRequest(key string, deleteIn uint64) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Key: key, DeleteIn: deleteIn}
}

func NewAcquireResponse(ok bool, ownerID []byte, err error) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Ok: ok, Value: ownerID, Err: errString(err)}
}

func NewReleaseRequest(key string, ownerID []byte) *Message {
	return &Message{MsgType: MsgTLCKRelease, Key: key, Value: ownerID}
}

func NewReleaseResponse(ok bool, err error) *Message {
	return &Message{MsgType: MsgTLCKRelease, Ok: ok, Err: errString(err)}
}

// --------------------------------------------------------------------------
// Control
// --------------------------------------------------------------------------

// NewPingRequest creates a health check. Every shard type answers it.
func NewPingRequest() *Message {
	return &Message{MsgType: MsgTPing}
}

func NewPingResponse() *Message {
	return &Message{MsgType: MsgTPing, Ok: true}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

const (
	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates the request could not be handled

	// IStore operations

	MsgTKVSet         // Set a key-value pair
	MsgTKVSetE        // Set a key-value pair with ttl
	MsgTKVSetEIfUnset // Set a key-value pair if not already set
	MsgTKVExpire      // Expire a key
	MsgTKVDelete      // Delete a key-value pair
	MsgTKVGet         // Get a value by key
	MsgTKVHas         // Check if a key exists
	MsgTKVInfo        // Database info

	// ILockManager operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock

	// Control

	MsgTPing // Health check
)

var msgTypeNames = map[MessageType]string{
	MsgTUnknown:       "unknown",
	MsgTSuccess:       "success",
	MsgTError:         "error",
	MsgTKVSet:         "set",
	MsgTKVSetE:        "setE",
	MsgTKVSetEIfUnset: "setEIfUnset",
	MsgTKVExpire:      "expire",
	MsgTKVDelete:      "delete",
	MsgTKVGet:         "get",
	MsgTKVHas:         "has",
	MsgTKVInfo:        "info",
	MsgTLCKAcquire:    "acquire",
	MsgTLCKRelease:    "release",
	MsgTPing:          "ping",
}

var msgTypesByName = func() map[string]MessageType {
	m := make(map[string]MessageType, len(msgTypeNames))
	for t, name := range msgTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes MessageType as a string.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses a MessageType from its string form.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := msgTypesByName[s]
	if !ok {
		return fmt.Errorf("unknown message type: %s", s)
	}
	*t = parsed
	return nil
}

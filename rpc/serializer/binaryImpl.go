package serializer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ValentinKolb/jsondb/rpc/common"
)

// NewBinarySerializer creates a serializer using a compact length prefixed format.
//
// Layout: [type:1][flags:1] followed by the fields whose flag is set, in flag order.
// Strings and byte slices are prefixed with a big endian uint32 length, integers
// are big endian uint64. Ok is encoded by its flag alone.
func NewBinarySerializer() IRPCSerializer {
	return binarySerializerImpl{}
}

type binarySerializerImpl struct{}

const (
	hasKey      byte = 1 << 0
	hasExpireIn byte = 1 << 1
	hasDeleteIn byte = 1 << 2
	hasValue    byte = 1 << 3
	hasOk       byte = 1 << 4
	hasErr      byte = 1 << 5
	hasMeta     byte = 1 << 6
)

var errShortFrame = errors.New("binary message truncated")

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := make([]byte, 2, encodedSize(msg))
	buf[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != "" {
		flags |= hasKey
		buf = appendBlob(buf, []byte(msg.Key))
	}
	if msg.ExpireIn > 0 {
		flags |= hasExpireIn
		buf = binary.BigEndian.AppendUint64(buf, msg.ExpireIn)
	}
	if msg.DeleteIn > 0 {
		flags |= hasDeleteIn
		buf = binary.BigEndian.AppendUint64(buf, msg.DeleteIn)
	}
	if msg.Value != nil {
		flags |= hasValue
		buf = appendBlob(buf, msg.Value)
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
		buf = appendBlob(buf, []byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		buf = appendBlob(buf, msg.Meta)
	}

	buf[1] = flags
	return buf, nil
}

func (binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: missing header", errShortFrame)
	}
	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := frameReader{buf: data[2:]}

	if flags&hasKey != 0 {
		key, err := r.blob("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}
	if flags&hasExpireIn != 0 {
		v, err := r.uint64("expireIn")
		if err != nil {
			return err
		}
		msg.ExpireIn = v
	}
	if flags&hasDeleteIn != 0 {
		v, err := r.uint64("deleteIn")
		if err != nil {
			return err
		}
		msg.DeleteIn = v
	}
	if flags&hasValue != 0 {
		v, err := r.blob("value")
		if err != nil {
			return err
		}
		msg.Value = append([]byte{}, v...)
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasErr != 0 {
		v, err := r.blob("err")
		if err != nil {
			return err
		}
		msg.Err = string(v)
	}
	if flags&hasMeta != 0 {
		v, err := r.blob("meta")
		if err != nil {
			return err
		}
		msg.Meta = append([]byte{}, v...)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func encodedSize(msg common.Message) int {
	size := 2
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.ExpireIn > 0 {
		size += 8
	}
	if msg.DeleteIn > 0 {
		size += 8
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}
	return size
}

func appendBlob(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// frameReader consumes fields from the body of a binary message
type frameReader struct {
	buf []byte
}

func (r *frameReader) uint64(field string) (uint64, error) {
	if len(r.buf) < 8 {
		return 0, fmt.Errorf("%w: %s", errShortFrame, field)
	}
	v := binary.BigEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v, nil
}

func (r *frameReader) blob(field string) ([]byte, error) {
	if len(r.buf) < 4 {
		return nil, fmt.Errorf("%w: %s length", errShortFrame, field)
	}
	n := binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	if uint64(len(r.buf)) < uint64(n) {
		return nil, fmt.Errorf("%w: %s data", errShortFrame, field)
	}
	v := r.buf[:n]
	r.buf = r.buf[n:]
	return v, nil
}

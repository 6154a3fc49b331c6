package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 20
	// maxFrameSize bounds the payload a peer may announce
	maxFrameSize = 64 << 20
)

// writeFrame writes one frame:
//
//	[shardID:8][requestID:8][length:4][payload:length]
//
// all integers big endian.
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(data), maxFrameSize)
	}
	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header[:], data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame. The payload is read into buf when it fits,
// otherwise a new slice is allocated. The returned payload may alias buf.
func readFrame(r io.Reader, buf []byte) (shardID, requestID uint64, data []byte, err error) {
	var header [headerSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID = binary.BigEndian.Uint64(header[:8])
	requestID = binary.BigEndian.Uint64(header[8:16])
	n := binary.BigEndian.Uint32(header[16:20])
	if n > maxFrameSize {
		return shardID, requestID, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", n, maxFrameSize)
	}

	if uint32(cap(buf)) < n {
		buf = make([]byte, n)
	}
	data = buf[:n]
	if _, err = io.ReadFull(r, data); err != nil {
		return shardID, requestID, nil, err
	}
	return shardID, requestID, data, nil
}

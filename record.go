package logbuffer

import (
	"encoding/binary"
	"fmt"
)

// headerSize is the fixed size, in bytes, of a record frame's header:
// 8 bytes type + 8 bytes timestamp + 4 bytes payload length.
const headerSize = 8 + 8 + 4

// RawType is the type tag reserved for raw, undecoded byte payloads.
const RawType uint64 = 0

// Record is one entry in the log: a type discriminator, a writer-assigned
// millisecond timestamp, the logical index the store assigned it, and the
// opaque payload bytes. Records are immutable once returned to a caller.
type Record struct {
	Index     uint64
	Type      uint64
	Timestamp int64
	Payload   []byte
}

// EncodeRecord frames typeTag, timestampMs and payload into the on-disk byte
// layout: offset 0 u64 type, offset 8 i64 timestamp, offset 16 u32 payload
// length, offset 20 payload bytes. All integers are little-endian.
func EncodeRecord(typeTag uint64, timestampMs int64, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], typeTag)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(timestampMs))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// DecodeRecord parses a full frame produced by EncodeRecord. index is not
// part of the wire format; the caller supplies it since it is the record's
// address within the store, not stored data.
func DecodeRecord(index uint64, frame []byte) (Record, error) {
	if len(frame) < headerSize {
		return Record{}, fmt.Errorf("%w: frame shorter than header (%d < %d)", ErrCorrupt, len(frame), headerSize)
	}
	typeTag := binary.LittleEndian.Uint64(frame[0:8])
	timestampMs := int64(binary.LittleEndian.Uint64(frame[8:16]))
	payloadLen := binary.LittleEndian.Uint32(frame[16:20])
	if headerSize+int(payloadLen) != len(frame) {
		return Record{}, fmt.Errorf("%w: payload length %d disagrees with frame size %d", ErrCorrupt, payloadLen, len(frame))
	}
	payload := make([]byte, payloadLen)
	copy(payload, frame[headerSize:])
	return Record{Index: index, Type: typeTag, Timestamp: timestampMs, Payload: payload}, nil
}

// PeekHeader reads only the 16 header bytes that carry type and timestamp,
// without materializing the payload. Scans that filter by time or type use
// this so they never pay to deserialize payloads they are going to discard.
func PeekHeader(frame []byte) (typeTag uint64, timestampMs int64, err error) {
	if len(frame) < 16 {
		return 0, 0, fmt.Errorf("%w: frame shorter than type+timestamp header (%d < 16)", ErrCorrupt, len(frame))
	}
	typeTag = binary.LittleEndian.Uint64(frame[0:8])
	timestampMs = int64(binary.LittleEndian.Uint64(frame[8:16]))
	return typeTag, timestampMs, nil
}

package control

// Decoders for RTMP control message payloads (types 1-6). Reads go through
// the bytebuf bounded cursor; structured result types mirror the logical
// protocol fields rather than exposing raw bytes.

import (
	"fmt"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/bytebuf"
)

// SetChunkSize represents a Type 1 Set Chunk Size message.
type SetChunkSize struct {
	Size uint32
}

// AbortMessage represents a Type 2 Abort message.
type AbortMessage struct {
	CSID uint32
}

// Acknowledgement represents a Type 3 Acknowledgement message.
type Acknowledgement struct {
	SequenceNumber uint32
}

// UserControl represents a Type 4 User Control message. Only a subset of
// event types is interpreted; unknown events keep their trailing bytes in
// RawData for the caller to decide.
type UserControl struct {
	EventType uint16
	StreamID  uint32 // events 0,1,2,4: subject stream
	Timestamp uint32 // events 6,7: ping timestamp
	RawData   []byte
}

// WindowAcknowledgementSize represents a Type 5 Window Ack Size message.
type WindowAcknowledgementSize struct {
	Size uint32
}

// SetPeerBandwidth represents a Type 6 Set Peer Bandwidth message.
type SetPeerBandwidth struct {
	Bandwidth uint32
	LimitType uint8 // 0 = Hard, 1 = Soft, 2 = Dynamic
}

// decodeU32Exact reads the single u32 payload shared by types 1, 2, 3 and 5.
func decodeU32Exact(what string, payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%s: expected 4 bytes got=%d", what, len(payload))
	}
	v, err := bytebuf.New(payload).ReadU32BE()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

// Decode decodes a control message payload (types 1-6) into a structured Go
// value. Returns an error for malformed payloads or validation failures.
func Decode(typeID uint8, payload []byte) (any, error) {
	switch typeID {
	case TypeSetChunkSize:
		v, err := decodeU32Exact("set chunk size", payload)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return nil, fmt.Errorf("set chunk size: size must be > 0")
		}
		if v&0x80000000 != 0 { // 31-bit value per spec
			return nil, fmt.Errorf("set chunk size: high bit must be 0, size=%d", v)
		}
		return &SetChunkSize{Size: v}, nil
	case TypeAbortMessage:
		v, err := decodeU32Exact("abort message", payload)
		if err != nil {
			return nil, err
		}
		return &AbortMessage{CSID: v}, nil
	case TypeAcknowledgement:
		v, err := decodeU32Exact("acknowledgement", payload)
		if err != nil {
			return nil, err
		}
		return &Acknowledgement{SequenceNumber: v}, nil
	case TypeUserControl:
		b := bytebuf.New(payload)
		ev, err := b.ReadU16BE()
		if err != nil {
			return nil, fmt.Errorf("user control: expected at least 2 bytes got=%d", len(payload))
		}
		uc := &UserControl{EventType: ev}
		switch ev {
		case UCStreamBegin, UCStreamEOF, UCStreamDry, UCStreamIsRecorded:
			if len(payload) != 6 {
				return nil, fmt.Errorf("user control event %d: expected 6 bytes got=%d", ev, len(payload))
			}
			uc.StreamID, _ = b.ReadU32BE()
		case UCPingRequest, UCPingResponse:
			if len(payload) != 6 {
				return nil, fmt.Errorf("user control ping: expected 6 bytes got=%d", len(payload))
			}
			uc.Timestamp, _ = b.ReadU32BE()
		default:
			if b.Remaining() > 0 {
				uc.RawData, _ = b.ReadBytes(b.Remaining())
			}
		}
		return uc, nil
	case TypeWindowAcknowledgement:
		v, err := decodeU32Exact("window ack size", payload)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return nil, fmt.Errorf("window ack size: must be > 0")
		}
		return &WindowAcknowledgementSize{Size: v}, nil
	case TypeSetPeerBandwidth:
		if len(payload) != 5 {
			return nil, fmt.Errorf("set peer bandwidth: expected 5 bytes got=%d", len(payload))
		}
		b := bytebuf.New(payload)
		bw, _ := b.ReadU32BE()
		lt, _ := b.ReadU8()
		if lt > LimitDynamic {
			return nil, fmt.Errorf("set peer bandwidth: invalid limit type=%d", lt)
		}
		return &SetPeerBandwidth{Bandwidth: bw, LimitType: lt}, nil
	default:
		return nil, fmt.Errorf("unsupported control message type id=%d", typeID)
	}
}

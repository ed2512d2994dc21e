package control

// Constructors for RTMP protocol control messages (types 1-6). All control
// messages ride chunk stream 2 with message stream id 0. Payloads are built
// over the bytebuf big-endian primitives.

import (
	"github.com/alxayo/go-rtmpcast/internal/rtmp/bytebuf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// RTMP protocol control message type IDs.
const (
	TypeSetChunkSize          uint8 = 1
	TypeAbortMessage          uint8 = 2
	TypeAcknowledgement       uint8 = 3
	TypeUserControl           uint8 = 4
	TypeWindowAcknowledgement uint8 = 5
	TypeSetPeerBandwidth      uint8 = 6
)

// User Control (type 4) event type IDs.
const (
	UCStreamBegin      uint16 = 0
	UCStreamEOF        uint16 = 1
	UCStreamDry        uint16 = 2
	UCSetBufferLength  uint16 = 3
	UCStreamIsRecorded uint16 = 4
	UCPingRequest      uint16 = 6
	UCPingResponse     uint16 = 7
)

// Set Peer Bandwidth limit types.
const (
	LimitHard    uint8 = 0
	LimitSoft    uint8 = 1
	LimitDynamic uint8 = 2
)

// ControlCSID is the chunk stream id protocol control messages travel on.
const ControlCSID = 2

// newControlMessage builds a *chunk.Message with standard control channel fields.
func newControlMessage(typeID uint8, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:            ControlCSID,
		Timestamp:       0,
		MessageLength:   uint32(len(payload)),
		TypeID:          typeID,
		MessageStreamID: 0,
		Payload:         payload,
	}
}

// encodeU32 builds the common 4-byte big-endian payload.
func encodeU32(typeID uint8, v uint32) *chunk.Message {
	b := bytebuf.NewSize(4)
	b.WriteU32BE(v)
	return newControlMessage(typeID, b.Bytes())
}

// EncodeSetChunkSize creates a Type 1 Set Chunk Size control message.
func EncodeSetChunkSize(size uint32) *chunk.Message {
	return encodeU32(TypeSetChunkSize, size)
}

// EncodeAbortMessage creates a Type 2 Abort control message (payload = CSID to abort).
func EncodeAbortMessage(csid uint32) *chunk.Message {
	return encodeU32(TypeAbortMessage, csid)
}

// EncodeAcknowledgement creates a Type 3 Acknowledgement control message
// carrying the received-bytes sequence number.
func EncodeAcknowledgement(seq uint32) *chunk.Message {
	return encodeU32(TypeAcknowledgement, seq)
}

// encodeUserControl builds a User Control (type 4) event with a 4-byte datum.
func encodeUserControl(event uint16, data4 uint32) *chunk.Message {
	b := bytebuf.NewSize(6)
	b.WriteU16BE(event)
	b.WriteU32BE(data4)
	return newControlMessage(TypeUserControl, b.Bytes())
}

// EncodeUserControlStreamBegin creates a Stream Begin (event 0) message.
func EncodeUserControlStreamBegin(streamID uint32) *chunk.Message {
	return encodeUserControl(UCStreamBegin, streamID)
}

// EncodeUserControlStreamEOF creates a Stream EOF (event 1) message.
func EncodeUserControlStreamEOF(streamID uint32) *chunk.Message {
	return encodeUserControl(UCStreamEOF, streamID)
}

// EncodeUserControlPingRequest creates a Ping Request (event 6) message.
func EncodeUserControlPingRequest(ts uint32) *chunk.Message {
	return encodeUserControl(UCPingRequest, ts)
}

// EncodeUserControlPingResponse creates a Ping Response (event 7) message.
func EncodeUserControlPingResponse(ts uint32) *chunk.Message {
	return encodeUserControl(UCPingResponse, ts)
}

// EncodeWindowAcknowledgementSize creates a Type 5 Window Acknowledgement Size message.
func EncodeWindowAcknowledgementSize(size uint32) *chunk.Message {
	return encodeU32(TypeWindowAcknowledgement, size)
}

// EncodeSetPeerBandwidth creates a Type 6 Set Peer Bandwidth message.
func EncodeSetPeerBandwidth(bandwidth uint32, limitType uint8) *chunk.Message {
	b := bytebuf.NewSize(5)
	b.WriteU32BE(bandwidth)
	b.WriteU8(limitType)
	return newControlMessage(TypeSetPeerBandwidth, b.Bytes())
}

// Package message holds the message-layer view of RTMP: type id constants,
// the command/data envelopes over AMF0, the bounded inbound priority queue,
// and the dispatcher that routes decoded packets to handlers.
package message

// RTMP message type IDs.
const (
	TypeSetChunkSize     uint8 = 1
	TypeAbort            uint8 = 2
	TypeAcknowledgement  uint8 = 3
	TypeUserControl      uint8 = 4
	TypeWindowAckSize    uint8 = 5
	TypeSetPeerBandwidth uint8 = 6
	TypeAudio            uint8 = 8
	TypeVideo            uint8 = 9
	TypeDataAMF3         uint8 = 15
	TypeSharedObjectAMF3 uint8 = 16
	TypeCommandAMF3      uint8 = 17
	TypeDataAMF0         uint8 = 18
	TypeSharedObjectAMF0 uint8 = 19
	TypeCommandAMF0      uint8 = 20
	TypeAggregate        uint8 = 22
)

// Conventional chunk stream ids for outbound traffic. Mandatory only for the
// control channel; the rest follow common encoder practice.
const (
	CSIDControl uint32 = 2
	CSIDCommand uint32 = 3
	CSIDAudio   uint32 = 4
	CSIDVideo   uint32 = 6
	CSIDData    uint32 = 8
)

// IsControl reports whether the type id is a protocol control message (1-6).
func IsControl(typeID uint8) bool {
	return typeID >= TypeSetChunkSize && typeID <= TypeSetPeerBandwidth
}

// IsCommand reports whether the type id is an AMF0/AMF3 command message.
func IsCommand(typeID uint8) bool {
	return typeID == TypeCommandAMF0 || typeID == TypeCommandAMF3
}

// IsData reports whether the type id is an AMF0/AMF3 data message.
func IsData(typeID uint8) bool {
	return typeID == TypeDataAMF0 || typeID == TypeDataAMF3
}

// Queue priorities per message class; higher dequeues first. Control is
// intentionally preemptive over in-flight media.
const (
	PriorityControl = 10
	PriorityCommand = 8
	PriorityData    = 6
	PriorityAudio   = 4
	PriorityVideo   = 2
	PriorityOther   = 1
)

// Priority maps a message type id to its queue priority.
func Priority(typeID uint8) int {
	switch {
	case IsControl(typeID):
		return PriorityControl
	case IsCommand(typeID):
		return PriorityCommand
	case IsData(typeID):
		return PriorityData
	case typeID == TypeAudio:
		return PriorityAudio
	case typeID == TypeVideo:
		return PriorityVideo
	default:
		return PriorityOther
	}
}

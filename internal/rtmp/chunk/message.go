package chunk

// Message represents a fully reassembled RTMP message (post-dechunking) or a
// message about to be fragmented by the Writer. CSID is local routing state
// only; it is carried in chunk basic headers, never in the message layer.
// Messages are treated as immutable once assembled by the reader or built by a
// handler; fan-out paths that need a different MessageStreamID clone first.
type Message struct {
	CSID            uint32
	Timestamp       uint32
	MessageLength   uint32
	TypeID          uint8
	MessageStreamID uint32
	Payload         []byte
}

// Clone returns a deep copy of the message (payload included).
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Payload = append([]byte(nil), m.Payload...)
	return &c
}

// CloneForStream returns a copy of the message re-headered onto the given
// message stream id. All other header fields and the payload bytes are
// preserved; the payload slice is shared (fan-out consumers must not mutate).
func (m *Message) CloneForStream(streamID uint32) *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.MessageStreamID = streamID
	return &c
}

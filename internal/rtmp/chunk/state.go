package chunk

// Per-CSID chunk stream state: the delta base for compressed headers plus the
// progressive message assembly buffer. The reader keeps one of these per
// chunk-stream-id, created lazily on first sighting and destroyed with the
// connection.
//
// Invariants:
//   - BytesRemaining()==0 iff no message is in progress.
//   - While assembling, len(buffer) + BytesRemaining() == LastMsgLength.
//   - An FMT3 header is only legal when a previous header is cached for the
//     same CSID (continuation, or an identical-header new message).

import (
	"fmt"

	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
)

// ChunkStreamState holds rolling state for a single chunk stream (CSID).
type ChunkStreamState struct {
	CSID            uint32
	LastTimestamp   uint32 // absolute timestamp of the current/last message
	LastMsgLength   uint32
	LastMsgTypeID   uint8
	LastMsgStreamID uint32

	buffer        []byte
	bytesReceived uint32
	inProgress    bool
	seenHeader    bool // at least one FMT0/1/2 applied on this CSID
}

// ResetBuffer clears the assembly buffer but keeps header context (used after
// message extraction and on Abort).
func (s *ChunkStreamState) ResetBuffer() {
	if s == nil {
		return
	}
	s.buffer = s.buffer[:0]
	s.bytesReceived = 0
	s.inProgress = false
}

// Abort discards any partially assembled message (Abort control message
// semantics). Header context survives so later compressed headers still work.
func (s *ChunkStreamState) Abort() { s.ResetBuffer() }

// InProgress reports whether a message is partially assembled.
func (s *ChunkStreamState) InProgress() bool { return s != nil && s.inProgress }

// ApplyHeader applies a parsed ChunkHeader to the state, updating the delta
// base and (for FMT0/1/2, or FMT3 with no in-flight message) starting a new
// message assembly. For an FMT3 continuation it validates continuity.
func (s *ChunkStreamState) ApplyHeader(h *ChunkHeader) error {
	if h == nil {
		return protoerr.NewChunkError("state.apply_header", fmt.Errorf("nil header"))
	}
	if s.CSID == 0 { // first use, bind CSID
		s.CSID = h.CSID
	}
	if s.CSID != h.CSID {
		return protoerr.NewChunkError("state.apply_header", fmt.Errorf("csid mismatch: have %d want %d", s.CSID, h.CSID))
	}
	if s.inProgress && h.FMT != fmt3 {
		return protoerr.NewChunkError("state.apply_header", fmt.Errorf("FMT%d while message in progress on csid %d", h.FMT, h.CSID))
	}
	switch h.FMT {
	case fmt0: // full header, absolute timestamp
		s.LastTimestamp = h.Timestamp
		s.LastMsgLength = h.MessageLength
		s.LastMsgTypeID = h.MessageTypeID
		s.LastMsgStreamID = h.MessageStreamID
		s.startMessage()
	case fmt1: // delta + length + type (reuse stream id)
		// FMT1 can legally open a CSID when the peer assumes stream id 0 (the
		// command stream); treat the first delta as absolute in that case.
		if s.seenHeader {
			s.LastTimestamp += h.Timestamp
		} else {
			s.LastTimestamp = h.Timestamp
			s.LastMsgStreamID = 0
		}
		s.LastMsgLength = h.MessageLength
		s.LastMsgTypeID = h.MessageTypeID
		s.startMessage()
	case fmt2: // delta only (reuse length, type, stream id)
		if !s.seenHeader || s.LastMsgLength == 0 {
			return protoerr.NewChunkError("state.apply_header", fmt.Errorf("FMT2 without prior state on csid %d", h.CSID))
		}
		s.LastTimestamp += h.Timestamp
		s.startMessage()
	case fmt3:
		if s.inProgress {
			// Continuation chunk; no field changes.
			return nil
		}
		// FMT3 opening a new message: every header field matches the delta
		// base exactly, including the timestamp.
		if !s.seenHeader || s.LastMsgLength == 0 {
			return protoerr.NewChunkError("state.apply_header", fmt.Errorf("FMT3 without prior header on csid %d", h.CSID))
		}
		s.startMessage()
	default:
		return protoerr.NewChunkError("state.apply_header", fmt.Errorf("unsupported fmt %d", h.FMT))
	}
	return nil
}

func (s *ChunkStreamState) startMessage() {
	s.ResetBuffer()
	s.inProgress = true
	s.seenHeader = true
}

// AppendChunkData appends payload bytes for the current in-progress message.
// Returns (complete, *Message, error). When complete, the state's buffer is
// reset for the next message while the delta base persists.
func (s *ChunkStreamState) AppendChunkData(data []byte) (bool, *Message, error) {
	if !s.inProgress {
		return false, nil, protoerr.NewChunkError("state.append", fmt.Errorf("no active message on csid %d", s.CSID))
	}
	if s.bytesReceived+uint32(len(data)) > s.LastMsgLength {
		return false, nil, protoerr.NewChunkError("state.append", fmt.Errorf("overflow: have %d + %d > %d", s.bytesReceived, len(data), s.LastMsgLength))
	}
	if s.buffer == nil && s.LastMsgLength > 0 {
		s.buffer = make([]byte, 0, s.LastMsgLength)
	}
	s.buffer = append(s.buffer, data...)
	s.bytesReceived += uint32(len(data))
	if s.bytesReceived == s.LastMsgLength {
		msg := &Message{
			CSID:            s.CSID,
			Timestamp:       s.LastTimestamp,
			MessageLength:   s.LastMsgLength,
			TypeID:          s.LastMsgTypeID,
			MessageStreamID: s.LastMsgStreamID,
			Payload:         append([]byte(nil), s.buffer...),
		}
		s.ResetBuffer()
		return true, msg, nil
	}
	return false, nil, nil
}

// BytesRemaining returns the number of bytes still needed for the in-progress
// message (0 when idle).
func (s *ChunkStreamState) BytesRemaining() uint32 {
	if !s.inProgress || s.bytesReceived >= s.LastMsgLength {
		return 0
	}
	return s.LastMsgLength - s.bytesReceived
}

package chunk

// Dechunker: reassembles RTMP messages from an interleaved stream of chunks,
// honoring per-CSID state, header compression, extended timestamps and dynamic
// inbound chunk size changes.
//
// Design goals:
//   - Single pass streaming: no buffering beyond the current chunk and the
//     in-flight message buffers.
//   - Stateful per CSID via ChunkStreamState (state.go).
//   - Minimal allocations: scratch payload buffer drawn from bufpool.
//
// Error model: returns *errors.ChunkError wrapping underlying IO/parse/state
// issues. io.EOF passes through only when hit before a new header starts.

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/alxayo/go-rtmpcast/internal/bufpool"
	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
)

// Reader converts a byte stream of RTMP chunks into complete Messages.
// Not safe for concurrent use; expected usage is a single read loop goroutine.
type Reader struct {
	br         io.Reader
	chunkSize  uint32
	states     map[uint32]*ChunkStreamState
	prevHeader map[uint32]*ChunkHeader
	scratch    []byte
	pending    []byte // bytes consumed while disambiguating an optional FMT3 extended timestamp
}

// NewReader creates a dechunker with the provided initial inbound chunk size
// (protocol default 128 when zero).
func NewReader(r io.Reader, chunkSize uint32) *Reader {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{
		br:         r,
		chunkSize:  chunkSize,
		states:     make(map[uint32]*ChunkStreamState),
		prevHeader: make(map[uint32]*ChunkHeader),
	}
}

// SetChunkSize overrides the inbound chunk size; takes effect at the next
// message boundary, never mid-message (callers invoke between ReadMessage
// calls, and the inline control handling below applies it only on a complete
// Set Chunk Size message).
func (r *Reader) SetChunkSize(size uint32) {
	if size >= MinChunkSize && size <= MaxChunkSize {
		r.chunkSize = size
		if r.scratch != nil {
			bufpool.Put(r.scratch)
			r.scratch = nil
		}
	}
}

// ChunkSize returns the current inbound chunk size.
func (r *Reader) ChunkSize() uint32 { return r.chunkSize }

// Abort discards the in-progress message for the given csid (Abort control
// message semantics). Unknown csids are a no-op.
func (r *Reader) Abort(csid uint32) {
	if st := r.states[csid]; st != nil {
		st.Abort()
	}
}

// nextHeader parses the next chunk header using the stored previous header for
// the CSID (required for FMT2 inheritance and FMT3 continuation).
func (r *Reader) nextHeader() (*ChunkHeader, error) {
	fmtVal, csid, consumed, err := parseBasicHeader(r.br)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, protoerr.NewChunkError("reader.basic_header", err)
	}

	prev := r.prevHeader[csid]
	h := &ChunkHeader{FMT: fmtVal, CSID: csid, headerBytes: consumed}

	switch fmtVal {
	case fmt0:
		var mh [11]byte
		if _, err = io.ReadFull(r.br, mh[:]); err != nil {
			return nil, protoerr.NewChunkError("reader.message_header.fmt0", err)
		}
		h.headerBytes += 11
		ts := readUint24(mh[0:3])
		h.Timestamp = ts
		h.MessageLength = readUint24(mh[3:6])
		h.MessageTypeID = mh[6]
		h.MessageStreamID = binary.LittleEndian.Uint32(mh[7:11])
		if ts == extendedTimestampMarker {
			if err := r.readExtended(h); err != nil {
				return nil, err
			}
		}
	case fmt1:
		var mh [7]byte
		if _, err = io.ReadFull(r.br, mh[:]); err != nil {
			return nil, protoerr.NewChunkError("reader.message_header.fmt1", err)
		}
		h.headerBytes += 7
		delta := readUint24(mh[0:3])
		h.Timestamp = delta
		h.IsDelta = true
		h.MessageLength = readUint24(mh[3:6])
		h.MessageTypeID = mh[6]
		if prev != nil {
			h.MessageStreamID = prev.MessageStreamID
		}
		if delta == extendedTimestampMarker {
			if err := r.readExtended(h); err != nil {
				return nil, err
			}
		}
	case fmt2:
		var mh [3]byte
		if _, err = io.ReadFull(r.br, mh[:]); err != nil {
			return nil, protoerr.NewChunkError("reader.message_header.fmt2", err)
		}
		h.headerBytes += 3
		delta := readUint24(mh[0:3])
		h.Timestamp = delta
		h.IsDelta = true
		if prev != nil {
			h.MessageLength = prev.MessageLength
			h.MessageTypeID = prev.MessageTypeID
			h.MessageStreamID = prev.MessageStreamID
		}
		if delta == extendedTimestampMarker {
			if err := r.readExtended(h); err != nil {
				return nil, err
			}
		}
	case fmt3:
		if prev == nil {
			return nil, protoerr.NewChunkError("reader.message_header.fmt3", fmt.Errorf("missing previous header for csid %d", csid))
		}
		*h = *prev
		h.FMT = 3
		h.headerBytes = consumed
		// Encoders disagree on whether FMT3 chunks of an extended-timestamp
		// message repeat the 4-byte field. Accept both: peek 4 bytes and keep
		// them as payload when they do not echo the expected timestamp value.
		if prev.HasExtendedTimestamp {
			var ext [4]byte
			if _, err = io.ReadFull(r.br, ext[:]); err != nil {
				return nil, protoerr.NewChunkError("reader.extended_timestamp.fmt3", err)
			}
			val := binary.BigEndian.Uint32(ext[:])
			if val == prev.ExtendedTimestampValue {
				h.headerBytes += 4
			} else {
				r.pending = append(r.pending[:0], ext[:]...)
			}
		}
	default:
		return nil, protoerr.NewChunkError("reader.message_header", fmt.Errorf("unsupported fmt %d", fmtVal))
	}
	return h, nil
}

// readExtended consumes the 4-byte extended timestamp and folds the value into
// the header (replacing the 0xFFFFFF marker).
func (r *Reader) readExtended(h *ChunkHeader) error {
	var ext [4]byte
	if _, err := io.ReadFull(r.br, ext[:]); err != nil {
		return protoerr.NewChunkError("reader.extended_timestamp", err)
	}
	h.headerBytes += 4
	h.HasExtendedTimestamp = true
	val := binary.BigEndian.Uint32(ext[:])
	h.ExtendedTimestampValue = val
	h.Timestamp = val
	return nil
}

// ReadMessage blocks until the next complete RTMP message is reassembled or an
// error occurs. Set Chunk Size (type 1) and Abort (type 2) protocol control
// messages are applied to the dechunker inline, at the message boundary, and
// still returned to the caller for dispatch.
func (r *Reader) ReadMessage() (*Message, error) {
	for {
		h, err := r.nextHeader()
		if err != nil {
			return nil, err
		}
		csid := h.CSID
		st := r.states[csid]
		if st == nil {
			st = &ChunkStreamState{CSID: csid}
			r.states[csid] = st
		}
		if err = st.ApplyHeader(h); err != nil {
			return nil, err
		}
		// Store the applied header (absolute timestamp) as the delta base.
		base := *h
		base.Timestamp = st.LastTimestamp
		r.prevHeader[csid] = &base

		remaining := st.BytesRemaining()
		if remaining == 0 { // zero-length message
			complete, msg, err := st.AppendChunkData(nil)
			if err != nil {
				return nil, err
			}
			if complete {
				r.applyInlineControl(msg)
				return msg, nil
			}
			continue
		}
		readLen := remaining
		if readLen > r.chunkSize {
			readLen = r.chunkSize
		}
		buf, err := r.fillChunk(int(readLen))
		if err != nil {
			return nil, err
		}
		complete, msg, err := st.AppendChunkData(buf)
		if err != nil {
			return nil, err
		}
		if complete {
			r.applyInlineControl(msg)
			return msg, nil
		}
		// Loop for the next header; interleaving on other CSIDs is naturally
		// supported because we restart header parsing.
	}
}

// fillChunk reads readLen payload bytes, consuming any pending bytes left over
// from extended-timestamp disambiguation first.
func (r *Reader) fillChunk(readLen int) ([]byte, error) {
	if cap(r.scratch) < readLen {
		if r.scratch != nil {
			bufpool.Put(r.scratch)
		}
		r.scratch = bufpool.Get(readLen)
	}
	buf := r.scratch[:readLen]
	off := 0
	if len(r.pending) > 0 {
		off = copy(buf, r.pending)
		r.pending = r.pending[off:]
	}
	if off < readLen {
		if _, err := io.ReadFull(r.br, buf[off:]); err != nil {
			return nil, protoerr.NewChunkError("reader.read_chunk", err)
		}
	}
	return buf, nil
}

// applyInlineControl inspects a complete message for Set Chunk Size / Abort
// and applies the effect immediately so framing stays consistent.
func (r *Reader) applyInlineControl(msg *Message) {
	if msg == nil || msg.MessageStreamID != 0 {
		return
	}
	switch msg.TypeID {
	case 1: // Set Chunk Size
		if len(msg.Payload) >= 4 {
			v := binary.BigEndian.Uint32(msg.Payload[:4]) &^ 0x80000000
			if v >= MinChunkSize && v <= MaxChunkSize {
				r.SetChunkSize(v)
			}
		}
	case 2: // Abort
		if len(msg.Payload) >= 4 {
			r.Abort(binary.BigEndian.Uint32(msg.Payload[:4]))
		}
	}
}

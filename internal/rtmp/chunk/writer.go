package chunk

// Chunker: fragments outbound Messages into chunks, choosing the tightest
// header format the per-CSID delta base allows:
//
//	FMT3 when timestamp, length, type and stream id all match the base exactly
//	FMT2 when length, type and stream id match (delta timestamp)
//	FMT1 when only the stream id matches
//	FMT0 otherwise, when no base exists, or when the timestamp went backwards
//
// Only the first chunk of a message bears the message header; continuation
// chunks use FMT3 on the same CSID. Outbound ordering per CSID is strictly
// FIFO; the delta compression depends on it.

import (
	"errors"
	"fmt"
	"io"

	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
)

// Writer emits RTMP chunks for outbound messages. Not concurrency-safe;
// expected usage is a single write goroutine per connection.
type Writer struct {
	w           io.Writer
	chunkSize   uint32
	lastHeaders map[uint32]*ChunkHeader // delta base per CSID (absolute timestamps)
}

// NewWriter creates a new chunk Writer (chunk size defaults to 128 when zero).
func NewWriter(w io.Writer, chunkSize uint32) *Writer {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{
		w:           w,
		chunkSize:   chunkSize,
		lastHeaders: make(map[uint32]*ChunkHeader),
	}
}

// SetChunkSize updates the outbound chunk size (validated to protocol bounds).
// Callers must emit the corresponding Set Chunk Size control message first.
func (w *Writer) SetChunkSize(size uint32) {
	if size >= MinChunkSize && size <= MaxChunkSize {
		w.chunkSize = size
	}
}

// ChunkSize returns the current outbound chunk size.
func (w *Writer) ChunkSize() uint32 { return w.chunkSize }

// selectFmt picks the tightest legal fmt for msg given the delta base.
// Returns the fmt and the timestamp field value (absolute for FMT0, delta
// otherwise).
func selectFmt(msg *Message, prev *ChunkHeader) (uint8, uint32) {
	if prev == nil || msg.Timestamp < prev.Timestamp {
		return fmt0, msg.Timestamp
	}
	delta := msg.Timestamp - prev.Timestamp
	switch {
	case msg.MessageStreamID != prev.MessageStreamID:
		return fmt0, msg.Timestamp
	case msg.MessageLength != prev.MessageLength || msg.TypeID != prev.MessageTypeID:
		return fmt1, delta
	case delta != 0:
		return fmt2, delta
	case msg.Timestamp >= extendedTimestampMarker:
		// FMT3 would make the repeated extended timestamp ambiguous with the
		// payload for readers; a zero-delta FMT2 is unambiguous.
		return fmt2, 0
	default:
		return fmt3, 0
	}
}

// WriteMessage fragments and writes a full RTMP message as one or more chunks.
func (w *Writer) WriteMessage(msg *Message) error {
	if w == nil || w.w == nil {
		return errors.New("writer: nil underlying writer")
	}
	if msg == nil {
		return errors.New("writer: nil message")
	}
	if msg.MessageLength == 0 {
		msg.MessageLength = uint32(len(msg.Payload))
	}
	if int(msg.MessageLength) != len(msg.Payload) {
		return fmt.Errorf("writer: payload length %d != declared %d", len(msg.Payload), msg.MessageLength)
	}
	if msg.MessageLength > MaxMessageLength {
		// The 24-bit length field cannot frame it; truncating would corrupt
		// the stream for the peer.
		return protoerr.NewChunkError("writer.message_length", fmt.Errorf("length %d exceeds 24-bit field", msg.MessageLength))
	}
	if msg.CSID < 2 {
		return fmt.Errorf("writer: reserved csid %d", msg.CSID)
	}
	cs := w.chunkSize

	prev := w.lastHeaders[msg.CSID]
	selectedFmt, tsField := selectFmt(msg, prev)

	first := &ChunkHeader{
		FMT:             selectedFmt,
		CSID:            msg.CSID,
		Timestamp:       tsField,
		MessageLength:   msg.MessageLength,
		MessageTypeID:   msg.TypeID,
		MessageStreamID: msg.MessageStreamID,
	}
	if tsField >= extendedTimestampMarker || (selectedFmt == fmt3 && prev != nil && prev.HasExtendedTimestamp) {
		first.HasExtendedTimestamp = true
		first.ExtendedTimestampValue = tsField
	}

	hdr, err := EncodeChunkHeader(first, prev)
	if err != nil {
		return fmt.Errorf("writer: encode first header: %w", err)
	}
	toSend := msg.Payload
	if uint32(len(toSend)) > cs {
		toSend = toSend[:cs]
	}
	if err := writeChunk(w.w, hdr, toSend); err != nil {
		return err
	}
	written := uint32(len(toSend))

	// The stored delta base always carries the absolute timestamp.
	base := &ChunkHeader{
		FMT:                  selectedFmt,
		CSID:                 msg.CSID,
		Timestamp:            msg.Timestamp,
		MessageLength:        msg.MessageLength,
		MessageTypeID:        msg.TypeID,
		MessageStreamID:      msg.MessageStreamID,
		HasExtendedTimestamp: first.HasExtendedTimestamp,
		ExtendedTimestampValue: func() uint32 {
			if first.HasExtendedTimestamp {
				return tsField
			}
			return 0
		}(),
	}
	w.lastHeaders[msg.CSID] = base

	// Continuation chunks (FMT3). The extended timestamp, when in use, is
	// re-emitted on every continuation chunk (strict emit, liberal accept).
	contBase := &ChunkHeader{
		CSID:                   msg.CSID,
		Timestamp:              tsField,
		HasExtendedTimestamp:   first.HasExtendedTimestamp,
		ExtendedTimestampValue: tsField,
	}
	for written < msg.MessageLength {
		sz := msg.MessageLength - written
		if sz > cs {
			sz = cs
		}
		cont := &ChunkHeader{FMT: fmt3, CSID: msg.CSID}
		hdr3, err := EncodeChunkHeader(cont, contBase)
		if err != nil {
			return fmt.Errorf("writer: encode continuation header: %w", err)
		}
		end := written + sz
		if err := writeChunk(w.w, hdr3, msg.Payload[written:end]); err != nil {
			return err
		}
		written = end
	}
	return nil
}

// writeChunk builds a single buffer header+payload and writes it once (atomic
// chunk emission keeps interleaving sane under a shared net.Conn).
func writeChunk(w io.Writer, header []byte, payload []byte) error {
	buf := make([]byte, 0, len(header)+len(payload))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

package chunk

// Chunk header parsing and serialization: Basic Header (1-3 bytes), Message
// Header for FMT 0-3 (11/7/3/0 bytes) and the optional 4-byte extended
// timestamp. Wire-format fidelity over convenience; no allocation beyond small
// fixed-size scratch buffers.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Constants for limits / markers.
const (
	extendedTimestampMarker = 0xFFFFFF

	// MaxMessageLength is the ceiling of the 24-bit message length field.
	MaxMessageLength = 0xFFFFFF

	// Chunk size bounds negotiated via Set Chunk Size.
	MinChunkSize = 128
	MaxChunkSize = 65536

	// DefaultChunkSize is the protocol-mandated initial chunk size before any
	// Set Chunk Size exchange.
	DefaultChunkSize = 128
)

// Header FMT values.
const (
	fmt0 = 0 // full header, absolute timestamp
	fmt1 = 1 // delta + length + type, stream id reused
	fmt2 = 2 // delta only
	fmt3 = 3 // everything reused
)

// ChunkHeader represents the parsed header (not including chunk data) for a
// single RTMP chunk. For FMT 1/2 the Timestamp field holds the delta
// (IsDelta=true). For FMT 3 no new fields are transmitted; the parser copies
// the prior header if provided. HasExtendedTimestamp indicates a 4-byte
// extended timestamp followed the message header.
type ChunkHeader struct {
	FMT                    uint8
	CSID                   uint32
	Timestamp              uint32 // absolute (FMT0), delta (FMT1/2) or reused (FMT3)
	MessageLength          uint32
	MessageTypeID          uint8
	MessageStreamID        uint32
	HasExtendedTimestamp   bool
	ExtendedTimestampValue uint32
	IsDelta                bool
	headerBytes            int
}

// HeaderBytes returns the number of bytes consumed for this header (basic +
// message + extended timestamp if any).
func (h *ChunkHeader) HeaderBytes() int { return h.headerBytes }

// parseBasicHeader reads the Basic Header (1-3 bytes) returning fmt, csid and
// bytes consumed. CSID values 0 and 1 in the low six bits are escape markers
// for the 2- and 3-byte forms, not stream ids.
func parseBasicHeader(r io.Reader) (fmtVal uint8, csid uint32, n int, err error) {
	var b [1]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return 0, 0, 0, err
	}
	n = 1
	fmtVal = b[0] >> 6
	raw := b[0] & 0x3F
	switch raw {
	case 0: // 2-byte form (csid 64-319)
		var b1 [1]byte
		if _, err = io.ReadFull(r, b1[:]); err != nil {
			return 0, 0, n, fmt.Errorf("basic header (2-byte) continuation: %w", err)
		}
		n++
		csid = uint32(b1[0]) + 64
	case 1: // 3-byte form (csid 64-65599), extra bytes little-endian
		var b2 [2]byte
		if _, err = io.ReadFull(r, b2[:]); err != nil {
			return 0, 0, n, fmt.Errorf("basic header (3-byte) continuation: %w", err)
		}
		n += 2
		csid = uint32(b2[0]) + 64 + (uint32(b2[1]) << 8)
	default:
		csid = uint32(raw)
	}
	return
}

// readUint24 reads a 24-bit big-endian unsigned integer.
func readUint24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }

// writeUint24 writes a 24-bit big-endian integer into the 3-byte slice.
func writeUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// encodeBasicHeader encodes the Basic Header (1-3 bytes) into dst and returns
// the resulting slice.
func encodeBasicHeader(dst []byte, fmtVal uint8, csid uint32) ([]byte, error) {
	if fmtVal > 3 {
		return nil, fmt.Errorf("invalid fmt %d", fmtVal)
	}
	if csid < 2 { // 0 & 1 reserved
		return nil, fmt.Errorf("invalid csid %d (must be >=2)", csid)
	}
	switch {
	case csid <= 63:
		dst = append(dst, byte(fmtVal<<6)|byte(csid))
	case csid <= 319:
		dst = append(dst, byte(fmtVal<<6), byte(csid-64))
	case csid <= 65599:
		val := csid - 64
		dst = append(dst, byte(fmtVal<<6)|1, byte(val&0xFF), byte(val>>8))
	default:
		return nil, fmt.Errorf("csid %d out of range", csid)
	}
	return dst, nil
}

// EncodeChunkHeader serializes a ChunkHeader (header bytes only, no payload).
// prev provides context for FMT3 and extended-timestamp reuse semantics: a
// continuation chunk of an extended-timestamp message re-emits the 4-byte
// field (the canonical behavior; readers must accept both).
func EncodeChunkHeader(h *ChunkHeader, prev *ChunkHeader) ([]byte, error) {
	if h == nil {
		return nil, errors.New("nil header")
	}
	var (
		needExtended bool
		tsField      uint32 // value to emit (absolute or delta depending on FMT)
	)
	switch h.FMT {
	case fmt0, fmt1:
		if h.MessageLength > MaxMessageLength {
			return nil, fmt.Errorf("message length %d exceeds 24-bit field", h.MessageLength)
		}
		tsField = h.Timestamp
		needExtended = h.Timestamp >= extendedTimestampMarker
	case fmt2:
		tsField = h.Timestamp
		needExtended = h.Timestamp >= extendedTimestampMarker
	case fmt3:
		if prev == nil || prev.CSID != h.CSID {
			return nil, fmt.Errorf("FMT3 requires previous header for CSID %d", h.CSID)
		}
		needExtended = prev.Timestamp >= extendedTimestampMarker || prev.HasExtendedTimestamp
		tsField = prev.Timestamp
	default:
		return nil, fmt.Errorf("unsupported fmt %d", h.FMT)
	}

	buf := make([]byte, 0, 3+11+4) // worst case
	var err error
	buf, err = encodeBasicHeader(buf, h.FMT, h.CSID)
	if err != nil {
		return nil, err
	}

	switch h.FMT {
	case fmt0:
		mh := make([]byte, 11)
		if needExtended {
			writeUint24(mh[0:3], extendedTimestampMarker)
		} else {
			writeUint24(mh[0:3], tsField)
		}
		writeUint24(mh[3:6], h.MessageLength)
		mh[6] = h.MessageTypeID
		binary.LittleEndian.PutUint32(mh[7:11], h.MessageStreamID)
		buf = append(buf, mh...)
	case fmt1:
		mh := make([]byte, 7)
		if needExtended {
			writeUint24(mh[0:3], extendedTimestampMarker)
		} else {
			writeUint24(mh[0:3], tsField)
		}
		writeUint24(mh[3:6], h.MessageLength)
		mh[6] = h.MessageTypeID
		buf = append(buf, mh...)
	case fmt2:
		mh := make([]byte, 3)
		if needExtended {
			writeUint24(mh[0:3], extendedTimestampMarker)
		} else {
			writeUint24(mh[0:3], tsField)
		}
		buf = append(buf, mh...)
	case fmt3:
		// no message header bytes
	}

	if needExtended {
		var ext [4]byte
		binary.BigEndian.PutUint32(ext[:], tsField)
		buf = append(buf, ext[:]...)
	}
	return buf, nil
}

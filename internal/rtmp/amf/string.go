package amf

import (
	"encoding/binary"
	"fmt"
	"io"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// shortStringMax is the AMF0 short string byte limit (u16 length prefix).
const shortStringMax = 0xFFFF

// EncodeString writes an AMF0 String to w.
// Wire format: 0x02 | 2-byte big-endian length | UTF-8 bytes.
// Strings whose byte length exceeds 65535 are emitted as Long Strings (0x0C)
// instead, matching what encoders do in the wild.
func EncodeString(w io.Writer, s string) error {
	if len(s) > shortStringMax {
		return EncodeLongString(w, LongString(s))
	}
	var hdr [1 + 2]byte
	hdr[0] = markerString
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(s)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.string.write.header", err)
	}
	if len(s) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, s); err != nil {
		return amferrors.NewAMFError("encode.string.write.body", err)
	}
	return nil
}

// EncodeLongString writes an AMF0 Long String (0x0C | u32 length | bytes).
func EncodeLongString(w io.Writer, s LongString) error {
	return encodeU32String(w, markerLongString, string(s), "encode.longstring")
}

// EncodeXMLDocument writes an AMF0 XML Document (0x0F | u32 length | bytes).
func EncodeXMLDocument(w io.Writer, s XMLDocument) error {
	return encodeU32String(w, markerXMLDocument, string(s), "encode.xmldocument")
}

func encodeU32String(w io.Writer, marker byte, s string, op string) error {
	var hdr [1 + 4]byte
	hdr[0] = marker
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(s)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError(op+".write.header", err)
	}
	if len(s) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, s); err != nil {
		return amferrors.NewAMFError(op+".write.body", err)
	}
	return nil
}

// DecodeString reads an AMF0 String (short form, marker 0x02) from r.
func DecodeString(r io.Reader) (string, error) {
	if err := expectMarker(r, markerString, "decode.string"); err != nil {
		return "", err
	}
	return decodeStringBody(r)
}

// decodeStringBody reads the u16-prefixed UTF-8 payload of a short string or
// an object property key.
func decodeStringBody(r io.Reader) (string, error) {
	var ln [2]byte
	if _, err := io.ReadFull(r, ln[:]); err != nil {
		return "", amferrors.NewAMFError("decode.string.length.read", err)
	}
	l := binary.BigEndian.Uint16(ln[:])
	if l == 0 {
		return "", nil
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", amferrors.NewAMFError("decode.string.read", err)
	}
	return string(buf), nil
}

// DecodeLongString reads an AMF0 Long String (marker 0x0C) from r.
func DecodeLongString(r io.Reader) (LongString, error) {
	if err := expectMarker(r, markerLongString, "decode.longstring"); err != nil {
		return "", err
	}
	s, err := decodeLongStringBody(r)
	return LongString(s), err
}

func decodeLongStringBody(r io.Reader) (string, error) {
	var ln [4]byte
	if _, err := io.ReadFull(r, ln[:]); err != nil {
		return "", amferrors.NewAMFError("decode.longstring.length.read", err)
	}
	l := binary.BigEndian.Uint32(ln[:])
	if l == 0 {
		return "", nil
	}
	const sanityCap = 64 << 20 // reject absurd lengths before allocating
	if l > sanityCap {
		return "", amferrors.NewAMFError("decode.longstring.length", fmt.Errorf("declared length %d exceeds cap", l))
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", amferrors.NewAMFError("decode.longstring.read", err)
	}
	return string(buf), nil
}

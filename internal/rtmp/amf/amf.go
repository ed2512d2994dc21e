package amf

// AMF0 encoder/decoder.
//
// This file holds the marker table and the generic entry points; the
// type-specific wire logic lives in number.go, boolean.go, string.go,
// object.go, array.go, null.go and date.go. The generic encoder dispatches on
// Go value types, the generic decoder on the leading marker byte.
//
// Go type mapping (both directions):
//
//	float64                  <-> Number       (0x00)
//	bool                     <-> Boolean      (0x01)
//	string                   <-> String       (0x02; auto-upgraded to LongString on encode when >65535 bytes)
//	map[string]interface{}   <-> Object       (0x03)
//	nil                      <-> Null         (0x05)
//	Undefined                <-> Undefined    (0x06)
//	EcmaArray                <-> ECMA Array   (0x08)
//	[]interface{}            <-> Strict Array (0x0A)
//	time.Time                <-> Date         (0x0B)
//	LongString               <-> Long String  (0x0C)
//	Unsupported              <-> Unsupported  (0x0D)
//	XMLDocument              <-> XML Document (0x0F)
//	TypedObject              <-> Typed Object (0x10)
//
// Reserved markers (Movieclip 0x04, Reference 0x07, RecordSet 0x0E) and the
// AMF3-switch marker (0x11) produce decode errors.

import (
	"bytes"
	"fmt"
	"io"
	"time"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// AMF0 type markers.
const (
	markerNumber      = 0x00
	markerBoolean     = 0x01
	markerString      = 0x02
	markerObject      = 0x03
	markerMovieclip   = 0x04 // reserved, rejected
	markerNull        = 0x05
	markerUndefined   = 0x06
	markerReference   = 0x07 // reserved, rejected
	markerEcmaArray   = 0x08
	markerObjectEnd   = 0x09 // after the 0x00 0x00 empty-key sentinel
	markerStrictArray = 0x0A
	markerDate        = 0x0B
	markerLongString  = 0x0C
	markerUnsupported = 0x0D
	markerRecordSet   = 0x0E // reserved, rejected
	markerXMLDocument = 0x0F
	markerTypedObject = 0x10
	markerAvmPlus     = 0x11 // AMF3 switch, out of scope
)

// LongString is an AMF0 Long String (u32 length prefix). Plain Go strings
// shorter than 65536 bytes encode as the short form; decoding a wire Long
// String yields this type so the marker round-trips.
type LongString string

// XMLDocument is an AMF0 XML Document; same wire shape as LongString under
// marker 0x0F.
type XMLDocument string

// Undefined is the AMF0 Undefined value.
type Undefined struct{}

// Unsupported is the AMF0 Unsupported value.
type Unsupported struct{}

// EcmaArray is an AMF0 ECMA ("associative") array. Identical to Object on the
// wire apart from the marker and an advisory u32 count prefix.
type EcmaArray map[string]interface{}

// TypedObject is an AMF0 Typed Object: a class name followed by Object-shaped
// properties.
type TypedObject struct {
	ClassName string
	Fields    map[string]interface{}
}

// EncodeValue encodes a single AMF0 value to w using dynamic dispatch based on
// the Go type (see the mapping table above). Unsupported Go types result in an
// *errors.AMFError.
func EncodeValue(w io.Writer, v interface{}) error {
	if err := encodeAny(w, v); err != nil {
		return amferrors.NewAMFError("encode.value", err)
	}
	return nil
}

// EncodeAll encodes a sequence of AMF0 values in order and returns the bytes.
// This is convenient for building RTMP command message payloads which are a
// concatenation of multiple AMF0 values (e.g. ["connect", 1, {...}]).
func EncodeAll(values ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := EncodeValue(&buf, v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeValue decodes a single AMF0 value from r. It reads the leading marker
// byte and dispatches to the concrete decoder.
func DecodeValue(r io.Reader) (interface{}, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.value.marker.read", err)
	}
	v, err := decodeValueWithMarker(marker[0], r)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeAll decodes a concatenated sequence of AMF0 values from data until
// exhaustion. This is the workhorse for parsing command payloads.
func DecodeAll(data []byte) ([]interface{}, error) {
	r := bytes.NewReader(data)
	var out []interface{}
	for r.Len() > 0 {
		v, err := DecodeValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Marshal is a convenience alias for EncodeAll with a single value.
func Marshal(v interface{}) ([]byte, error) { return EncodeAll(v) }

// Unmarshal decodes a single AMF0 value from data. Extra trailing bytes are
// ignored (mirroring common JSON-like unmarshal semantics).
func Unmarshal(data []byte) (interface{}, error) {
	return DecodeValue(bytes.NewReader(data))
}

// encodeAny is the internal dispatcher shared by the container encoders.
func encodeAny(w io.Writer, v interface{}) error {
	switch vv := v.(type) {
	case nil:
		return EncodeNull(w)
	case float64:
		return EncodeNumber(w, vv)
	case int:
		return EncodeNumber(w, float64(vv)) // convenience for callers building payloads
	case bool:
		return EncodeBoolean(w, vv)
	case string:
		return EncodeString(w, vv)
	case LongString:
		return EncodeLongString(w, vv)
	case XMLDocument:
		return EncodeXMLDocument(w, vv)
	case Undefined:
		return EncodeUndefined(w)
	case Unsupported:
		return EncodeUnsupported(w)
	case map[string]interface{}:
		return EncodeObject(w, vv)
	case EcmaArray:
		return EncodeEcmaArray(w, vv)
	case []interface{}:
		return EncodeStrictArray(w, vv)
	case TypedObject:
		return EncodeTypedObject(w, vv)
	case time.Time:
		return EncodeDate(w, vv)
	default:
		return fmt.Errorf("unsupported AMF0 value type %T", v)
	}
}

// decodeValueWithMarker dispatches on an already-consumed marker byte,
// consuming the remaining payload from r.
func decodeValueWithMarker(marker byte, r io.Reader) (interface{}, error) {
	switch marker {
	case markerNumber:
		return decodeNumberBody(r)
	case markerBoolean:
		return decodeBooleanBody(r)
	case markerString:
		return decodeStringBody(r)
	case markerObject:
		return decodeObjectBody(r)
	case markerNull:
		return nil, nil
	case markerUndefined:
		return Undefined{}, nil
	case markerEcmaArray:
		return decodeEcmaArrayBody(r)
	case markerStrictArray:
		return decodeStrictArrayBody(r)
	case markerDate:
		return decodeDateBody(r)
	case markerLongString:
		s, err := decodeLongStringBody(r)
		return LongString(s), err
	case markerUnsupported:
		return Unsupported{}, nil
	case markerXMLDocument:
		s, err := decodeLongStringBody(r)
		return XMLDocument(s), err
	case markerTypedObject:
		return decodeTypedObjectBody(r)
	case markerMovieclip, markerReference, markerRecordSet, markerAvmPlus:
		return nil, amferrors.NewAMFError("decode.value.reserved", fmt.Errorf("reserved marker 0x%02x", marker))
	default:
		return nil, amferrors.NewAMFError("decode.value.unsupported", fmt.Errorf("unknown marker 0x%02x", marker))
	}
}

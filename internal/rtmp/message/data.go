package message

// Data envelope: (typeName, values...) notifications such as
// @setDataFrame/onMetaData and |RtmpSampleAccess. AMF3 data messages (type 15)
// are routed with an opaque payload and never interpreted here.

import (
	"fmt"

	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// Well-known data message names.
const (
	DataSetDataFrame = "@setDataFrame"
	DataOnMetaData   = "onMetaData"
	DataSampleAccess = "|RtmpSampleAccess"
)

// Data is a decoded AMF0 data message.
type Data struct {
	TypeName string
	Values   []interface{}
}

// DecodeData decodes an AMF0 data message payload (type 18).
func DecodeData(payload []byte) (*Data, error) {
	vals, err := amf.DecodeAll(payload)
	if err != nil {
		return nil, protoerr.NewProtocolError("data.decode", err)
	}
	if len(vals) == 0 {
		return nil, protoerr.NewProtocolError("data.decode", fmt.Errorf("empty data message"))
	}
	name, ok := vals[0].(string)
	if !ok {
		return nil, protoerr.NewProtocolError("data.decode", fmt.Errorf("first value must be the type name string"))
	}
	return &Data{TypeName: name, Values: vals[1:]}, nil
}

// Encode serializes the data message payload.
func (d *Data) Encode() ([]byte, error) {
	values := make([]interface{}, 0, 1+len(d.Values))
	values = append(values, d.TypeName)
	values = append(values, d.Values...)
	payload, err := amf.EncodeAll(values...)
	if err != nil {
		return nil, protoerr.NewProtocolError("data.encode", err)
	}
	return payload, nil
}

// Message wraps the encoded data in a type-18 chunk message on the data chunk
// stream for the given message stream id.
func (d *Data) Message(streamID uint32) (*chunk.Message, error) {
	payload, err := d.Encode()
	if err != nil {
		return nil, err
	}
	return &chunk.Message{
		CSID:            CSIDData,
		TypeID:          TypeDataAMF0,
		MessageStreamID: streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}

// Metadata extracts the metadata object from a @setDataFrame or onMetaData
// message. The payload is (event, [name,] value) where value is an Object or
// ECMA Array.
func (d *Data) Metadata() (map[string]interface{}, bool) {
	values := d.Values
	if d.TypeName == DataSetDataFrame && len(values) > 0 {
		// @setDataFrame wraps the real event: ("@setDataFrame", "onMetaData", {...}).
		if _, ok := values[0].(string); ok {
			values = values[1:]
		}
	} else if d.TypeName != DataOnMetaData {
		return nil, false
	}
	if len(values) == 0 {
		return nil, false
	}
	switch v := values[0].(type) {
	case map[string]interface{}:
		return v, true
	case amf.EcmaArray:
		return map[string]interface{}(v), true
	default:
		return nil, false
	}
}

// NewSampleAccess builds the |RtmpSampleAccess data message sent to players
// before media flows.
func NewSampleAccess(audio, video bool) *Data {
	return &Data{TypeName: DataSampleAccess, Values: []interface{}{audio, video}}
}

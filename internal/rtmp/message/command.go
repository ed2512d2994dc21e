package message

// Command envelope: the (name, transactionID, commandObject, arguments...)
// shape every NetConnection/NetStream command shares. AMF3 command messages
// (type 17) carry a single 0x00 prefix byte before AMF0-encoded values; it is
// stripped on decode, mirroring common interop behavior.

import (
	"fmt"

	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// Command is a decoded RTMP command message.
type Command struct {
	Name          string
	TransactionID float64
	CommandObject map[string]interface{} // nil when the wire carried Null
	Arguments     []interface{}
}

// DecodeCommand decodes an AMF0 (type 20) or AMF3 (type 17) command message
// payload.
func DecodeCommand(typeID uint8, payload []byte) (*Command, error) {
	switch typeID {
	case TypeCommandAMF0:
	case TypeCommandAMF3:
		if len(payload) == 0 || payload[0] != 0x00 {
			return nil, protoerr.NewProtocolError("command.decode", fmt.Errorf("amf3 command without leading amf0 switch byte"))
		}
		payload = payload[1:]
	default:
		return nil, protoerr.NewProtocolError("command.decode", fmt.Errorf("message type %d is not a command", typeID))
	}

	vals, err := amf.DecodeAll(payload)
	if err != nil {
		return nil, protoerr.NewProtocolError("command.decode", err)
	}
	if len(vals) < 2 {
		return nil, protoerr.NewProtocolError("command.decode", fmt.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}
	name, ok := vals[0].(string)
	if !ok {
		return nil, protoerr.NewProtocolError("command.decode", fmt.Errorf("first value must be the command name string"))
	}
	tid, ok := vals[1].(float64)
	if !ok {
		return nil, protoerr.NewProtocolError("command.decode", fmt.Errorf("second value must be the numeric transaction id"))
	}
	cmd := &Command{Name: name, TransactionID: tid}
	if len(vals) >= 3 {
		if obj, ok := vals[2].(map[string]interface{}); ok {
			cmd.CommandObject = obj
		}
		cmd.Arguments = vals[3:]
	}
	return cmd, nil
}

// Encode serializes the command as an AMF0 command message payload.
func (c *Command) Encode() ([]byte, error) {
	values := make([]interface{}, 0, 3+len(c.Arguments))
	values = append(values, c.Name, c.TransactionID)
	if c.CommandObject != nil {
		values = append(values, c.CommandObject)
	} else {
		values = append(values, nil)
	}
	values = append(values, c.Arguments...)
	payload, err := amf.EncodeAll(values...)
	if err != nil {
		return nil, protoerr.NewProtocolError("command.encode", err)
	}
	return payload, nil
}

// Message wraps the encoded command in a type-20 chunk message on the command
// chunk stream for the given message stream id.
func (c *Command) Message(streamID uint32) (*chunk.Message, error) {
	payload, err := c.Encode()
	if err != nil {
		return nil, err
	}
	return &chunk.Message{
		CSID:            CSIDCommand,
		TypeID:          TypeCommandAMF0,
		MessageStreamID: streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}

// CommandName peeks the command name of a command-class message without
// decoding the full value list.
func CommandName(typeID uint8, payload []byte) (string, error) {
	cmd, err := DecodeCommand(typeID, payload)
	if err != nil {
		return "", err
	}
	return cmd.Name, nil
}

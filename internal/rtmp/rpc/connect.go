// Package rpc parses the NetConnection/NetStream command dialogue into typed
// structs and builds the response messages: connect, createStream, publish,
// play, deleteStream, the _result/_error envelopes and onStatus notifications.
package rpc

import (
	"fmt"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
)

// ConnectCommand represents the parsed contents of a "connect" command.
type ConnectCommand struct {
	TransactionID    float64
	App              string
	FlashVer         string
	TcURL            string
	ObjectEncoding   float64                // must be 0 (AMF0)
	RawCommandObject map[string]interface{} // retained for optional fields
}

// ParseConnectCommand parses a command message assumed to contain a "connect"
// invocation. It validates required fields and returns a structured
// ConnectCommand; failures are protocol errors.
func ParseConnectCommand(msg *chunk.Message) (*ConnectCommand, error) {
	cmd, err := decodeNamed(msg, "connect")
	if err != nil {
		return nil, err
	}
	if cmd.CommandObject == nil {
		return nil, errors.NewProtocolError("connect.parse", fmt.Errorf("missing command object"))
	}

	cc := &ConnectCommand{TransactionID: cmd.TransactionID, RawCommandObject: cmd.CommandObject}
	if s, ok := cmd.CommandObject["app"].(string); ok {
		cc.App = s
	}
	if s, ok := cmd.CommandObject["flashVer"].(string); ok {
		cc.FlashVer = s
	}
	if s, ok := cmd.CommandObject["tcUrl"].(string); ok {
		cc.TcURL = s
	}
	if n, ok := cmd.CommandObject["objectEncoding"].(float64); ok {
		cc.ObjectEncoding = n
	}

	if cc.App == "" {
		return nil, errors.NewProtocolError("connect.validate", fmt.Errorf("app field required"))
	}
	if cc.ObjectEncoding != 0 { // only AMF0 is spoken here
		return nil, errors.NewProtocolError("connect.validate", fmt.Errorf("unsupported objectEncoding %.0f (only 0 supported)", cc.ObjectEncoding))
	}
	return cc, nil
}

// decodeNamed decodes a command-class message and verifies the command name.
func decodeNamed(msg *chunk.Message, want string) (*message.Command, error) {
	if msg == nil {
		return nil, errors.NewProtocolError(want+".parse", fmt.Errorf("nil message"))
	}
	if !message.IsCommand(msg.TypeID) {
		return nil, errors.NewProtocolError(want+".parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}
	cmd, err := message.DecodeCommand(msg.TypeID, msg.Payload)
	if err != nil {
		return nil, err
	}
	if cmd.Name != want {
		return nil, errors.NewProtocolError(want+".parse", fmt.Errorf("command name %q, want %q", cmd.Name, want))
	}
	return cmd, nil
}

// BuildConnectResponse builds the _result response for a successful connect:
//
//	["_result", transactionID, {fmsVer, capabilities, mode}, {level, code, description, objectEncoding}]
//
// objectEncoding 0 signals AMF0. The message rides stream 0 (connection level).
func BuildConnectResponse(transactionID float64, description string) (*chunk.Message, error) {
	props := map[string]interface{}{
		"fmsVer":       "FMS/3,5,7,7009",
		"capabilities": 31.0,
		"mode":         1.0,
	}
	info := map[string]interface{}{
		"level":          "status",
		"code":           CodeConnectSuccess,
		"description":    description,
		"objectEncoding": 0.0,
	}
	payload, err := amf.EncodeAll("_result", transactionID, props, info)
	if err != nil {
		return nil, errors.NewProtocolError("connect.response.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            message.CSIDCommand,
		TypeID:          message.TypeCommandAMF0,
		MessageStreamID: 0,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}

// BuildConnectReject builds the _error response for a rejected connect
// (authorization hook denial or disabled app).
func BuildConnectReject(transactionID float64, description string) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       "error",
		"code":        CodeConnectRejected,
		"description": description,
	}
	payload, err := amf.EncodeAll("_error", transactionID, nil, info)
	if err != nil {
		return nil, errors.NewProtocolError("connect.reject.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            message.CSIDCommand,
		TypeID:          message.TypeCommandAMF0,
		MessageStreamID: 0,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}

package rpc

import (
	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
)

// Status codes emitted by the stack.
const (
	CodeConnectSuccess     = "NetConnection.Connect.Success"
	CodeConnectRejected    = "NetConnection.Connect.Rejected"
	CodePublishStart       = "NetStream.Publish.Start"
	CodePublishBadName     = "NetStream.Publish.BadName"
	CodePlayReset          = "NetStream.Play.Reset"
	CodePlayStart          = "NetStream.Play.Start"
	CodePlayStreamNotFound = "NetStream.Play.StreamNotFound"
	CodeDataStart          = "NetStream.Data.Start"
	CodeUnpublishSuccess   = "NetStream.Unpublish.Success"
)

// Status levels.
const (
	LevelStatus = "status"
	LevelError  = "error"
)

// BuildOnStatus creates an onStatus command message (transaction id 0) on the
// given message stream. details carries the stream key when relevant (empty
// omits the field).
func BuildOnStatus(streamID uint32, level, code, description, details string) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       level,
		"code":        code,
		"description": description,
	}
	if details != "" {
		info["details"] = details
	}
	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return nil, errors.NewProtocolError("onstatus.encode", err)
	}
	return &chunk.Message{
		CSID:            message.CSIDCommand,
		TypeID:          message.TypeCommandAMF0,
		MessageStreamID: streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}

// ParseOnStatus extracts the info object of an onStatus message (client side).
func ParseOnStatus(msg *chunk.Message) (map[string]interface{}, error) {
	cmd, err := decodeNamed(msg, "onStatus")
	if err != nil {
		return nil, err
	}
	for _, arg := range cmd.Arguments {
		if obj, ok := arg.(map[string]interface{}); ok {
			return obj, nil
		}
	}
	return nil, errors.NewProtocolError("onstatus.parse", nil)
}

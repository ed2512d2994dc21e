package rpc

import (
	"sync"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
)

// CreateStreamCommand represents a parsed "createStream" command.
// Wire form: ["createStream", transactionID, null]
type CreateStreamCommand struct {
	TransactionID float64
}

// ParseCreateStreamCommand parses a command message assumed to contain a
// createStream invocation. The command object slot is null and ignored.
func ParseCreateStreamCommand(msg *chunk.Message) (*CreateStreamCommand, error) {
	cmd, err := decodeNamed(msg, "createStream")
	if err != nil {
		return nil, err
	}
	return &CreateStreamCommand{TransactionID: cmd.TransactionID}, nil
}

// StreamIDAllocator hands out message stream ids, monotonically from 1
// (stream 0 is reserved for the command stream). One allocator per
// connection.
type StreamIDAllocator struct {
	mu   sync.Mutex
	next uint32
}

// NewStreamIDAllocator returns an allocator whose first Allocate() call
// returns 1.
func NewStreamIDAllocator() *StreamIDAllocator { return &StreamIDAllocator{next: 1} }

// Allocate returns the next stream id.
func (a *StreamIDAllocator) Allocate() uint32 {
	a.mu.Lock()
	id := a.next
	a.next++
	a.mu.Unlock()
	return id
}

// BuildCreateStreamResponse constructs the _result response to createStream:
//
//	["_result", transactionID, null, streamID]
//
// The freshly allocated stream id is returned alongside the message.
func BuildCreateStreamResponse(transactionID float64, allocator *StreamIDAllocator) (*chunk.Message, uint32, error) {
	if allocator == nil {
		return nil, 0, errors.NewProtocolError("createstream.response", nil)
	}
	streamID := allocator.Allocate()
	payload, err := amf.EncodeAll("_result", transactionID, nil, float64(streamID))
	if err != nil {
		return nil, 0, errors.NewProtocolError("createstream.response.encode", err)
	}
	msg := &chunk.Message{
		CSID:            message.CSIDCommand,
		TypeID:          message.TypeCommandAMF0,
		MessageStreamID: 0,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}
	return msg, streamID, nil
}

package rpc

import (
	"fmt"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// DeleteStreamCommand represents a parsed "deleteStream" command.
// Wire form: ["deleteStream", 0, null, streamID]
type DeleteStreamCommand struct {
	StreamID uint32
}

// ParseDeleteStreamCommand parses a deleteStream invocation. No response is
// required by the protocol; the handler tears down publish/play state.
func ParseDeleteStreamCommand(msg *chunk.Message) (*DeleteStreamCommand, error) {
	cmd, err := decodeNamed(msg, "deleteStream")
	if err != nil {
		return nil, err
	}
	if len(cmd.Arguments) < 1 {
		return nil, errors.NewProtocolError("deletestream.parse", fmt.Errorf("missing stream id argument"))
	}
	id, ok := cmd.Arguments[0].(float64)
	if !ok {
		return nil, errors.NewProtocolError("deletestream.parse", fmt.Errorf("stream id must be a number"))
	}
	return &DeleteStreamCommand{StreamID: uint32(id)}, nil
}

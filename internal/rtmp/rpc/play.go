package rpc

import (
	"fmt"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// PlayCommand represents a parsed "play" command.
// Wire form: ["play", 0, null, streamName, start, duration, reset]
type PlayCommand struct {
	App        string
	StreamName string
	StreamKey  string  // app/streamName
	Start      float64 // -2=live or recorded, -1=live only, >=0 seek offset (seconds)
	Duration   float64 // -1=until end
	Reset      bool
}

// ParsePlayCommand parses a play invocation. Only streamName is required;
// start/duration/reset take their conventional defaults (-2, -1, true) when
// absent.
func ParsePlayCommand(msg *chunk.Message, app string) (*PlayCommand, error) {
	cmd, err := decodeNamed(msg, "play")
	if err != nil {
		return nil, err
	}
	if len(cmd.Arguments) < 1 {
		return nil, errors.NewProtocolError("play.parse", fmt.Errorf("missing stream name"))
	}
	streamName, ok := cmd.Arguments[0].(string)
	if !ok || streamName == "" {
		return nil, errors.NewProtocolError("play.parse", fmt.Errorf("missing stream name"))
	}

	pc := &PlayCommand{
		App:        app,
		StreamName: streamName,
		StreamKey:  app + "/" + streamName,
		Start:      -2,
		Duration:   -1,
		Reset:      true,
	}
	if len(cmd.Arguments) >= 2 {
		if v, ok := cmd.Arguments[1].(float64); ok {
			pc.Start = v
		}
	}
	if len(cmd.Arguments) >= 3 {
		if v, ok := cmd.Arguments[2].(float64); ok {
			pc.Duration = v
		}
	}
	if len(cmd.Arguments) >= 4 {
		if v, ok := cmd.Arguments[3].(bool); ok {
			pc.Reset = v
		}
	}
	return pc, nil
}

package rpc

import (
	"fmt"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// Publish types accepted on the wire.
const (
	PublishTypeLive   = "live"
	PublishTypeRecord = "record"
	PublishTypeAppend = "append"
)

// PublishCommand represents a parsed "publish" command.
// Wire form: ["publish", 0, null, publishingName, publishingType]
type PublishCommand struct {
	PublishingName string
	PublishingType string // live|record|append
	StreamKey      string // app/publishingName
}

// ParsePublishCommand parses a publish invocation. The caller supplies the
// application name negotiated during connect so the full stream key can be
// constructed.
func ParsePublishCommand(app string, msg *chunk.Message) (*PublishCommand, error) {
	if app == "" {
		return nil, errors.NewProtocolError("publish.parse", fmt.Errorf("app required to build stream key"))
	}
	cmd, err := decodeNamed(msg, "publish")
	if err != nil {
		return nil, err
	}
	if len(cmd.Arguments) < 1 {
		return nil, errors.NewProtocolError("publish.parse", fmt.Errorf("publishingName required"))
	}
	name, ok := cmd.Arguments[0].(string)
	if !ok || name == "" {
		return nil, errors.NewProtocolError("publish.parse", fmt.Errorf("publishingName required"))
	}
	publishingType := PublishTypeLive
	if len(cmd.Arguments) >= 2 {
		if s, ok := cmd.Arguments[1].(string); ok && s != "" {
			publishingType = s
		}
	}
	switch publishingType {
	case PublishTypeLive, PublishTypeRecord, PublishTypeAppend:
	default:
		return nil, errors.NewProtocolError("publish.parse", fmt.Errorf("unsupported publishingType %q", publishingType))
	}
	return &PublishCommand{
		PublishingName: name,
		PublishingType: publishingType,
		StreamKey:      app + "/" + name,
	}, nil
}

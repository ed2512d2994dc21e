package server

// Command and media handler wiring: one dispatcher per connection whose
// closures capture the *conn.Connection, the registry, and the server config.
// Handlers perform the state transitions; stream-semantic rejections go back
// to the peer as onStatus and keep the connection open.

import (
	"fmt"

	rtmperrors "github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/conn"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/control"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/rpc"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/stream"
)

// Connection property keys used by the handlers.
const (
	propPublishing  = "publishing"
	propPublishType = "publish_type"
	propPlaying     = "playing"
	propSubscriber  = "subscriber_id"
)

// attachHandlers builds and installs the per-connection dispatcher.
func (s *Server) attachHandlers(c *conn.Connection) {
	d := message.NewDispatcher(c.Log())

	d.RegisterCommand("connect", message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		return s.handleConnect(c, msg)
	}))
	d.RegisterCommand("createStream", message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		return s.handleCreateStream(c, msg)
	}))
	d.RegisterCommand("publish", message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		return s.handlePublish(c, msg)
	}))
	d.RegisterCommand("play", message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		return s.handlePlay(c, msg)
	}))
	d.RegisterCommand("deleteStream", message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		return s.handleDeleteStream(c, msg)
	}))
	d.RegisterCommand("closeStream", message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		s.teardownStream(c)
		return nil
	}))

	d.RegisterType(message.TypeAudio, message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		if pub := s.publisherFor(c); pub != nil {
			pub.IngestAudio(msg)
		}
		return nil
	}))
	d.RegisterType(message.TypeVideo, message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		if pub := s.publisherFor(c); pub != nil {
			pub.IngestVideo(msg)
		}
		return nil
	}))
	d.RegisterType(message.TypeDataAMF0, message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		return s.handleData(c, msg)
	}))
	d.RegisterType(message.TypeDataAMF3, message.HandlerFunc(func(_ message.HandlerContext, msg *chunk.Message) error {
		// AMF3 data rides through opaque; forward to subscribers when
		// publishing, never interpret.
		if pub := s.publisherFor(c); pub != nil {
			pub.IngestMetadata(msg)
		}
		return nil
	}))

	c.SetDispatcher(d)
}

// publisherFor resolves the publisher owned by this connection, nil when it is
// not publishing.
func (s *Server) publisherFor(c *conn.Connection) *stream.Publisher {
	if _, ok := c.Property(propPublishing); !ok {
		return nil
	}
	pub := s.registry.Get(c.Session().StreamKey())
	if pub == nil || pub.ConnID() != c.ID() {
		return nil
	}
	return pub
}

func (s *Server) handleConnect(c *conn.Connection, msg *chunk.Message) error {
	cc, err := rpc.ParseConnectCommand(msg)
	if err != nil {
		return err
	}
	c.Session().SetConnectInfo(cc.App, cc.TcURL, cc.FlashVer, uint8(cc.ObjectEncoding))

	// Window ack size, peer bandwidth and chunk size go out ahead of _result.
	if err := c.SendControlBurst(); err != nil {
		return err
	}
	resp, err := rpc.BuildConnectResponse(cc.TransactionID, "Connection succeeded.")
	if err != nil {
		return err
	}
	if err := c.SendMessage(resp); err != nil {
		return err
	}
	c.Log().Info("client connected", "app", cc.App, "tc_url", cc.TcURL, "flash_ver", cc.FlashVer)
	return nil
}

func (s *Server) handleCreateStream(c *conn.Connection, msg *chunk.Message) error {
	cs, err := rpc.ParseCreateStreamCommand(msg)
	if err != nil {
		return err
	}
	resp, streamID, err := rpc.BuildCreateStreamResponse(cs.TransactionID, c.Session().Allocator())
	if err != nil {
		return err
	}
	if err := c.SendMessage(resp); err != nil {
		return err
	}
	c.Log().Debug("stream created", "stream_id", streamID)
	return nil
}

func (s *Server) handlePublish(c *conn.Connection, msg *chunk.Message) error {
	pcmd, err := rpc.ParsePublishCommand(c.Session().App(), msg)
	if err != nil {
		return err
	}
	log := c.Log().With("stream_key", pcmd.StreamKey)

	if !s.cfg.AllowPublish {
		s.sendStatus(c, msg.MessageStreamID, rpc.LevelError, rpc.CodePublishBadName, "Publishing is disabled.", pcmd.StreamKey)
		return rtmperrors.NewStreamError("publish.disabled", fmt.Errorf("publishing disabled"))
	}
	if s.cfg.Auth != nil {
		if err := s.cfg.Auth(c.Session().App(), pcmd.PublishingName, "publish"); err != nil {
			log.Warn("publish rejected by auth hook", "error", err)
			s.sendStatus(c, msg.MessageStreamID, rpc.LevelError, rpc.CodePublishBadName, "Publish not authorized.", pcmd.StreamKey)
			return rtmperrors.NewAuthError("publish.hook", err)
		}
	}

	pub := stream.NewPublisher(pcmd.StreamKey, c.ID(), msg.MessageStreamID, pcmd.PublishingType, s.cfg.GopCacheSize, s.cfg.GopCacheEnabled, c.Log())
	if err := s.registry.Register(pub); err != nil {
		log.Warn("duplicate publish rejected")
		s.sendStatus(c, msg.MessageStreamID, rpc.LevelError, rpc.CodePublishBadName, fmt.Sprintf("Stream %s is already publishing.", pcmd.StreamKey), pcmd.StreamKey)
		return err // StreamError: connection stays open
	}

	if err := c.Transition(conn.StatePublishing); err != nil {
		_, _ = s.registry.Unregister(pcmd.StreamKey)
		return err
	}
	c.Session().SetStreamKey(pcmd.StreamKey)
	c.SetProperty(propPublishing, "true")
	c.SetProperty(propPublishType, pcmd.PublishingType)

	if err := c.SendMessage(control.EncodeUserControlStreamBegin(msg.MessageStreamID)); err != nil {
		return err
	}
	s.sendStatus(c, msg.MessageStreamID, rpc.LevelStatus, rpc.CodePublishStart, fmt.Sprintf("%s is now published.", pcmd.StreamKey), pcmd.StreamKey)
	log.Info("publisher started", "publish_type", pcmd.PublishingType, "stream_id", msg.MessageStreamID)
	return nil
}

func (s *Server) handlePlay(c *conn.Connection, msg *chunk.Message) error {
	pcmd, err := rpc.ParsePlayCommand(msg, c.Session().App())
	if err != nil {
		return err
	}
	log := c.Log().With("stream_key", pcmd.StreamKey)

	if !s.cfg.AllowPlay {
		s.sendStatus(c, msg.MessageStreamID, rpc.LevelError, rpc.CodePlayStreamNotFound, "Playback is disabled.", pcmd.StreamKey)
		return rtmperrors.NewStreamError("play.disabled", fmt.Errorf("playback disabled"))
	}
	if s.cfg.Auth != nil {
		if err := s.cfg.Auth(c.Session().App(), pcmd.StreamName, "play"); err != nil {
			log.Warn("play rejected by auth hook", "error", err)
			s.sendStatus(c, msg.MessageStreamID, rpc.LevelError, rpc.CodePlayStreamNotFound, "Play not authorized.", pcmd.StreamKey)
			return rtmperrors.NewAuthError("play.hook", err)
		}
	}

	pub := s.registry.Get(pcmd.StreamKey)
	if pub == nil {
		// Reference policy: fail immediately rather than parking the player.
		log.Warn("play for unknown stream")
		s.sendStatus(c, msg.MessageStreamID, rpc.LevelError, rpc.CodePlayStreamNotFound, fmt.Sprintf("Stream %s not found.", pcmd.StreamKey), pcmd.StreamKey)
		return rtmperrors.NewStreamError("play.lookup", fmt.Errorf("stream %q not found", pcmd.StreamKey))
	}

	if err := c.Transition(conn.StatePlaying); err != nil {
		return err
	}
	c.Session().SetStreamKey(pcmd.StreamKey)
	c.SetProperty(propPlaying, "true")

	// Status sequence ahead of any media: StreamBegin, Play.Reset, Play.Start,
	// |RtmpSampleAccess, Data.Start.
	if err := c.SendMessage(control.EncodeUserControlStreamBegin(msg.MessageStreamID)); err != nil {
		return err
	}
	s.sendStatus(c, msg.MessageStreamID, rpc.LevelStatus, rpc.CodePlayReset, fmt.Sprintf("Playing and resetting %s.", pcmd.StreamKey), pcmd.StreamKey)
	s.sendStatus(c, msg.MessageStreamID, rpc.LevelStatus, rpc.CodePlayStart, fmt.Sprintf("Started playing %s.", pcmd.StreamKey), pcmd.StreamKey)
	if sa, err := message.NewSampleAccess(true, true).Message(msg.MessageStreamID); err == nil {
		_ = c.SendMessage(sa)
	}
	s.sendStatus(c, msg.MessageStreamID, rpc.LevelStatus, rpc.CodeDataStart, "Data start.", pcmd.StreamKey)

	// Attach the subscriber: the catch-up (metadata, sequence headers, GOP
	// cache) lands in its channel first, then live frames. The pump drains
	// into the connection's writer loop until the channel closes.
	sub := pub.Subscribe(msg.MessageStreamID, stream.DefaultSubscriberCapacity)
	c.SetProperty(propSubscriber, sub.ID())
	go s.pumpSubscriber(c, pub, sub, msg.MessageStreamID)

	log.Info("subscriber playing", "stream_id", msg.MessageStreamID, "subscribers", pub.SubscriberCount())
	return nil
}

// pumpSubscriber forwards fan-out packets into the player's outbound queue.
// A closed channel means the publisher went away: the player gets
// NetStream.Unpublish.Success before the pump exits.
func (s *Server) pumpSubscriber(c *conn.Connection, pub *stream.Publisher, sub *stream.Subscriber, streamID uint32) {
	for {
		select {
		case <-c.Done():
			pub.Unsubscribe(sub.ID())
			return
		case msg, ok := <-sub.C():
			if !ok {
				s.sendStatus(c, streamID, rpc.LevelStatus, rpc.CodeUnpublishSuccess, "Publisher stopped.", pub.Name())
				return
			}
			if err := c.SendMessage(msg); err != nil {
				pub.Unsubscribe(sub.ID())
				return
			}
		}
	}
}

func (s *Server) handleDeleteStream(c *conn.Connection, msg *chunk.Message) error {
	if _, err := rpc.ParseDeleteStreamCommand(msg); err != nil {
		return err
	}
	s.teardownStream(c)
	// No response is required for deleteStream.
	return nil
}

// handleData routes AMF0 data messages: metadata events update the publisher
// cache and fan out; anything else is ignored.
func (s *Server) handleData(c *conn.Connection, msg *chunk.Message) error {
	d, err := message.DecodeData(msg.Payload)
	if err != nil {
		return err
	}
	if d.TypeName != message.DataSetDataFrame && d.TypeName != message.DataOnMetaData {
		c.Log().Debug("ignoring data message", "type_name", d.TypeName)
		return nil
	}
	pub := s.publisherFor(c)
	if pub == nil {
		return nil
	}
	if meta, ok := d.Metadata(); ok {
		c.Log().Debug("metadata updated", "keys", len(meta))
	}
	pub.IngestMetadata(msg)
	return nil
}

// teardownStream releases whatever stream role the connection holds and
// returns it to Connected.
func (s *Server) teardownStream(c *conn.Connection) {
	if _, ok := c.Property(propPublishing); ok {
		key := c.Session().StreamKey()
		if pub, found := s.registry.Unregister(key); found {
			pub.Close() // EOFs subscriber channels so their pumps unblock
		}
		c.RemoveProperty(propPublishing)
		c.RemoveProperty(propPublishType)
		c.Session().ClearStreamKey()
		_ = c.Transition(conn.StateConnected)
		c.Log().Info("publisher stopped", "stream_key", key)
		return
	}
	if _, ok := c.Property(propPlaying); ok {
		key := c.Session().StreamKey()
		if pub := s.registry.Get(key); pub != nil {
			if id, ok := c.Property(propSubscriber); ok {
				pub.Unsubscribe(id)
			}
		}
		c.RemoveProperty(propPlaying)
		c.RemoveProperty(propSubscriber)
		c.Session().ClearStreamKey()
		_ = c.Transition(conn.StateConnected)
		c.Log().Info("subscriber stopped", "stream_key", key)
	}
}

// sendStatus builds and best-effort sends an onStatus message.
func (s *Server) sendStatus(c *conn.Connection, streamID uint32, level, code, description, details string) {
	msg, err := rpc.BuildOnStatus(streamID, level, code, description, details)
	if err != nil {
		c.Log().Error("onStatus build failed", "code", code, "error", err)
		return
	}
	if err := c.SendMessage(msg); err != nil {
		c.Log().Debug("onStatus send failed", "code", code, "error", err)
	}
}

// cleanupConnection runs on connection teardown: publishers owned by the peer
// are drained, play subscriptions detached.
func (s *Server) cleanupConnection(c *conn.Connection) {
	for _, pub := range s.registry.UnregisterByConn(c.ID()) {
		c.Log().Info("publisher disconnected", "stream_key", pub.Name())
		pub.Close()
	}
	if _, ok := c.Property(propPlaying); ok {
		if pub := s.registry.Get(c.Session().StreamKey()); pub != nil {
			if id, ok := c.Property(propSubscriber); ok {
				pub.Unsubscribe(id)
			}
		}
	}
	s.removeConnection(c)
}

// Package stream implements the live broadcast fabric: one Publisher per
// stream name ingesting audio/video/metadata, a GOP cache for late joiners,
// and bounded per-subscriber queues with a drop-subscriber overflow policy.
package stream

import (
	"log/slog"
	"sync"

	"github.com/alxayo/go-rtmpcast/internal/metrics"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/media"
)

// Publisher owns one live stream: the cached codec bootstrap packets, the GOP
// cache, and the subscriber list. Created by a successful publish command and
// torn down by deleteStream or publisher disconnect.
type Publisher struct {
	name        string // full stream key (app/name)
	connID      string // owning connection
	streamID    uint32 // message stream id on the owning connection
	publishType string // live|record|append

	mu           sync.RWMutex
	metadata     *chunk.Message // most recent @setDataFrame/onMetaData packet
	aacSeqHeader *chunk.Message // at most one; a later sequence header replaces it
	avcSeqHeader *chunk.Message
	gop          *GopCache
	gopEnabled   bool
	subscribers  map[string]*Subscriber
	audioCodec   string
	videoCodec   string
	detector     media.CodecDetector

	log *slog.Logger
}

// NewPublisher creates a publisher for the given stream key. gopCacheSize
// bounds retained completed GOPs; gopEnabled false disables caching entirely
// (late joiners then wait for the next keyframe).
func NewPublisher(name, connID string, streamID uint32, publishType string, gopCacheSize int, gopEnabled bool, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		name:        name,
		connID:      connID,
		streamID:    streamID,
		publishType: publishType,
		gop:         NewGopCache(gopCacheSize),
		gopEnabled:  gopEnabled,
		subscribers: make(map[string]*Subscriber),
		log:         log.With("stream_key", name),
	}
}

// Name returns the stream key.
func (p *Publisher) Name() string { return p.name }

// ConnID returns the owning connection's identity.
func (p *Publisher) ConnID() string { return p.connID }

// StreamID returns the message stream id assigned on the owning connection.
func (p *Publisher) StreamID() uint32 { return p.streamID }

// PublishType returns the publish mode (live|record|append).
func (p *Publisher) PublishType() string { return p.publishType }

// CodecStore implementation for media.CodecDetector.
func (p *Publisher) SetAudioCodec(c string) { p.mu.Lock(); p.audioCodec = c; p.mu.Unlock() }
func (p *Publisher) SetVideoCodec(c string) { p.mu.Lock(); p.videoCodec = c; p.mu.Unlock() }
func (p *Publisher) AudioCodec() string     { p.mu.RLock(); defer p.mu.RUnlock(); return p.audioCodec }
func (p *Publisher) VideoCodec() string     { p.mu.RLock(); defer p.mu.RUnlock(); return p.videoCodec }
func (p *Publisher) StreamKey() string      { return p.name }

// IngestAudio processes an inbound audio packet: caches the AAC sequence
// header and fans out.
func (p *Publisher) IngestAudio(msg *chunk.Message) {
	if msg == nil {
		return
	}
	p.detector.Process(msg.TypeID, msg.Payload, p, p.log)
	if media.IsAACSequenceHeader(msg.Payload) {
		p.mu.Lock()
		p.aacSeqHeader = msg.Clone()
		p.mu.Unlock()
		p.log.Info("cached audio sequence header", "size", len(msg.Payload))
	}
	metrics.PacketsIngested.WithLabelValues("audio").Inc()
	metrics.BytesIngested.Add(float64(len(msg.Payload)))
	p.fanOut(msg)
}

// IngestVideo processes an inbound video packet: caches the AVC/HEVC sequence
// header, feeds the GOP cache, and fans out.
func (p *Publisher) IngestVideo(msg *chunk.Message) {
	if msg == nil {
		return
	}
	p.detector.Process(msg.TypeID, msg.Payload, p, p.log)
	if media.IsAVCSequenceHeader(msg.Payload) {
		p.mu.Lock()
		p.avcSeqHeader = msg.Clone()
		p.mu.Unlock()
		p.log.Info("cached video sequence header", "size", len(msg.Payload))
	} else if p.gopEnabled {
		p.mu.Lock()
		p.gop.Add(msg.Clone())
		p.mu.Unlock()
	}
	metrics.PacketsIngested.WithLabelValues("video").Inc()
	metrics.BytesIngested.Add(float64(len(msg.Payload)))
	p.fanOut(msg)
}

// IngestMetadata processes a @setDataFrame/onMetaData packet: replaces the
// cached metadata and fans out.
func (p *Publisher) IngestMetadata(msg *chunk.Message) {
	if msg == nil {
		return
	}
	p.mu.Lock()
	p.metadata = msg.Clone()
	p.mu.Unlock()
	metrics.PacketsIngested.WithLabelValues("data").Inc()
	metrics.BytesIngested.Add(float64(len(msg.Payload)))
	p.fanOut(msg)
}

// Metadata returns the cached metadata packet (nil when none arrived yet).
func (p *Publisher) Metadata() *chunk.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata
}

// fanOut enqueues the packet into every subscriber's channel, re-headered to
// that subscriber's message stream id. The subscriber list is snapshotted
// first: the publisher lock is never held across a channel send. Full
// channels mark the subscriber failed; failed subscribers are detached
// (bounded-queue, drop-subscriber policy keeps slow consumers from
// back-pressuring the publisher or their peers). A subscriber that detached
// concurrently is simply skipped.
func (p *Publisher) fanOut(msg *chunk.Message) {
	p.mu.RLock()
	subs := make([]*Subscriber, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		subs = append(subs, s)
	}
	p.mu.RUnlock()

	var failed []*Subscriber
	for _, s := range subs {
		switch s.send(msg.CloneForStream(s.streamID)) {
		case sendOK:
			metrics.PacketsForwarded.Inc()
		case sendFull:
			failed = append(failed, s)
		case sendClosed:
			// Already detaching on its own goroutine; nothing to do.
		}
	}
	for _, s := range failed {
		p.log.Warn("dropping slow subscriber", "subscriber_id", s.id, "queue_cap", cap(s.ch))
		metrics.SubscribersDropped.Inc()
		p.Unsubscribe(s.id)
	}
}

// Subscribe attaches a new subscriber that will receive packets re-headered
// onto streamID. The catch-up sequence is pushed into the channel before the
// subscriber joins live fan-out: cached metadata, AAC sequence header, AVC
// sequence header, then the GOP cache snapshot. With an empty cache the
// subscriber simply waits for the next keyframe.
func (p *Publisher) Subscribe(streamID uint32, capacity int) *Subscriber {
	sub := newSubscriber(streamID, capacity)

	p.mu.RLock()
	var catchup []*chunk.Message
	if p.metadata != nil {
		catchup = append(catchup, p.metadata)
	}
	if p.aacSeqHeader != nil {
		catchup = append(catchup, p.aacSeqHeader)
	}
	if p.avcSeqHeader != nil {
		catchup = append(catchup, p.avcSeqHeader)
	}
	if p.gopEnabled {
		catchup = append(catchup, p.gop.Snapshot()...)
	}
	p.mu.RUnlock()

	for _, m := range catchup {
		// The catch-up fits by construction unless the GOP cache exceeds the
		// channel bound; overflow here degrades to sequence headers + live.
		if sub.send(m.CloneForStream(streamID)) != sendOK {
			p.log.Warn("catch-up truncated by subscriber capacity", "subscriber_id", sub.id)
			break
		}
	}

	p.mu.Lock()
	p.subscribers[sub.id] = sub
	p.mu.Unlock()
	metrics.ActiveSubscribers.Inc()
	p.log.Info("subscriber attached", "subscriber_id", sub.id, "subscriber_stream_id", streamID, "catchup_packets", len(catchup))
	return sub
}

// Unsubscribe detaches a subscriber and closes its channel. Unknown ids are a
// no-op.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subscribers[id]
	if ok {
		delete(p.subscribers, id)
	}
	p.mu.Unlock()
	if ok {
		sub.close()
		metrics.ActiveSubscribers.Dec()
	}
}

// SubscriberCount returns the number of attached subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Close detaches every subscriber (closing their channels so writer loops
// unblock) and clears the caches. Called on unpublish and on publisher
// disconnect.
func (p *Publisher) Close() {
	p.mu.Lock()
	subs := p.subscribers
	p.subscribers = make(map[string]*Subscriber)
	p.metadata = nil
	p.aacSeqHeader = nil
	p.avcSeqHeader = nil
	p.gop.Clear()
	p.mu.Unlock()
	for _, s := range subs {
		s.close()
		metrics.ActiveSubscribers.Dec()
	}
}

package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// DefaultSubscriberCapacity is the bound of each subscriber's packet channel.
const DefaultSubscriberCapacity = 100

// sendResult classifies the outcome of a non-blocking enqueue.
type sendResult int

const (
	sendOK     sendResult = iota
	sendFull              // channel at capacity: slow consumer, caller drops the subscriber
	sendClosed            // subscriber detached concurrently: caller skips it
)

// Subscriber is one attached play session: an identity, the message stream id
// packets are re-headered onto, and the bounded channel its connection's
// writer loop drains. A subscriber's presence in the publisher's list is the
// sole handle to it; removal is a list removal plus a channel close.
//
// Detachment races with fan-out: a player can disconnect on its own goroutine
// while the publisher is mid-send. send holds the read lock across the
// enqueue and close takes the write lock before closing the channel, so a
// send never lands on a closed channel.
type Subscriber struct {
	id       string
	streamID uint32

	mu     sync.RWMutex
	closed bool
	ch     chan *chunk.Message
}

// newSubscriber allocates a subscriber with a fresh identity.
func newSubscriber(streamID uint32, capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = DefaultSubscriberCapacity
	}
	return &Subscriber{
		id:       uuid.NewString(),
		streamID: streamID,
		ch:       make(chan *chunk.Message, capacity),
	}
}

// ID returns the subscriber's identity.
func (s *Subscriber) ID() string { return s.id }

// StreamID returns the message stream id packets are re-headered onto.
func (s *Subscriber) StreamID() uint32 { return s.streamID }

// C is the channel the owning connection's writer loop drains. It is closed
// when the subscriber is detached or the publisher goes away.
func (s *Subscriber) C() <-chan *chunk.Message { return s.ch }

// send enqueues a packet without blocking. The read lock excludes a
// concurrent close; the select never blocks while it is held.
func (s *Subscriber) send(msg *chunk.Message) sendResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sendClosed
	}
	select {
	case s.ch <- msg:
		return sendOK
	default:
		return sendFull
	}
}

// close closes the channel exactly once; the draining writer loop observes
// EOF. The write lock waits out any in-flight send.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

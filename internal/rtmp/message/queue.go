package message

// Bounded inbound priority queue. The reader task pushes every decoded packet;
// the processor task pops. Higher priority dequeues first, FIFO within one
// priority bucket. A full queue is fatal to the owning connection, so Push
// fails instead of blocking; Pop blocks until a packet, close, or context
// cancellation.

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// DefaultQueueCapacity is the per-connection inbound queue bound.
const DefaultQueueCapacity = 1000

// ErrQueueFull is returned by Push when the capacity is exhausted.
var ErrQueueFull = errors.New("message queue full")

// ErrQueueClosed is returned by Pop after Close once the queue drains, and by
// Push immediately after Close.
var ErrQueueClosed = errors.New("message queue closed")

type queueItem struct {
	msg      *chunk.Message
	priority int
	seq      uint64 // tie-break: FIFO within a priority bucket
}

type itemHeap []queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(queueItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is the bounded priority queue. Safe for concurrent use by one pusher
// and one popper (the general case is also safe).
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	capacity int
	nextSeq  uint64
	closed   bool
	notify   chan struct{} // closed on Close; receives a token per Push otherwise
}

// NewQueue creates a queue with the given capacity (DefaultQueueCapacity when
// zero or negative).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, capacity),
	}
}

// Push enqueues msg with the priority derived from its type id. Fails with
// ErrQueueFull when the bound is reached; the caller treats that as fatal for
// the connection.
func (q *Queue) Push(msg *chunk.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	heap.Push(&q.items, queueItem{msg: msg, priority: Priority(msg.TypeID), seq: q.nextSeq})
	q.nextSeq++
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop blocks until a message is available, the queue is closed and drained, or
// ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (*chunk.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := heap.Pop(&q.items).(queueItem)
			q.mu.Unlock()
			return it.msg, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
			// Token consumed; re-check under the lock (another popper may
			// have raced us).
		}
	}
}

// TryPop returns the next message without blocking, or nil when empty.
func (q *Queue) TryPop() *chunk.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(queueItem).msg
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes blocked poppers. Pending items stay
// poppable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

package stream

// Publisher registry: process-global-per-server map of stream name to
// Publisher with an exactly-one-publisher invariant enforced by a linearizable
// put-if-absent under the registry lock. Per-publisher state has its own lock;
// registry critical sections stay short.

import (
	"fmt"
	"sync"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/metrics"
)

// Registry tracks active publishers keyed by full stream key ("app/stream").
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]*Publisher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]*Publisher)}
}

// Register inserts pub under its stream key. Fails with a StreamError when the
// name is already owned (the caller maps this to NetStream.Publish.BadName).
func (r *Registry) Register(pub *Publisher) error {
	if pub == nil {
		return errors.NewStreamError("registry.register", fmt.Errorf("nil publisher"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.publishers[pub.Name()]; exists {
		return errors.NewStreamError("registry.register", fmt.Errorf("stream %q is already being published", pub.Name()))
	}
	r.publishers[pub.Name()] = pub
	metrics.ActivePublishers.Inc()
	return nil
}

// Unregister removes the publisher for name and returns it. The caller is
// responsible for closing the publisher (draining subscribers).
func (r *Registry) Unregister(name string) (*Publisher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pub, ok := r.publishers[name]
	if !ok {
		return nil, false
	}
	delete(r.publishers, name)
	metrics.ActivePublishers.Dec()
	return pub, true
}

// Get returns the publisher for name, or nil.
func (r *Registry) Get(name string) *Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publishers[name]
}

// IsPublishing reports whether name has an active publisher.
func (r *Registry) IsPublishing(name string) bool {
	return r.Get(name) != nil
}

// All returns a snapshot of active publishers.
func (r *Registry) All() []*Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Publisher, 0, len(r.publishers))
	for _, p := range r.publishers {
		out = append(out, p)
	}
	return out
}

// UnregisterByConn removes and returns every publisher owned by the given
// connection (unexpected-disconnect cleanup).
func (r *Registry) UnregisterByConn(connID string) []*Publisher {
	r.mu.Lock()
	var out []*Publisher
	for name, pub := range r.publishers {
		if pub.ConnID() == connID {
			delete(r.publishers, name)
			metrics.ActivePublishers.Dec()
			out = append(out, pub)
		}
	}
	r.mu.Unlock()
	return out
}

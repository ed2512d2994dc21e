package conn

import (
	"sync"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/rpc"
)

// Session holds the per-connection RTMP dialogue state established after the
// handshake: the connect parameters, the stream id allocator, and the stream
// bindings created by publish/play. Guarded by its own lock; the command
// handlers are the only writers.
type Session struct {
	mu             sync.RWMutex
	app            string
	tcURL          string
	flashVer       string
	objectEncoding uint8

	allocator *rpc.StreamIDAllocator
	streamKey string // app/streamName once publish/play is accepted
}

// NewSession creates a Session with a fresh stream id allocator.
func NewSession() *Session {
	return &Session{allocator: rpc.NewStreamIDAllocator()}
}

// SetConnectInfo records fields derived from the connect command.
func (s *Session) SetConnectInfo(app, tcURL, flashVer string, objectEncoding uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = app
	s.tcURL = tcURL
	s.flashVer = flashVer
	s.objectEncoding = objectEncoding
}

// App returns the application name from connect ("" before connect).
func (s *Session) App() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.app
}

// TcURL returns the tcUrl from connect.
func (s *Session) TcURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tcURL
}

// FlashVer returns the flashVer from connect.
func (s *Session) FlashVer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flashVer
}

// Allocator returns the connection's stream id allocator.
func (s *Session) Allocator() *rpc.StreamIDAllocator { return s.allocator }

// SetStreamKey stores the stream key bound by publish/play.
func (s *Session) SetStreamKey(key string) {
	s.mu.Lock()
	s.streamKey = key
	s.mu.Unlock()
}

// StreamKey returns the bound stream key ("" when idle).
func (s *Session) StreamKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamKey
}

// ClearStreamKey removes the stream binding (deleteStream).
func (s *Session) ClearStreamKey() {
	s.mu.Lock()
	s.streamKey = ""
	s.mu.Unlock()
}

// Package server binds the TCP listener, applies the admission policy
// (global and per-IP connection caps plus a per-IP accept rate limit), and
// spawns a Connection per accepted socket.
package server

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/alxayo/go-rtmpcast/internal/logger"
	"github.com/alxayo/go-rtmpcast/internal/metrics"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/conn"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/handshake"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/stream"
)

// perIPRate bounds handshake attempts per remote IP (connections/second with
// a small burst); a reconnect storm from one address cannot starve the accept
// loop.
const (
	perIPRate  = rate.Limit(10)
	perIPBurst = 20
)

// Server encapsulates the listener, the publisher registry and the active
// connection set.
type Server struct {
	cfg Config
	log *slog.Logger

	registry *stream.Registry

	mu      sync.RWMutex
	l       net.Listener
	conns   map[string]*conn.Connection
	closing bool

	ipMu       sync.Mutex
	ipCounts   map[string]int
	ipLimiters map[string]*rate.Limiter

	acceptingWg sync.WaitGroup
}

// New creates an unstarted Server. The config must already validate.
func New(cfg Config) *Server {
	return &Server{
		cfg:        cfg,
		log:        logger.Logger().With("component", "rtmp_server"),
		registry:   stream.NewRegistry(),
		conns:      make(map[string]*conn.Connection),
		ipCounts:   make(map[string]int),
		ipLimiters: make(map[string]*rate.Limiter),
	}
}

// Registry exposes the publisher registry (tests, embedding programs).
func (s *Server) Registry() *stream.Registry { return s.registry }

// Start validates the configuration, binds the listener and launches the
// accept loop. Safe to call once.
func (s *Server) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return stderrors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr(), err)
	}
	s.l = ln
	s.mu.Unlock()

	s.log.Info("rtmp server listening", "addr", ln.Addr().String())
	s.acceptingWg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.acceptingWg.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if closing || stderrors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			return
		}
		if tc, ok := raw.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		ip := remoteIP(raw)
		if outcome := s.admit(ip); outcome != "" {
			metrics.ConnectionsTotal.WithLabelValues(outcome).Inc()
			s.log.Warn("connection refused", "remote", raw.RemoteAddr().String(), "outcome", outcome)
			_ = raw.Close()
			continue
		}
		go s.serveConn(raw, ip)
	}
}

// admit applies the two-level admission policy plus the per-IP rate limit.
// Returns "" on success or the refusal outcome label. A successful admit
// charges the per-IP counter; release undoes it.
func (s *Server) admit(ip string) string {
	s.mu.RLock()
	total := len(s.conns)
	s.mu.RUnlock()
	if total >= s.cfg.MaxConnections {
		return "limit_global"
	}

	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	lim := s.ipLimiters[ip]
	if lim == nil {
		lim = rate.NewLimiter(perIPRate, perIPBurst)
		s.ipLimiters[ip] = lim
	}
	if !lim.Allow() {
		return "limit_rate"
	}
	if s.ipCounts[ip] >= s.cfg.MaxConnectionsPerIP {
		return "limit_ip"
	}
	s.ipCounts[ip]++
	return ""
}

func (s *Server) release(ip string) {
	s.ipMu.Lock()
	if s.ipCounts[ip] > 1 {
		s.ipCounts[ip]--
	} else {
		delete(s.ipCounts, ip)
		delete(s.ipLimiters, ip)
	}
	s.ipMu.Unlock()
}

// serveConn runs the handshake, wires handlers and starts the connection
// tasks. The per-IP charge is released when the connection closes.
func (s *Server) serveConn(raw net.Conn, ip string) {
	connCfg := conn.Config{
		ChunkSize:        s.cfg.ChunkSize,
		WindowAckSize:    s.cfg.WindowAckSize,
		PeerBandwidth:    s.cfg.PeerBandwidth,
		IdleTimeout:      s.cfg.IdleTimeout.Std(),
		PingInterval:     s.cfg.PingInterval.Std(),
		HandshakeOptions: handshake.Options{},
	}
	c, err := conn.Accept(raw, connCfg)
	if err != nil {
		s.log.Warn("handshake failed", "remote", raw.RemoteAddr().String(), "error", err)
		metrics.ConnectionsTotal.WithLabelValues("handshake_failed").Inc()
		s.release(ip)
		return
	}
	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()

	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()

	s.attachHandlers(c)
	c.SetOnClose(func(cc *conn.Connection) {
		s.cleanupConnection(cc)
		s.release(ip)
	})
	c.Start()
	s.log.Info("connection registered", "conn_id", c.ID(), "remote", raw.RemoteAddr().String())
}

// removeConnection drops the connection from the active set.
func (s *Server) removeConnection(c *conn.Connection) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
}

// Stop gracefully shuts the server down: stop accepting, close every
// connection, wait for the accept loop.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	s.l = nil
	conns := make([]*conn.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	_ = l.Close()
	for _, c := range conns {
		_ = c.Close()
	}
	s.acceptingWg.Wait()
	s.log.Info("rtmp server stopped")
	return nil
}

// Addr returns the bound listener address (nil when not started).
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// ConnectionCount returns the number of tracked active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func remoteIP(c net.Conn) string {
	host, _, err := net.SplitHostPort(c.RemoteAddr().String())
	if err != nil {
		return c.RemoteAddr().String()
	}
	return host
}

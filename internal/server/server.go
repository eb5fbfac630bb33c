// Package server accepts telnet-style connections and hands each one
// to a session goroutine, enforcing the connection cap and an optional
// source-address safelist before any byte is read from the peer.
package server

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/qthlink/qthlink/internal/audit"
	"github.com/qthlink/qthlink/internal/auth"
	"github.com/qthlink/qthlink/internal/command"
	"github.com/qthlink/qthlink/internal/session"
)

// Config is the listener policy.
type Config struct {
	Addr           string
	MaxConnections int

	// AllowedNets restricts source addresses when non-empty.
	AllowedNets []netip.Prefix

	// ShutdownGrace bounds how long Shutdown waits for sessions to drain.
	ShutdownGrace time.Duration

	Session session.Config
}

// Server is the TCP front end.
type Server struct {
	cfg           Config
	authenticator *auth.Authenticator
	registry      *session.Registry
	dispatcher    *command.Dispatcher
	audit         *audit.Logger
	log           zerolog.Logger

	ln        net.Listener
	wg        sync.WaitGroup
	active    atomic.Int64
	total     atomic.Int64
	startedAt time.Time
}

// New wires a server to its collaborators.
func New(cfg Config, authenticator *auth.Authenticator, registry *session.Registry, dispatcher *command.Dispatcher, auditLog *audit.Logger, log zerolog.Logger) *Server {
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = 10
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Server{
		cfg:           cfg,
		authenticator: authenticator,
		registry:      registry,
		dispatcher:    dispatcher,
		audit:         auditLog,
		log:           log,
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.startedAt = time.Now()
	s.log.Info().Str("addr", ln.Addr().String()).Int("max_connections", s.cfg.MaxConnections).Msg("listening")
	return nil
}

// Addr returns the bound address ("" before Listen).
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve accepts connections until the context is cancelled, then waits
// up to the shutdown grace period for active sessions to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("server not listening")
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return s.drain()
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return err
		}
		s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	if !s.allowed(remote) {
		s.log.Warn().Str("remote", remote).Msg("connection rejected by safelist")
		s.audit.Log(audit.EventConnectionRejected, "", "", remote, map[string]any{"reason": "safelist"})
		conn.Write([]byte("ERR: Connection not allowed from this address.\r\n"))
		conn.Close()
		return
	}

	// Rejected before any read: the cap is the only backpressure, there
	// is no queue.
	if s.active.Load() >= int64(s.cfg.MaxConnections) {
		s.log.Warn().Str("remote", remote).Msg("connection limit reached")
		s.audit.Log(audit.EventConnectionRejected, "", "", remote, map[string]any{"reason": "limit"})
		conn.Write([]byte("ERR: Connection limit reached. Try again later.\r\n"))
		conn.Close()
		return
	}

	s.active.Add(1)
	s.total.Add(1)
	s.log.Info().Str("remote", remote).Int64("active", s.active.Load()).Msg("connection accepted")

	sess := session.New(conn, s.cfg.Session, s.authenticator, s.registry, s.dispatcher, s.audit, s.log)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		sess.Run(ctx)
		s.log.Info().Str("remote", remote).Msg("session ended")
	}()
}

func (s *Server) allowed(remoteAddr string) bool {
	if len(s.cfg.AllowedNets) == 0 {
		return true
	}
	ap, err := netip.ParseAddrPort(remoteAddr)
	if err != nil {
		return false
	}
	addr := ap.Addr().Unmap()
	for _, p := range s.cfg.AllowedNets {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// drain waits for session goroutines, bounded by the grace period.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("all sessions drained")
		return nil
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Warn().Msg("shutdown grace expired with sessions still active")
		return nil
	}
}

// Stats is a point-in-time operational summary.
type Stats struct {
	ActiveConnections int64             `json:"active_connections"`
	MaxConnections    int               `json:"max_connections"`
	TotalConnections  int64             `json:"total_connections"`
	UptimeSeconds     float64           `json:"uptime_seconds"`
	Sessions          []session.Summary `json:"sessions"`
}

// Stats reports current server state.
func (s *Server) Stats() Stats {
	var uptime float64
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Seconds()
	}
	return Stats{
		ActiveConnections: s.active.Load(),
		MaxConnections:    s.cfg.MaxConnections,
		TotalConnections:  s.total.Load(),
		UptimeSeconds:     uptime,
		Sessions:          s.registry.ListActive(),
	}
}

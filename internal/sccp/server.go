package sccp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"golang.org/x/sync/errgroup"
)

// AcceptLimiter decides whether a new connection from ip is admitted.
type AcceptLimiter interface {
	Allow(ip string) bool
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr            string
	MaxFrameSize    uint32
	ShutdownTimeout time.Duration
	Limiter         AcceptLimiter
}

// Server accepts phone connections and feeds their frames to the
// dispatcher. One goroutine reads each connection; the monitor loop runs
// alongside.
type Server struct {
	cfg        ServerConfig
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns sync.WaitGroup
}

func NewServer(d *Dispatcher, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With("subsystem", "sccp"),
	}
}

// Listen binds the TCP listener. Run calls it when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: listening on %s: %w", ErrResourceExhausted, s.cfg.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run serves until ctx is cancelled, then ends every channel, closes every
// session and releases the registries.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	s.logger.Info("sccp listener starting", "addr", ln.Addr().String())

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.dispatcher.Monitor().Run(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		return s.acceptLoop(gCtx, ln)
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		err = nil
	}
	s.shutdown()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accepting sccp connection", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		peer := peerAddr(conn.RemoteAddr())
		if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow(peer.Addr().String()) {
			s.logger.Warn("connection rate limited", "peer", peer.String())
			conn.Close()
			continue
		}

		s.conns.Add(1)
		go s.serve(conn, peer)
	}
}

func peerAddr(a net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	if tcp, ok := a.(*net.TCPAddr); ok {
		ap = tcp.AddrPort()
	} else {
		ap, _ = netip.ParseAddrPort(a.String())
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// serve reads frames from one connection until it fails or the session is
// closed.
func (s *Server) serve(conn net.Conn, peer netip.AddrPort) {
	defer s.conns.Done()

	d := s.dispatcher
	sess := NewSession(conn, peer, d.Monitor().Clock().Now())
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in sccp session", "session_id", sess.id, "panic", r)
			d.CloseSession(sess, ReasonSocket)
		}
	}()

	d.Accept(sess)
	fr := wire.NewFrameReader(conn, s.cfg.MaxFrameSize)
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			reason := ReasonSocket
			switch {
			case sess.Closed():
				return
			case wire.IsDecodeError(err):
				reason = ReasonDecode
				s.logger.Warn("bad frame from phone", "session_id", sess.id, "peer", peer.String(), "error", err)
			case errors.Is(err, io.EOF):
				s.logger.Debug("phone closed connection", "session_id", sess.id)
			default:
				s.logger.Debug("reading from phone", "session_id", sess.id, "error", err)
			}
			d.CloseSession(sess, reason)
			return
		}

		msg, err := wire.Decode(frame)
		if err != nil {
			s.logger.Warn("undecodable message from phone", "session_id", sess.id, "peer", peer.String(), "error", err)
			d.CloseSession(sess, ReasonDecode)
			return
		}
		d.Handle(sess, msg)
		if sess.Closed() {
			return
		}
	}
}

func (s *Server) shutdown() {
	s.logger.Info("stopping sccp server")
	s.dispatcher.Shutdown()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("sccp connections still open after shutdown timeout", "timeout", s.cfg.ShutdownTimeout)
	}

	s.dispatcher.Release()
	s.logger.Info("sccp server stopped")
}

package sccp

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"github.com/google/uuid"
)

// SessionID is the opaque handle of a session.
type SessionID string

// SessionState is the connection side of the registration state machine.
type SessionState int

const (
	SessionUnbound SessionState = iota
	SessionRegistering
	SessionRegistered
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionRegistering:
		return "registering"
	case SessionRegistered:
		return "registered"
	case SessionClosed:
		return "closed"
	default:
		return "unbound"
	}
}

// writeTimeout bounds a single write to a phone.
const writeTimeout = 5 * time.Second

// Session is one accepted phone connection.
type Session struct {
	id        SessionID
	conn      net.Conn
	peer      netip.AddrPort
	createdAt time.Time

	mu           sync.Mutex
	deviceID     string
	state        SessionState
	lastActivity time.Time
	rtpPort      uint16
	keepalive    *monitor.Timer
	retry        *monitor.Timer
	closed       bool

	writeMu sync.Mutex
	done    chan struct{}
}

// NewSession wraps an accepted connection.
func NewSession(conn net.Conn, peer netip.AddrPort, now time.Time) *Session {
	return &Session{
		id:           SessionID(uuid.NewString()),
		conn:         conn,
		peer:         peer,
		createdAt:    now,
		lastActivity: now,
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() SessionID        { return s.id }
func (s *Session) Peer() netip.AddrPort { return s.peer }

// DeviceID returns the bound device id, empty before registration.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	if !s.closed {
		s.state = st
	}
	s.mu.Unlock()
}

// Touch records inbound traffic.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send encodes and writes messages in order. Writes from several goroutines
// are serialised.
func (s *Session) Send(msgs ...wire.Message) error {
	var buf []byte
	for _, m := range msgs {
		b, err := wire.Encode(m)
		if err != nil {
			return err
		}
		buf = append(buf, b...)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Closed() {
		return fmt.Errorf("writing to session %s: %w", s.id, net.ErrClosed)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("writing to session %s: %w", s.id, err)
	}
	return nil
}

// markClosed flips the session to closed and returns the timers to cancel.
// Only the first call reports true.
func (s *Session) markClosed() (bool, []*monitor.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, nil
	}
	s.closed = true
	s.state = SessionClosed
	timers := []*monitor.Timer{s.keepalive, s.retry}
	s.keepalive, s.retry = nil, nil
	close(s.done)
	return true, timers
}

func (s *Session) setKeepaliveTimer(t *monitor.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.Cancel()
		return
	}
	s.keepalive = t
}

// setRetryTimer replaces the registration retry timer.
func (s *Session) setRetryTimer(t *monitor.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry != nil {
		s.retry.Cancel()
	}
	if s.closed {
		t.Cancel()
		t = nil
	}
	s.retry = t
}

func (s *Session) cancelRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry != nil {
		s.retry.Cancel()
		s.retry = nil
	}
}

// SessionSnapshot is a point-in-time copy of a session.
type SessionSnapshot struct {
	ID           string    `json:"id"`
	Peer         string    `json:"peer"`
	Device       string    `json:"device,omitempty"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:           string(s.id),
		Peer:         s.peer.String(),
		Device:       s.deviceID,
		State:        s.state.String(),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

package sccp

import (
	"log/slog"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// testProvisioning has a private line 100 on SEP1, a line 200 shared by
// SEP1 and SEP2, and line 300 with no device.
func testProvisioning() Provisioning {
	return Provisioning{
		Lines: []LineConfig{
			{Name: "100", CallerIDName: "Alice", SubscriptionNumber: "0"},
			{Name: "200", Label: "Sales", IncomingLimit: 2},
			{Name: "300"},
		},
		Devices: []DeviceConfig{
			{
				ID: "SEP000000000001",
				Buttons: []ButtonConfig{
					{Type: ButtonLine, Line: "100"},
					{Type: ButtonLine, Line: "200", SubscriptionNumber: "11", SubscriptionName: "desk one"},
					{Type: ButtonSpeedDial, Number: "200", Label: "Sales"},
				},
			},
			{
				ID:  "SEP000000000002",
				NAT: true,
				Buttons: []ButtonConfig{
					{Type: ButtonLine, Line: "200", SubscriptionNumber: "12"},
				},
			},
		},
	}
}

type harness struct {
	t          *testing.T
	clock      *monitor.ManualClock
	mon        *monitor.Monitor
	store      *Store
	calls      *LocalCallControl
	alloc      *Allocator
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newHarnessWith(t, opts, testProvisioning())
}

func newHarnessWith(t *testing.T, opts Options, prov Provisioning) *harness {
	t.Helper()
	logger := testLogger()
	clock := monitor.NewManualClock(testEpoch)
	mon := monitor.New(clock, time.Second, logger)
	store := NewStore()
	calls := NewLocalCallControl(logger)
	alloc := NewAllocator(store, calls, mon, logger)
	calls.Bind(alloc)
	d := NewDispatcher(store, alloc, mon, nil, opts, logger)

	_, err := d.ApplyConfig(prov)
	require.NoError(t, err)

	return &harness{t: t, clock: clock, mon: mon, store: store, calls: calls, alloc: alloc, dispatcher: d}
}

// phone is the far end of a session. Everything the server writes is
// decoded into msgs.
type phone struct {
	t       *testing.T
	h       *harness
	session *Session
	conn    net.Conn
	msgs    chan wire.Message
}

func (h *harness) connect(peer string) *phone {
	h.t.Helper()
	server, client := net.Pipe()
	s := NewSession(server, netip.MustParseAddrPort(peer), h.clock.Now())
	p := &phone{t: h.t, h: h, session: s, conn: client, msgs: make(chan wire.Message, 512)}

	go func() {
		defer close(p.msgs)
		fr := wire.NewFrameReader(client, 0)
		for {
			frame, err := fr.ReadFrame()
			if err != nil {
				return
			}
			m, err := wire.Decode(frame)
			if err != nil {
				return
			}
			p.msgs <- m
		}
	}()
	h.t.Cleanup(func() { client.Close() })

	h.dispatcher.Accept(s)
	return p
}

func (p *phone) send(m wire.Message) {
	p.h.dispatcher.Handle(p.session, m)
}

// register runs the registration exchange up to RegisterAvailableLines.
func (p *phone) register(name string) {
	p.t.Helper()
	p.send(&wire.Register{DeviceName: name, ProtocolVersion: 11})
	p.expect(wire.RegisterAckMessage)
	p.expect(wire.CapabilitiesReqMessage)
	p.send(&wire.CapabilitiesRes{Capabilities: []wire.Capability{{Codec: wire.CodecG711Ulaw, MaxFramesPerPacket: 40}}})
	p.send(&wire.RegisterAvailableLines{MaxLines: 2})
	p.expect(wire.SelectSoftKeysMessage)
	require.Equal(p.t, SessionRegistered, p.session.State())
}

// expect returns the next message of kind id, skipping others.
func (p *phone) expect(id wire.MessageID) wire.Message {
	p.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-p.msgs:
			if !ok {
				p.t.Fatalf("connection closed while waiting for %s", id)
			}
			if m.ID() == id {
				return m
			}
		case <-timeout:
			p.t.Fatalf("timed out waiting for %s", id)
		}
	}
}

// expectCallState waits for a CallState message with the given state.
func (p *phone) expectCallState(state uint32) *wire.CallState {
	p.t.Helper()
	for {
		cs := p.expect(wire.CallStateMessage).(*wire.CallState)
		if cs.State == state {
			return cs
		}
	}
}

// drain discards queued messages.
func (p *phone) drain() {
	for {
		select {
		case <-p.msgs:
		case <-time.After(20 * time.Millisecond):
			return
		}
	}
}

// assertBindings checks that every bound device and its session point at
// each other.
func assertBindings(t *testing.T, st *Store) {
	t.Helper()
	for _, d := range st.Devices() {
		sid := d.SessionID()
		if sid == "" {
			continue
		}
		s := st.Session(sid)
		require.NotNil(t, s, "device %s bound to missing session %s", d.ID(), sid)
		require.Equal(t, d.ID(), s.DeviceID(), "session %s does not point back at %s", sid, d.ID())
	}
}

// assertChannelCounts checks every line's counter against the live channels.
func assertChannelCounts(t *testing.T, st *Store, a *Allocator) {
	t.Helper()
	want := make(map[string]int)
	for _, ch := range a.channelList() {
		want[ch.LineName()]++
	}
	for _, l := range st.Lines() {
		require.Equal(t, want[l.Name()], l.ChannelCount(), "line %s", l.Name())
		require.Len(t, l.channelList(), l.ChannelCount(), "line %s", l.Name())
	}
}

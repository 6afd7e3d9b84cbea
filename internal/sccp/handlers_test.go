package sccp

import (
	"context"
	"net/netip"
	"testing"

	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlers_SoftKeySet(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.SoftKeySetReq{})
	res := p.expect(wire.SoftKeySetResMessage).(*wire.SoftKeySetRes)

	require.Len(t, res.Sets, len(softKeySets))
	assert.Equal(t, uint32(len(softKeySets)), res.Total)

	onHook := res.Sets[wire.KeySetOnHook]
	assert.Equal(t, []uint8{1, 2, 0}, onHook.TemplateIndex[:3])
	assert.Equal(t, []uint16{301, 302, 0}, onHook.InfoIndex[:3])

	held := res.Sets[wire.KeySetOnHold]
	assert.Equal(t, []uint8{7, 2, 6}, held.TemplateIndex[:3])
	assert.Equal(t, []uint16{307, 302, 306}, held.InfoIndex[:3])

	assert.Equal(t, wire.SoftKeySet{}, res.Sets[5])
}

func TestHandlers_SoftKeyTemplate(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.SoftKeyTemplateReq{})
	res := p.expect(wire.SoftKeyTemplateResMessage).(*wire.SoftKeyTemplateRes)

	require.Len(t, res.Definitions, len(softKeyTemplate))
	assert.Equal(t, uint32(len(softKeyTemplate)), res.Total)
	assert.Equal(t, wire.SoftKeyDefinition{Label: "Redial", Event: wire.SoftKeyRedial}, res.Definitions[0])
	assert.Equal(t, wire.SoftKeyDefinition{Label: "Answer", Event: wire.SoftKeyAnswer}, res.Definitions[7])
}

func TestHandlers_ForwardStat(t *testing.T) {
	prov := testProvisioning()
	prov.Lines[0].ForwardBusy = "500"
	prov.Lines[1].ForwardAll = "600"
	prov.Devices[0].Buttons[1].ForwardAll = "700"
	h := newHarnessWith(t, DefaultOptions(), prov)

	p1 := h.connect("10.0.0.5:50000")
	p1.register(dev1)
	p2 := h.connect("192.0.2.10:40000")
	p2.register(dev2)

	tests := []struct {
		name  string
		phone *phone
		line  uint32
		want  wire.ForwardStat
	}{
		{
			name:  "busy forward from line",
			phone: p1,
			line:  1,
			want:  wire.ForwardStat{ActiveForward: 1, LineNumber: 1, ForwardBusyActive: 1, ForwardBusyNumber: "500"},
		},
		{
			name:  "device override wins",
			phone: p1,
			line:  2,
			want:  wire.ForwardStat{ActiveForward: 1, LineNumber: 2, ForwardAllActive: 1, ForwardAllNumber: "700"},
		},
		{
			name:  "line forward all",
			phone: p2,
			line:  1,
			want:  wire.ForwardStat{ActiveForward: 1, LineNumber: 1, ForwardAllActive: 1, ForwardAllNumber: "600"},
		},
		{
			name:  "unknown button",
			phone: p1,
			line:  9,
			want:  wire.ForwardStat{LineNumber: 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.phone.drain()
			tt.phone.send(&wire.ForwardStatReq{LineNumber: tt.line})
			got := tt.phone.expect(wire.ForwardStatMessage).(*wire.ForwardStat)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestHandlers_ConfigVersionServer(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.ConfigStatReq{})
	cfg := p.expect(wire.ConfigStatMessage).(*wire.ConfigStat)
	assert.Equal(t, dev1, cfg.DeviceName)
	assert.Equal(t, "sccpd", cfg.ServerName)
	assert.Equal(t, uint32(2), cfg.NumberLines)
	assert.Equal(t, uint32(1), cfg.NumberSpeedDials)

	p.send(&wire.VersionReq{})
	v := p.expect(wire.VersionMessage).(*wire.Version)
	assert.Equal(t, "sccpd", v.Version)

	// net.Pipe has no IP address, only the name is filled in.
	p.send(&wire.ServerReq{})
	srv := p.expect(wire.ServerResMessage).(*wire.ServerRes)
	assert.Equal(t, "sccpd", srv.ServerName)
	assert.Equal(t, uint32(0), srv.Port)
}

func TestHandlers_StimulusLineStartsCall(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.Stimulus{Stimulus: wire.StimulusLine, Instance: 2})
	tone := p.expect(wire.StartToneMessage).(*wire.StartTone)
	assert.Equal(t, wire.ToneDial, tone.Tone)
	spk := p.expect(wire.SetSpeakerModeMessage).(*wire.SetSpeakerMode)
	assert.Equal(t, wire.SpeakerOn, spk.Mode)

	ch := h.alloc.Channel(h.store.Device(dev1).activeCall())
	require.NotNil(t, ch)
	assert.Equal(t, "200", ch.LineName())
	assert.Equal(t, StateOffHook, ch.State())

	// A second press while off hook does not open another channel.
	p.send(&wire.Stimulus{Stimulus: wire.StimulusLine, Instance: 2})
	assert.Equal(t, 1, h.alloc.ChannelCount())
}

func TestHandlers_StimulusSpeedDial(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	caller := h.connect("10.0.0.5:50000")
	caller.register(dev1)
	callee := h.connect("192.0.2.10:40000")
	callee.register(dev2)

	// Unconfigured speed dial buttons are ignored.
	caller.send(&wire.Stimulus{Stimulus: wire.StimulusSpeedDial, Instance: 2})
	assert.Equal(t, 0, h.alloc.ChannelCount())

	caller.send(&wire.Stimulus{Stimulus: wire.StimulusSpeedDial, Instance: 1})
	caller.expectCallState(wire.CallStateRingOut)
	ring := callee.expect(wire.SetRingerMessage).(*wire.SetRinger)
	assert.Equal(t, uint32(1), ring.LineInstance)
	assert.Equal(t, DeviceStateRinging, h.store.DeviceState("200"))
	assertChannelCounts(t, h.store, h.alloc)
}

func TestHandlers_StimulusHoldToggles(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	ch, err := h.alloc.RequestChannel(context.Background(), "100/aa=2w")
	require.NoError(t, err)
	require.Equal(t, StateConnected, ch.State())
	p.drain()

	p.send(&wire.Stimulus{Stimulus: wire.StimulusHold, Instance: 1})
	cs := p.expectCallState(wire.CallStateHold)
	assert.Equal(t, ch.CallID(), cs.CallID)
	assert.Equal(t, StateHold, ch.State())
	assert.Zero(t, h.store.Device(dev1).activeCall())

	p.send(&wire.Stimulus{Stimulus: wire.StimulusHold, Instance: 1})
	p.expectCallState(wire.CallStateConnected)
	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, ch.CallID(), h.store.Device(dev1).activeCall())
}

func TestHandlers_AnswerHoldsConnectedCall(t *testing.T) {
	tests := []struct {
		name   string
		answer wire.Message
	}{
		{name: "off hook", answer: &wire.OffHook{}},
		{name: "line button", answer: &wire.Stimulus{Stimulus: wire.StimulusLine, Instance: 2}},
		{name: "answer soft key", answer: &wire.SoftKeyEvent{Event: wire.SoftKeyAnswer, LineInstance: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultOptions())
			p := h.connect("10.0.0.5:50000")
			p.register(dev1)
			dev := h.store.Device(dev1)

			first, err := h.alloc.RequestChannel(context.Background(), "100/aa=2w")
			require.NoError(t, err)
			second, err := h.alloc.RequestChannel(context.Background(), "200")
			require.NoError(t, err)
			require.Equal(t, StateRinging, second.State())
			p.drain()

			p.send(tt.answer)

			assert.Equal(t, StateHold, first.State())
			assert.Equal(t, StateConnected, second.State())
			assert.Equal(t, second.CallID(), dev.activeCall())

			// Hanging up ends only the answered call; the held one resumes.
			p.send(&wire.OnHook{LineInstance: 2, CallID: second.CallID()})
			assert.Equal(t, StateEnded, second.State())
			assert.Equal(t, StateHold, first.State())
			assertChannelCounts(t, h.store, h.alloc)

			p.send(&wire.SoftKeyEvent{Event: wire.SoftKeyResume, CallID: first.CallID()})
			assert.Equal(t, StateConnected, first.State())
			assert.Equal(t, first.CallID(), dev.activeCall())
		})
	}
}

func TestHandlers_AnswerAbandonsUndialedCall(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.OffHook{LineInstance: 1})
	p.expect(wire.StartToneMessage)
	dialing := h.alloc.Channel(h.store.Device(dev1).activeCall())
	require.NotNil(t, dialing)

	ringing, err := h.alloc.RequestChannel(context.Background(), "200")
	require.NoError(t, err)

	p.send(&wire.Stimulus{Stimulus: wire.StimulusLine, Instance: 2})

	assert.Equal(t, StateEnded, dialing.State())
	assert.Equal(t, StateConnected, ringing.State())
	assert.Equal(t, 1, h.alloc.ChannelCount())
	assertChannelCounts(t, h.store, h.alloc)
}

func TestDispatcher_StaleSessionFromNewAddressIsConflict(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	first := h.connect("10.0.0.5:50000")
	first.register(dev1)

	obs := &countingObserver{}
	h.dispatcher.SetObserver(obs)

	// The device re-registered from another address without the first
	// session seeing it.
	second := h.connect("10.0.0.6:50000")
	h.store.bind(second.session, h.store.Device(dev1), netip.MustParseAddr("10.0.0.6"), h.clock.Now())

	first.send(&wire.KeepAlive{})

	assert.True(t, first.session.Closed())
	assert.Equal(t, []string{ReasonConflict}, obs.closed)
	assert.Equal(t, second.session.ID(), h.store.Device(dev1).SessionID())
}

package sccp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestChannel_EmptyRegistry(t *testing.T) {
	logger := testLogger()
	mon := monitor.New(monitor.NewManualClock(testEpoch), time.Second, logger)
	a := NewAllocator(NewStore(), NewLocalCallControl(logger), mon, logger)

	_, err := a.RequestChannel(context.Background(), "100")
	assert.ErrorIs(t, err, ErrLineNotFound)
	assert.Equal(t, 0, a.ChannelCount())
}

func TestRequestChannel_NoDeviceRegistered(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	_, err := h.alloc.RequestChannel(context.Background(), "300")
	assert.ErrorIs(t, err, ErrNoDeviceRegistered)

	// Provisioned but offline.
	_, err = h.alloc.RequestChannel(context.Background(), "100")
	assert.ErrorIs(t, err, ErrNoDeviceRegistered)
	assertChannelCounts(t, h.store, h.alloc)
}

func TestRequestChannel_SubscriptionAndAutoAnswer(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)
	p.drain()

	ch, err := h.alloc.RequestChannel(context.Background(), "100@42/aa=2w,b")
	require.NoError(t, err)

	assert.Equal(t, "42", ch.Subscription().Number)
	aa, cause := ch.AutoAnswer()
	assert.Equal(t, AutoAnswerTwoWay, aa)
	assert.Equal(t, CauseBusy, cause)
	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, dev1, ch.DeviceID())

	spk := p.expect(wire.SetSpeakerModeMessage).(*wire.SetSpeakerMode)
	assert.Equal(t, wire.SpeakerOn, spk.Mode)
	cs := p.expectCallState(wire.CallStateConnected)
	assert.Equal(t, ch.CallID(), cs.CallID)
	assert.Equal(t, uint32(1), cs.LineInstance)
}

func TestRequestChannel_DefaultSubscription(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	ch, err := h.alloc.RequestChannel(context.Background(), "100/ringer=inside/bogus")
	require.NoError(t, err)

	assert.Equal(t, SubscriptionID{Number: "0"}, ch.Subscription())
	assert.Equal(t, StateRinging, ch.State())
	assert.Empty(t, ch.DeviceID())

	ring := p.expect(wire.SetRingerMessage).(*wire.SetRinger)
	assert.Equal(t, wire.RingInside, ring.Mode)
	assert.Equal(t, ch.CallID(), ring.CallID)
}

func TestRequestChannel_SubscriptionRingsMatchingDevice(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p1 := h.connect("10.0.0.5:50000")
	p1.register(dev1)
	p2 := h.connect("192.0.2.10:40000")
	p2.register(dev2)
	p1.drain()
	p2.drain()

	_, err := h.alloc.RequestChannel(context.Background(), "200@12")
	require.NoError(t, err)

	p2.expect(wire.SetRingerMessage)
	select {
	case m := <-p1.msgs:
		t.Fatalf("device without the subscription was signalled: %s", m.ID())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestChannel_ChannelCountInvariant(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p1 := h.connect("10.0.0.5:50000")
	p1.register(dev1)
	p2 := h.connect("192.0.2.10:40000")
	p2.register(dev2)

	var chans []*Channel
	for _, dial := range []string{"100", "200", "200", "100"} {
		ch, err := h.alloc.RequestChannel(context.Background(), dial)
		require.NoError(t, err)
		chans = append(chans, ch)
		assertChannelCounts(t, h.store, h.alloc)
	}
	assert.Equal(t, 2, h.store.Line("200").ChannelCount())

	for i, ch := range chans {
		h.alloc.End(ch, CauseNormal)
		assertChannelCounts(t, h.store, h.alloc)
		assert.Equal(t, len(chans)-i-1, h.alloc.ChannelCount())
	}

	// Ending twice is harmless.
	h.alloc.End(chans[0], CauseNormal)
	assertChannelCounts(t, h.store, h.alloc)
}

func TestRequestChannel_CallIDsAreMonotonic(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	var last uint32
	for i := 0; i < 5; i++ {
		ch, err := h.alloc.RequestChannel(context.Background(), "100")
		require.NoError(t, err)
		assert.Greater(t, ch.CallID(), last)
		last = ch.CallID()
		h.alloc.End(ch, CauseNormal)
	}
}

type refusingCalls struct{}

var errRefused = errors.New("trunk down")

func (refusingCalls) Attach(context.Context, *Channel) (CallLeg, error) { return nil, errRefused }
func (refusingCalls) Originate(context.Context, *Channel, string) (CallLeg, error) {
	return nil, errRefused
}

func TestRequestChannel_RollsBackWhenAttachFails(t *testing.T) {
	logger := testLogger()
	clock := monitor.NewManualClock(testEpoch)
	mon := monitor.New(clock, time.Second, logger)
	store := NewStore()
	alloc := NewAllocator(store, refusingCalls{}, mon, logger)
	d := NewDispatcher(store, alloc, mon, nil, DefaultOptions(), logger)
	_, err := d.ApplyConfig(testProvisioning())
	require.NoError(t, err)

	h := &harness{t: t, clock: clock, mon: mon, store: store, alloc: alloc, dispatcher: d}
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	_, err = alloc.RequestChannel(context.Background(), "100")
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 0, alloc.ChannelCount())
	assert.Equal(t, 0, store.Line("100").ChannelCount())
	assert.Equal(t, uint32(0), alloc.lastCallID)
}

func TestLocalCall_AnswerAndHangup(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	caller := h.connect("10.0.0.5:50000")
	caller.register(dev1)
	callee := h.connect("192.0.2.10:40000")
	callee.register(dev2)

	caller.send(&wire.OffHook{LineInstance: 1})
	tone := caller.expect(wire.StartToneMessage).(*wire.StartTone)
	assert.Equal(t, wire.ToneDial, tone.Tone)

	for _, b := range []uint32{2, 0, 0, wire.KeypadPound} {
		caller.send(&wire.KeypadButton{Button: b})
	}
	caller.expectCallState(wire.CallStateRingOut)

	ring := callee.expect(wire.SetRingerMessage).(*wire.SetRinger)
	assert.Equal(t, uint32(1), ring.LineInstance)
	assert.Equal(t, DeviceStateRinging, h.store.DeviceState("200"))
	assert.Equal(t, DeviceStateInUse, h.store.DeviceState("100"))

	callee.send(&wire.OffHook{LineInstance: 1})
	callee.expectCallState(wire.CallStateConnected)
	caller.expectCallState(wire.CallStateConnected)
	assert.Equal(t, DeviceStateInUse, h.store.DeviceState("200"))
	assert.Equal(t, 2, h.calls.Legs())

	callee.send(&wire.OnHook{LineInstance: 1})
	caller.expectCallState(wire.CallStateOnHook)

	assert.Equal(t, 0, h.alloc.ChannelCount())
	assert.Equal(t, 0, h.calls.Legs())
	assertChannelCounts(t, h.store, h.alloc)
	assert.Equal(t, DeviceStateNotInUse, h.store.DeviceState("100"))
}

func TestLocalCall_HoldAndResume(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	caller := h.connect("10.0.0.5:50000")
	caller.register(dev1)
	callee := h.connect("192.0.2.10:40000")
	callee.register(dev2)

	caller.send(&wire.EnblocCall{Number: "200"})
	callee.expect(wire.SetRingerMessage)
	callee.send(&wire.SoftKeyEvent{Event: wire.SoftKeyAnswer})
	caller.expectCallState(wire.CallStateConnected)

	caller.send(&wire.SoftKeyEvent{Event: wire.SoftKeyHold})
	caller.expectCallState(wire.CallStateHold)
	assert.Equal(t, DeviceStateOnHold, h.store.DeviceState("100"))
	assert.Zero(t, h.store.Device(dev1).activeCall())

	caller.send(&wire.SoftKeyEvent{Event: wire.SoftKeyResume})
	caller.expectCallState(wire.CallStateConnected)
	assert.Equal(t, DeviceStateInUse, h.store.DeviceState("100"))

	caller.send(&wire.SoftKeyEvent{Event: wire.SoftKeyEndCall})
	callee.expectCallState(wire.CallStateOnHook)
	assert.Equal(t, 0, h.alloc.ChannelCount())
}

func TestLocalCall_DigitTimeoutDials(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	caller := h.connect("10.0.0.5:50000")
	caller.register(dev1)
	callee := h.connect("192.0.2.10:40000")
	callee.register(dev2)

	caller.send(&wire.OffHook{LineInstance: 1})
	caller.send(&wire.KeypadButton{Button: 2})
	caller.send(&wire.KeypadButton{Button: 0})
	caller.send(&wire.KeypadButton{Button: 0})

	h.clock.Advance(DefaultDigitTimeout)
	h.mon.RunDue()

	callee.expect(wire.SetRingerMessage)
	ch := h.alloc.Channel(h.store.Device(dev1).activeCall())
	require.NotNil(t, ch)
	assert.Equal(t, StateRingOut, ch.State())
	assert.Equal(t, "200", ch.Digits())
}

func TestLocalCall_FirstDigitTimeoutHangsUp(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.OffHook{LineInstance: 1})
	p.expect(wire.StartToneMessage)

	h.clock.Advance(DefaultFirstDigitTimeout)
	h.mon.RunDue()

	p.expectCallState(wire.CallStateOnHook)
	assert.Equal(t, 0, h.alloc.ChannelCount())
}

func TestLocalCall_UnknownNumberPlaysReorder(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	p.send(&wire.EnblocCall{Number: "999"})
	p.expectCallState(wire.CallStateCongestion)
	for {
		tone := p.expect(wire.StartToneMessage).(*wire.StartTone)
		if tone.Tone == wire.ToneReorder {
			break
		}
	}
	assert.Equal(t, 0, h.alloc.ChannelCount())
	assert.Equal(t, "999", h.store.Device(dev1).Snapshot().LastNumber)
}

func TestLocalCall_SharedLineAnsweredOnce(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p1 := h.connect("10.0.0.5:50000")
	p1.register(dev1)
	p2 := h.connect("192.0.2.10:40000")
	p2.register(dev2)

	ch, err := h.alloc.RequestChannel(context.Background(), "200")
	require.NoError(t, err)
	p1.expect(wire.SetRingerMessage)
	p2.expect(wire.SetRingerMessage)

	p2.send(&wire.OffHook{LineInstance: 1})
	assert.Equal(t, dev2, ch.DeviceID())

	// The other device stops ringing and cannot take the call any more.
	off := p1.expect(wire.SetRingerMessage).(*wire.SetRinger)
	assert.Equal(t, wire.RingOff, off.Mode)
	assert.False(t, h.alloc.Answer(context.Background(), ch, h.store.Device(dev1)))
	assert.Equal(t, dev2, ch.DeviceID())
}

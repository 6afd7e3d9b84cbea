package sccp

import (
	"context"
	"time"

	"github.com/flowpbx/sccpd/internal/sccp/wire"
)

// callTimeout bounds a single call control request made from a handler.
const callTimeout = 5 * time.Second

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

// activeChannel returns the channel the device currently works on.
func (d *Dispatcher) activeChannel(dev *Device) *Channel {
	id := dev.activeCall()
	if id == 0 {
		return nil
	}
	return d.alloc.Channel(id)
}

// ringingFor finds an inbound channel ringing on one of the device's lines.
// callID and instance narrow the search when non-zero.
func (d *Dispatcher) ringingFor(dev *Device, callID, instance uint32) *Channel {
	if callID != 0 {
		if ch := d.alloc.Channel(callID); ch != nil && ch.State() == StateRinging && dev.instanceOf(ch.line.name) != 0 {
			return ch
		}
		return nil
	}
	for _, ch := range d.alloc.channelList() {
		if ch.State() != StateRinging {
			continue
		}
		inst := dev.instanceOf(ch.line.name)
		if inst == 0 || (instance != 0 && inst != instance) {
			continue
		}
		return ch
	}
	return nil
}

// heldFor returns a held channel of the device, preferring callID.
func (d *Dispatcher) heldFor(dev *Device, callID uint32) *Channel {
	for _, ch := range d.alloc.channelList() {
		if ch.DeviceID() != dev.id || ch.State() != StateHold {
			continue
		}
		if callID == 0 || ch.callID == callID {
			return ch
		}
	}
	return nil
}

func (d *Dispatcher) handleOffHook(s *Session, dev *Device, m wire.Message) {
	msg := m.(*wire.OffHook)
	if ch := d.ringingFor(dev, msg.CallID, msg.LineInstance); ch != nil {
		d.takeCall(s, dev, ch)
		return
	}
	if d.activeChannel(dev) != nil {
		return
	}
	d.startOutbound(s, dev, msg.LineInstance)
}

func (d *Dispatcher) handleOnHook(s *Session, dev *Device, m wire.Message) {
	msg := m.(*wire.OnHook)
	if ch := d.activeChannel(dev); ch != nil {
		d.alloc.End(ch, CauseNormal)
		return
	}
	inst := msg.LineInstance
	d.send(s,
		&wire.StopTone{LineInstance: inst, CallID: msg.CallID},
		&wire.CallState{State: wire.CallStateOnHook, LineInstance: inst, CallID: msg.CallID},
		&wire.SelectSoftKeys{LineInstance: inst, SetIndex: wire.KeySetOnHook, ValidKeyMask: allKeys},
		&wire.SetSpeakerMode{Mode: wire.SpeakerOff},
	)
}

func keypadDigit(button uint32) (byte, bool) {
	switch {
	case button <= 9:
		return byte('0' + button), true
	case button == wire.KeypadStar:
		return '*', true
	case button == wire.KeypadPound:
		return '#', true
	default:
		return 0, false
	}
}

func (d *Dispatcher) handleKeypad(s *Session, dev *Device, m wire.Message) {
	msg := m.(*wire.KeypadButton)
	digit, ok := keypadDigit(msg.Button)
	if !ok {
		d.logger.Debug("unknown keypad button", "device_id", dev.id, "button", msg.Button)
		return
	}
	ch := d.activeChannel(dev)
	if ch == nil {
		return
	}
	if ch.State() == StateConnected {
		d.logger.Debug("in-call digit", "call_id", ch.callID, "digit", string(digit))
		return
	}

	first := ch.Digits() == ""
	accepted, complete := d.alloc.AddDigit(ch, digit)
	if !accepted {
		return
	}
	if first {
		inst := dev.instanceOf(ch.line.name)
		d.send(s, &wire.StopTone{LineInstance: inst, CallID: ch.callID},
			&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: 9, ValidKeyMask: allKeys})
	}
	if complete {
		d.dial(dev, ch, "")
	}
}

func (d *Dispatcher) handleEnbloc(s *Session, dev *Device, m wire.Message) {
	number := m.(*wire.EnblocCall).Number
	ch := d.activeChannel(dev)
	if ch == nil {
		if ch = d.startOutbound(s, dev, 0); ch == nil {
			return
		}
	}
	d.dial(dev, ch, number)
}

func (d *Dispatcher) handleStimulus(s *Session, dev *Device, m wire.Message) {
	msg := m.(*wire.Stimulus)
	switch msg.Stimulus {
	case wire.StimulusLine:
		if ch := d.ringingFor(dev, 0, msg.Instance); ch != nil {
			d.takeCall(s, dev, ch)
			return
		}
		if d.activeChannel(dev) == nil {
			if d.startOutbound(s, dev, msg.Instance) != nil {
				d.send(s, &wire.SetSpeakerMode{Mode: wire.SpeakerOn})
			}
		}
	case wire.StimulusRedial:
		d.redial(s, dev)
	case wire.StimulusSpeedDial:
		sd, ok := dev.speedDialByInstance(msg.Instance)
		if !ok || sd.number == "" {
			d.logger.Debug("speed dial not configured", "device_id", dev.id, "instance", msg.Instance)
			return
		}
		d.dialNumber(s, dev, sd.number)
	case wire.StimulusHold:
		if ch := d.activeChannel(dev); ch != nil {
			d.hold(s, dev, ch)
		} else {
			d.resume(s, dev, 0)
		}
	default:
		d.logger.Debug("stimulus not supported", "device_id", dev.id, "stimulus", msg.Stimulus, "instance", msg.Instance)
	}
}

func (d *Dispatcher) handleSoftKey(s *Session, dev *Device, m wire.Message) {
	msg := m.(*wire.SoftKeyEvent)
	switch msg.Event {
	case wire.SoftKeyRedial:
		d.redial(s, dev)
	case wire.SoftKeyNewCall:
		if ch := d.activeChannel(dev); ch != nil {
			d.hold(s, dev, ch)
		}
		if d.startOutbound(s, dev, msg.LineInstance) != nil {
			d.send(s, &wire.SetSpeakerMode{Mode: wire.SpeakerOn})
		}
	case wire.SoftKeyHold:
		if ch := d.activeChannel(dev); ch != nil {
			d.hold(s, dev, ch)
		}
	case wire.SoftKeyResume:
		d.resume(s, dev, msg.CallID)
	case wire.SoftKeyEndCall:
		ch := d.activeChannel(dev)
		if msg.CallID != 0 {
			if c := d.alloc.Channel(msg.CallID); c != nil && c.DeviceID() == dev.id {
				ch = c
			}
		}
		if ch != nil {
			d.alloc.End(ch, CauseNormal)
		}
	case wire.SoftKeyAnswer:
		if ch := d.ringingFor(dev, msg.CallID, msg.LineInstance); ch != nil {
			d.setAside(s, dev, ch)
			d.send(s, &wire.SetSpeakerMode{Mode: wire.SpeakerOn})
			d.answer(s, dev, ch)
		}
	case wire.SoftKeyDial:
		if ch := d.activeChannel(dev); ch != nil {
			d.dial(dev, ch, "")
		}
	case wire.SoftKeyBackspace:
		if ch := d.activeChannel(dev); ch != nil {
			d.alloc.RemoveDigit(ch)
		}
	default:
		d.logger.Debug("soft key not supported", "device_id", dev.id, "event", msg.Event)
	}
}

// takeCall answers ch on dev after setting the device's current call aside.
func (d *Dispatcher) takeCall(s *Session, dev *Device, ch *Channel) {
	d.setAside(s, dev, ch)
	d.answer(s, dev, ch)
}

// setAside holds the device's connected call, or abandons one that never
// connected, so keep can become the active call.
func (d *Dispatcher) setAside(s *Session, dev *Device, keep *Channel) {
	active := d.activeChannel(dev)
	if active == nil || active == keep {
		return
	}
	if active.State() == StateConnected {
		d.hold(s, dev, active)
		return
	}
	d.alloc.End(active, CauseNormal)
}

// answer binds a ringing channel to dev and silences the other devices on
// the line, which keep the lamp lit while the shared line is in use.
func (d *Dispatcher) answer(s *Session, dev *Device, ch *Channel) {
	ctx, cancel := callContext()
	defer cancel()
	if !d.alloc.Answer(ctx, ch, dev) {
		d.logger.Debug("channel no longer ringing", "call_id", ch.callID, "device_id", dev.id)
		return
	}
	inst := dev.instanceOf(ch.line.name)
	d.send(s,
		&wire.SetRinger{Mode: wire.RingOff, Duration: wire.RingOnce, LineInstance: inst, CallID: ch.callID},
		&wire.StopTone{LineInstance: inst, CallID: ch.callID},
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampOn},
		&wire.CallState{State: wire.CallStateOffHook, LineInstance: inst, CallID: ch.callID},
		&wire.CallState{State: wire.CallStateConnected, LineInstance: inst, CallID: ch.callID},
		callInfo(ch, inst),
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetConnected, ValidKeyMask: allKeys},
		&wire.ActivateCallPlane{LineInstance: inst},
	)
	for _, t := range d.store.onlineTargets(ch.line) {
		if t.device != dev {
			d.stopRinging(t, ch, wire.LampOn)
		}
	}
	d.logger.Info("channel answered", "call_id", ch.callID, "device_id", dev.id, "line", ch.line.name)
}

// startOutbound opens a channel and plays dial tone.
func (d *Dispatcher) startOutbound(s *Session, dev *Device, instance uint32) *Channel {
	ch, err := d.alloc.StartOutbound(dev, instance)
	if err != nil {
		d.logger.Warn("cannot start outbound call", "device_id", dev.id, "instance", instance, "error", err)
		d.send(s, &wire.StartTone{Tone: wire.ToneReorder, LineInstance: instance})
		return nil
	}
	inst := dev.instanceOf(ch.line.name)
	d.send(s,
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampOn},
		&wire.CallState{State: wire.CallStateOffHook, LineInstance: inst, CallID: ch.callID},
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetOffHook, ValidKeyMask: allKeys},
		&wire.ActivateCallPlane{LineInstance: inst},
		&wire.StartTone{Tone: wire.ToneDial, LineInstance: inst, CallID: ch.callID},
	)
	return ch
}

// dial hands the channel to call control. Phone feedback arrives through
// the dialing, connected and dialFailed signals.
func (d *Dispatcher) dial(dev *Device, ch *Channel, number string) {
	ctx, cancel := callContext()
	defer cancel()
	if err := d.alloc.Dial(ctx, ch, number); err != nil {
		d.logger.Debug("dial failed", "call_id", ch.callID, "device_id", dev.id, "error", err)
	}
}

// dialNumber dials number on the active channel, opening one first when
// the phone is idle.
func (d *Dispatcher) dialNumber(s *Session, dev *Device, number string) {
	ch := d.activeChannel(dev)
	if ch != nil && ch.State() != StateOffHook && ch.State() != StateDialing {
		d.logger.Debug("device busy, not dialing", "device_id", dev.id, "call_id", ch.callID)
		return
	}
	if ch == nil {
		if ch = d.startOutbound(s, dev, 0); ch == nil {
			return
		}
		d.send(s, &wire.SetSpeakerMode{Mode: wire.SpeakerOn})
	}
	d.dial(dev, ch, number)
}

func (d *Dispatcher) redial(s *Session, dev *Device) {
	dev.mu.Lock()
	number := dev.lastNumber
	dev.mu.Unlock()
	if number == "" {
		d.send(s, &wire.DisplayNotify{Timeout: 5, Text: "No number to redial"})
		return
	}
	d.dialNumber(s, dev, number)
}

func (d *Dispatcher) hold(s *Session, dev *Device, ch *Channel) {
	if !d.alloc.Hold(ch) {
		return
	}
	dev.clearActiveCall(ch.callID)
	inst := dev.instanceOf(ch.line.name)
	d.send(s,
		&wire.CallState{State: wire.CallStateHold, LineInstance: inst, CallID: ch.callID},
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetOnHold, ValidKeyMask: allKeys},
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampWink},
	)
	d.logger.Info("channel held", "call_id", ch.callID, "device_id", dev.id)
}

// resume reconnects a held channel, holding whatever call is active.
func (d *Dispatcher) resume(s *Session, dev *Device, callID uint32) {
	ch := d.heldFor(dev, callID)
	if ch == nil {
		return
	}
	d.setAside(s, dev, ch)
	if !d.alloc.Resume(ch, dev) {
		return
	}
	inst := dev.instanceOf(ch.line.name)
	d.send(s,
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampOn},
		&wire.CallState{State: wire.CallStateConnected, LineInstance: inst, CallID: ch.callID},
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetConnected, ValidKeyMask: allKeys},
		&wire.ActivateCallPlane{LineInstance: inst},
	)
	d.logger.Info("channel resumed", "call_id", ch.callID, "device_id", dev.id)
}

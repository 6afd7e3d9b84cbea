package sccp

import (
	"github.com/flowpbx/sccpd/internal/sccp/wire"
)

const allKeys uint32 = 0xFFFFFFFF

func ringMode(r Ringer) uint32 {
	switch r {
	case RingerInside:
		return wire.RingInside
	case RingerFeature:
		return wire.RingFeature
	case RingerSilent:
		return wire.RingSilent
	case RingerUrgent:
		return wire.RingUrgent
	default:
		return wire.RingOutside
	}
}

// callInfo describes ch for the phone. Inbound calls present the line, or
// the subscription name when one was requested, as the called party.
func callInfo(ch *Channel, inst uint32) *wire.CallInfo {
	ch.line.mu.Lock()
	name, number := ch.line.callerIDName, ch.line.callerIDNumber
	ch.line.mu.Unlock()
	if number == "" {
		number = ch.line.name
	}
	sub := ch.Subscription()

	info := &wire.CallInfo{LineInstance: inst, CallID: ch.callID}
	if ch.direction == Inbound {
		info.CallType = 1
		info.CalledParty, info.CalledPartyName = number, name
		if sub.Name != "" {
			info.CalledPartyName = sub.Name
		}
		return info
	}
	info.CallType = 2
	info.CallingParty, info.CallingPartyName = number, name
	info.CalledParty = ch.Digits()
	return info
}

// ringing alerts every target of an inbound channel. A target already on a
// call hears the call waiting tone instead of the ringer.
func (d *Dispatcher) ringing(ch *Channel, targets []ringTarget) {
	mode := ringMode(ch.Ringer())
	for _, t := range targets {
		inst := t.assoc.Instance
		msgs := []wire.Message{
			&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampBlink},
			&wire.CallState{State: wire.CallStateRingIn, LineInstance: inst, CallID: ch.callID},
			callInfo(ch, inst),
			&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetRingIn, ValidKeyMask: allKeys},
		}
		if t.device.activeCall() != 0 {
			msgs = append(msgs, &wire.StartTone{Tone: wire.ToneCallWait, LineInstance: inst, CallID: ch.callID})
		} else {
			msgs = append(msgs, &wire.SetRinger{Mode: mode, Duration: wire.RingForever, LineInstance: inst, CallID: ch.callID})
		}
		d.send(t.session, msgs...)
	}
}

// autoAnswered puts the target on speaker. One way answers keep the
// microphone muted on the phone side, so both modes look the same here.
func (d *Dispatcher) autoAnswered(ch *Channel, t ringTarget) {
	inst := t.assoc.Instance
	d.send(t.session,
		&wire.SetSpeakerMode{Mode: wire.SpeakerOn},
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampOn},
		&wire.CallState{State: wire.CallStateConnected, LineInstance: inst, CallID: ch.callID},
		callInfo(ch, inst),
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetConnected, ValidKeyMask: allKeys},
		&wire.ActivateCallPlane{LineInstance: inst},
		&wire.StartTone{Tone: wire.ToneZip, LineInstance: inst, CallID: ch.callID},
	)
	aa, _ := ch.AutoAnswer()
	d.logger.Info("channel auto answered", "call_id", ch.callID, "device_id", t.device.id, "mode", aa.String())
}

// dialing shows the ring back state while call control routes the number.
func (d *Dispatcher) dialing(ch *Channel, number string) {
	dev := d.store.Device(ch.DeviceID())
	if dev == nil {
		return
	}
	inst := dev.instanceOf(ch.line.name)
	d.sendDevice(dev,
		&wire.StopTone{LineInstance: inst, CallID: ch.callID},
		&wire.CallState{State: wire.CallStateProceed, LineInstance: inst, CallID: ch.callID},
		&wire.CallState{State: wire.CallStateRingOut, LineInstance: inst, CallID: ch.callID},
		callInfo(ch, inst),
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetRingOut, ValidKeyMask: allKeys},
		&wire.StartTone{Tone: wire.ToneAlert, LineInstance: inst, CallID: ch.callID},
	)
	d.logger.Info("dialing", "call_id", ch.callID, "device_id", dev.id, "number", number)
}

func (d *Dispatcher) connected(ch *Channel) {
	dev := d.store.Device(ch.DeviceID())
	if dev == nil {
		return
	}
	inst := dev.instanceOf(ch.line.name)
	d.sendDevice(dev,
		&wire.StopTone{LineInstance: inst, CallID: ch.callID},
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampOn},
		&wire.CallState{State: wire.CallStateConnected, LineInstance: inst, CallID: ch.callID},
		&wire.SelectSoftKeys{LineInstance: inst, CallID: ch.callID, SetIndex: wire.KeySetConnected, ValidKeyMask: allKeys},
	)
}

// dialFailed plays the failure tone. The phone stays off hook until the
// user hangs up.
func (d *Dispatcher) dialFailed(ch *Channel, cause Cause) {
	dev := d.store.Device(ch.DeviceID())
	if dev == nil {
		return
	}
	inst := dev.instanceOf(ch.line.name)
	tone, state := wire.ToneReorder, wire.CallStateCongestion
	if cause == CauseBusy {
		tone, state = wire.ToneBusy, wire.CallStateBusy
	}
	d.sendDevice(dev,
		&wire.StopTone{LineInstance: inst, CallID: ch.callID},
		&wire.CallState{State: state, LineInstance: inst, CallID: ch.callID},
		&wire.StartTone{Tone: tone, LineInstance: inst, CallID: ch.callID},
	)
}

// ended clears the call from the bound device, or from every device that
// was still ringing for it.
func (d *Dispatcher) ended(ch *Channel, prev CallState, cause Cause) {
	if devID := ch.DeviceID(); devID != "" {
		if dev := d.store.Device(devID); dev != nil {
			d.clearCall(dev, ch, dev.activeCall() == 0)
		}
		return
	}
	if prev != StateRinging {
		return
	}
	for _, t := range d.store.onlineTargets(ch.line) {
		d.stopRinging(t, ch, wire.LampOff)
	}
	d.logger.Debug("ringing channel ended", "call_id", ch.callID, "cause", cause.String())
}

// clearCall returns the device display to idle for ch. The speaker is only
// switched off when the device has no other call.
func (d *Dispatcher) clearCall(dev *Device, ch *Channel, idle bool) {
	inst := dev.instanceOf(ch.line.name)
	msgs := []wire.Message{
		&wire.StopTone{LineInstance: inst, CallID: ch.callID},
		&wire.SetRinger{Mode: wire.RingOff, Duration: wire.RingOnce, LineInstance: inst, CallID: ch.callID},
		&wire.CallState{State: wire.CallStateOnHook, LineInstance: inst, CallID: ch.callID},
		&wire.ClearPromptStatus{LineInstance: inst, CallID: ch.callID},
	}
	if idle {
		msgs = append(msgs,
			&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: wire.LampOff},
			&wire.SelectSoftKeys{LineInstance: inst, SetIndex: wire.KeySetOnHook, ValidKeyMask: allKeys},
			&wire.SetSpeakerMode{Mode: wire.SpeakerOff},
		)
	}
	d.sendDevice(dev, msgs...)
}

// stopRinging silences one ring target.
func (d *Dispatcher) stopRinging(t ringTarget, ch *Channel, lamp uint32) {
	inst := t.assoc.Instance
	d.send(t.session,
		&wire.SetRinger{Mode: wire.RingOff, Duration: wire.RingOnce, LineInstance: inst, CallID: ch.callID},
		&wire.StopTone{LineInstance: inst, CallID: ch.callID},
		&wire.SetLamp{Stimulus: wire.StimulusLine, Instance: inst, Mode: lamp},
		&wire.CallState{State: wire.CallStateOnHook, LineInstance: inst, CallID: ch.callID},
	)
}

package sccp

import (
	"testing"
)

// addTestChannel puts a bare channel in state on line for state derivation.
func addTestChannel(h *harness, line string, state CallState) *Channel {
	ch := h.alloc.newChannel(h.store.Line(line), Inbound)
	ch.setState(state)
	return ch
}

func TestDeviceState_Precedence(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	if got := h.store.DeviceState("999"); got != DeviceStateInvalid {
		t.Errorf("unknown line: got %s, want invalid", got)
	}

	// Zero online devices wins over any channel state.
	addTestChannel(h, "300", StateRinging)
	if got := h.store.DeviceState("300"); got != DeviceStateUnavailable {
		t.Errorf("line without devices: got %s, want unavailable", got)
	}

	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	if got := h.store.DeviceState("100"); got != DeviceStateNotInUse {
		t.Errorf("idle line: got %s, want not_inuse", got)
	}
	if got := h.store.DeviceState("100@42/aa=1w"); got != DeviceStateNotInUse {
		t.Errorf("dial string with options: got %s, want not_inuse", got)
	}

	ringing := addTestChannel(h, "100", StateRinging)
	if got := h.store.DeviceState("100"); got != DeviceStateRinging {
		t.Errorf("ringing channel: got %s, want ringing", got)
	}

	connected := addTestChannel(h, "100", StateConnected)
	if got := h.store.DeviceState("100"); got != DeviceStateRingingInUse {
		t.Errorf("ringing and connected: got %s, want ringinuse", got)
	}

	h.alloc.End(ringing, CauseNormal)
	if got := h.store.DeviceState("100"); got != DeviceStateInUse {
		t.Errorf("connected only: got %s, want inuse", got)
	}

	held := addTestChannel(h, "100", StateHold)
	if got := h.store.DeviceState("100"); got != DeviceStateOnHold {
		t.Errorf("connected and held: got %s, want onhold", got)
	}

	h.alloc.End(held, CauseNormal)
	h.alloc.End(connected, CauseNormal)
	if got := h.store.DeviceState("100"); got != DeviceStateNotInUse {
		t.Errorf("all ended: got %s, want not_inuse", got)
	}
}

func TestDeviceState_IncomingLimit(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := h.connect("10.0.0.5:50000")
	p.register(dev1)

	addTestChannel(h, "200", StateRinging)
	if got := h.store.DeviceState("200"); got != DeviceStateRinging {
		t.Errorf("below limit: got %s, want ringing", got)
	}
	addTestChannel(h, "200", StateConnected)
	if got := h.store.DeviceState("200"); got != DeviceStateBusy {
		t.Errorf("at limit: got %s, want busy", got)
	}
}

func TestDeviceState_String(t *testing.T) {
	if DeviceStateNotInUse.String() != "not_inuse" {
		t.Errorf("got %q", DeviceStateNotInUse.String())
	}
	if DeviceState(42).String() != "unknown" {
		t.Errorf("out of range state should render as unknown")
	}
}

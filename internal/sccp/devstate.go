package sccp

// DeviceState is the presence of a line as seen by BLF subscribers.
type DeviceState int

const (
	DeviceStateUnknown DeviceState = iota
	DeviceStateInvalid
	DeviceStateUnavailable
	DeviceStateBusy
	DeviceStateNotInUse
	DeviceStateRinging
	DeviceStateRingingInUse
	DeviceStateOnHold
	DeviceStateInUse
)

var deviceStateNames = [...]string{
	"unknown", "invalid", "unavailable", "busy", "not_inuse",
	"ringing", "ringinuse", "onhold", "inuse",
}

func (s DeviceState) String() string {
	if int(s) < len(deviceStateNames) {
		return deviceStateNames[s]
	}
	return "unknown"
}

// DeviceState derives the presence of a line. The checks run in a fixed
// order and the first match wins; BLF consumers depend on that order.
func (st *Store) DeviceState(dial string) DeviceState {
	l := st.Line(lineName(dial))
	if l == nil {
		return DeviceStateInvalid
	}
	if len(st.onlineTargets(l)) == 0 {
		return DeviceStateUnavailable
	}

	l.mu.Lock()
	limit, count := l.incomingLimit, l.channelCount
	l.mu.Unlock()

	if limit > 0 && count >= limit {
		return DeviceStateBusy
	}
	if count == 0 {
		return DeviceStateNotInUse
	}

	var ringing, connected, hold bool
	for _, ch := range l.channelList() {
		switch ch.State() {
		case StateRinging:
			ringing = true
		case StateConnected:
			connected = true
		case StateHold:
			hold = true
		}
	}
	switch {
	case ringing && connected:
		return DeviceStateRingingInUse
	case ringing:
		return DeviceStateRinging
	case hold:
		return DeviceStateOnHold
	default:
		return DeviceStateInUse
	}
}

package sccp

// LineDeviceSnapshot is one device association of a line.
type LineDeviceSnapshot struct {
	DeviceID     string         `json:"device_id"`
	Instance     uint32         `json:"instance"`
	Subscription SubscriptionID `json:"subscription"`
	ForwardAll   string         `json:"forward_all,omitempty"`
	Online       bool           `json:"online"`
}

// LineSnapshot is a point-in-time copy of a line with its derived state.
type LineSnapshot struct {
	Name           string               `json:"name"`
	Label          string               `json:"label,omitempty"`
	CallerIDName   string               `json:"cid_name,omitempty"`
	CallerIDNumber string               `json:"cid_num,omitempty"`
	IncomingLimit  int                  `json:"incoming_limit,omitempty"`
	ForwardAll     string               `json:"forward_all,omitempty"`
	ForwardBusy    string               `json:"forward_busy,omitempty"`
	Subscription   SubscriptionID       `json:"subscription"`
	Channels       int                  `json:"channels"`
	State          string               `json:"state"`
	Devices        []LineDeviceSnapshot `json:"devices"`
}

// LineSnapshot copies the line called name. It reports false when no such
// line exists.
func (st *Store) LineSnapshot(name string) (LineSnapshot, bool) {
	l := st.Line(name)
	if l == nil {
		return LineSnapshot{}, false
	}
	online := make(map[string]bool)
	for _, t := range st.onlineTargets(l) {
		online[t.device.id] = true
	}

	l.mu.Lock()
	snap := LineSnapshot{
		Name:           l.name,
		Label:          l.label,
		CallerIDName:   l.callerIDName,
		CallerIDNumber: l.callerIDNumber,
		IncomingLimit:  l.incomingLimit,
		ForwardAll:     l.forwardAll,
		ForwardBusy:    l.forwardBusy,
		Subscription:   l.defaultSub,
		Channels:       l.channelCount,
		Devices:        make([]LineDeviceSnapshot, 0, len(l.devices)),
	}
	for _, ld := range l.devices {
		snap.Devices = append(snap.Devices, LineDeviceSnapshot{
			DeviceID:     ld.DeviceID,
			Instance:     ld.Instance,
			Subscription: ld.Subscription,
			ForwardAll:   ld.ForwardAll,
			Online:       online[ld.DeviceID],
		})
	}
	l.mu.Unlock()

	snap.State = st.DeviceState(name).String()
	return snap, true
}

// LineSnapshots copies every line in name order.
func (st *Store) LineSnapshots() []LineSnapshot {
	lines := st.Lines()
	out := make([]LineSnapshot, 0, len(lines))
	for _, l := range lines {
		if snap, ok := st.LineSnapshot(l.name); ok {
			out = append(out, snap)
		}
	}
	return out
}

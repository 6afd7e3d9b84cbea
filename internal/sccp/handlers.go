package sccp

import (
	"net/netip"
	"time"

	"github.com/flowpbx/sccpd/internal/sccp/wire"
)

func (d *Dispatcher) handleKeepAlive(s *Session, _ *Device, _ wire.Message) {
	d.send(s, &wire.KeepAliveAck{})
}

// handleRegister serves Register and RegisterTokenReq. The device is looked
// up or created, bound to the session both ways, and any older session of
// the same device is closed.
func (d *Dispatcher) handleRegister(s *Session, _ *Device, m wire.Message) {
	var (
		name       string
		deviceType uint32
		proto      uint8
		token      bool
	)
	switch v := m.(type) {
	case *wire.Register:
		name, deviceType, proto = v.DeviceName, v.DeviceType, v.ProtocolVersion
	case *wire.RegisterTokenReq:
		name, deviceType, token = v.DeviceName, v.DeviceType, true
	}

	if name == "" {
		d.logger.Warn("register without device name", "session_id", s.id, "peer", s.peer.String())
		d.send(s, &wire.RegisterReject{Text: "No Device Name"})
		d.CloseSession(s, ReasonRejected)
		return
	}

	dev, ok := d.store.lookupOrCreateDevice(name, d.opts.AllowAnonymous)
	if !ok {
		d.logger.Warn("registration of unknown device rejected",
			"device_id", name,
			"peer", s.peer.String(),
			"error", ErrRegistrationRejected,
		)
		d.send(s, &wire.RegisterReject{Text: "Unknown Device"})
		d.CloseSession(s, ReasonRejected)
		return
	}

	now := d.mon.Clock().Now()
	prev := d.store.bind(s, dev, s.peer.Addr().Unmap(), now)
	if prev != "" {
		if old := d.store.Session(prev); old != nil {
			d.logger.Warn("device registered on a new session, closing the older one",
				"device_id", dev.id,
				"session_id", s.id,
				"old_session_id", prev,
				"error", ErrSessionConflict,
			)
			d.CloseSession(old, ReasonConflict)
		}
		d.alloc.EndDeviceChannels(dev.id, CauseNormal)
	}

	dev.mu.Lock()
	dev.deviceType = deviceType
	if !token {
		dev.protocolVersion = proto
	}
	dev.mu.Unlock()

	if token {
		d.logger.Info("registration token granted", "device_id", dev.id, "session_id", s.id)
		d.send(s, &wire.RegisterTokenAck{})
		return
	}

	keepalive := uint32(dev.keepaliveOr(d.opts.Keepalive) / time.Second)
	d.send(s,
		&wire.RegisterAck{
			KeepAlive:          keepalive,
			DateTemplate:       d.opts.DateFormat,
			SecondaryKeepAlive: keepalive,
			ProtocolVersion:    min(proto, d.opts.ProtocolVersion),
		},
		&wire.CapabilitiesReq{},
	)
	d.loadMessage(dev)
	d.scheduleCapabilitiesRetry(s, dev, 1)

	d.logger.Info("device registering",
		"device_id", dev.id,
		"session_id", s.id,
		"peer", s.peer.String(),
		"device_type", deviceType,
		"protocol_version", proto,
	)
}

// scheduleCapabilitiesRetry re-sends CapabilitiesReq until the phone
// answers, closing the session once the retries are used up.
func (d *Dispatcher) scheduleCapabilitiesRetry(s *Session, dev *Device, attempt int) {
	t := d.mon.Schedule(d.opts.RegisterRetryWait, "capabilities-retry", func() {
		if s.Closed() || dev.SessionID() != s.id {
			return
		}
		dev.mu.Lock()
		answered := len(dev.capabilities) > 0
		dev.mu.Unlock()
		if answered {
			return
		}
		if attempt > d.opts.RegisterRetries {
			d.logger.Warn("device never sent capabilities, closing session", "device_id", dev.id, "attempts", attempt-1)
			d.CloseSession(s, ReasonRetries)
			return
		}
		d.logger.Debug("re-sending capabilities request", "device_id", dev.id, "attempt", attempt)
		d.send(s, &wire.CapabilitiesReq{})
		d.scheduleCapabilitiesRetry(s, dev, attempt+1)
	})
	s.setRetryTimer(t)
}

// handleUnregister frees the device side; the phone closes the socket.
func (d *Dispatcher) handleUnregister(s *Session, dev *Device, _ wire.Message) {
	d.send(s, &wire.UnregisterAck{})
	s.cancelRetry()
	if dev != nil {
		d.alloc.EndDeviceChannels(dev.id, CauseNormal)
		d.store.unbind(dev, s)
		d.logger.Info("device unregistered", "device_id", dev.id, "session_id", s.id)
	}
	s.setState(SessionClosed)
}

func (d *Dispatcher) handleAlarm(s *Session, _ *Device, m wire.Message) {
	a := m.(*wire.Alarm)
	d.logger.Info("device alarm",
		"session_id", s.id,
		"device_id", s.DeviceID(),
		"severity", a.Severity,
		"text", a.Text,
		"param1", a.Param1,
		"param2", a.Param2,
	)
}

func (d *Dispatcher) handleIpPort(s *Session, _ *Device, m wire.Message) {
	s.mu.Lock()
	s.rtpPort = m.(*wire.IpPort).RTPPort
	s.mu.Unlock()
}

func (d *Dispatcher) handleCapabilities(s *Session, dev *Device, m wire.Message) {
	caps := m.(*wire.CapabilitiesRes).Capabilities
	codecs := make([]uint32, 0, len(caps))
	for _, c := range caps {
		codecs = append(codecs, c.Codec)
	}
	dev.mu.Lock()
	dev.capabilities = codecs
	dev.mu.Unlock()
	s.cancelRetry()
	d.logger.Debug("device capabilities", "device_id", dev.id, "codecs", len(codecs))
}

func (d *Dispatcher) handleButtonTemplate(s *Session, dev *Device, _ wire.Message) {
	dev.mu.Lock()
	buttons := make([]wire.Button, len(dev.template))
	copy(buttons, dev.template)
	dev.mu.Unlock()

	d.send(s, &wire.ButtonTemplate{Total: uint32(len(buttons)), Buttons: buttons})
}

// softKeyTemplate is the fixed soft key layout offered to every phone.
var softKeyTemplate = []wire.SoftKeyDefinition{
	{Label: "Redial", Event: wire.SoftKeyRedial},
	{Label: "NewCall", Event: wire.SoftKeyNewCall},
	{Label: "Hold", Event: wire.SoftKeyHold},
	{Label: "Trnsfer", Event: wire.SoftKeyTransfer},
	{Label: "<<", Event: wire.SoftKeyBackspace},
	{Label: "EndCall", Event: wire.SoftKeyEndCall},
	{Label: "Resume", Event: wire.SoftKeyResume},
	{Label: "Answer", Event: wire.SoftKeyAnswer},
	{Label: "Dial", Event: wire.SoftKeyDial},
}

// softKeySets lists, per key set index, the template positions (1-based)
// shown on the phone.
var softKeySets = map[uint32][]uint8{
	wire.KeySetOnHook:    {1, 2},
	wire.KeySetConnected: {3, 6},
	wire.KeySetOnHold:    {7, 2, 6},
	wire.KeySetRingIn:    {8, 6},
	wire.KeySetOffHook:   {1, 6},
	5:                    {},
	6:                    {},
	7:                    {},
	wire.KeySetRingOut:   {6},
	9:                    {5, 9, 6},
}

func (d *Dispatcher) handleSoftKeyTemplate(s *Session, _ *Device, _ wire.Message) {
	d.send(s, &wire.SoftKeyTemplateRes{
		Total:       uint32(len(softKeyTemplate)),
		Definitions: softKeyTemplate,
	})
}

func (d *Dispatcher) handleSoftKeySet(s *Session, _ *Device, _ wire.Message) {
	sets := make([]wire.SoftKeySet, len(softKeySets))
	for idx, keys := range softKeySets {
		var set wire.SoftKeySet
		for i, k := range keys {
			set.TemplateIndex[i] = k
			set.InfoIndex[i] = 300 + uint16(k)
		}
		sets[idx] = set
	}
	d.send(s, &wire.SoftKeySetRes{Total: uint32(len(sets)), Sets: sets})
}

func (d *Dispatcher) handleLineStat(s *Session, dev *Device, m wire.Message) {
	inst := m.(*wire.LineStatReq).LineNumber
	reply := &wire.LineStat{LineNumber: inst}
	if lb, ok := dev.lineByInstance(inst); ok && inst != 0 {
		if l := d.store.Line(lb.line); l != nil {
			l.mu.Lock()
			reply.DirNumber = l.name
			reply.DisplayName = l.callerIDName
			reply.Label = l.label
			l.mu.Unlock()
		}
	}
	d.send(s, reply)
}

func (d *Dispatcher) handleSpeedDialStat(s *Session, dev *Device, m wire.Message) {
	inst := m.(*wire.SpeedDialStatReq).Number
	reply := &wire.SpeedDialStat{Number: inst}
	if sd, ok := dev.speedDialByInstance(inst); ok {
		reply.DirNumber = sd.number
		reply.DisplayName = sd.label
	}
	d.send(s, reply)
}

func (d *Dispatcher) handleForwardStat(s *Session, dev *Device, m wire.Message) {
	inst := m.(*wire.ForwardStatReq).LineNumber
	reply := &wire.ForwardStat{LineNumber: inst}
	if lb, ok := dev.lineByInstance(inst); ok && inst != 0 {
		if l := d.store.Line(lb.line); l != nil {
			all := ""
			if assoc, ok := l.association(dev.id); ok {
				all = assoc.ForwardAll
			}
			l.mu.Lock()
			if all == "" {
				all = l.forwardAll
			}
			busy := l.forwardBusy
			l.mu.Unlock()
			if all != "" {
				reply.ForwardAllActive, reply.ForwardAllNumber = 1, all
			}
			if busy != "" {
				reply.ForwardBusyActive, reply.ForwardBusyNumber = 1, busy
			}
			if all != "" || busy != "" {
				reply.ActiveForward = 1
			}
		}
	}
	d.send(s, reply)
}

func (d *Dispatcher) handleConfigStat(s *Session, dev *Device, _ wire.Message) {
	dev.mu.Lock()
	reply := &wire.ConfigStat{
		DeviceName:       dev.id,
		Instance:         1,
		UserName:         dev.description,
		ServerName:       d.opts.ServerName,
		NumberLines:      uint32(len(dev.lines)),
		NumberSpeedDials: uint32(len(dev.speedDials)),
	}
	dev.mu.Unlock()
	d.send(s, reply)
}

func (d *Dispatcher) handleTimeDate(s *Session, _ *Device, _ wire.Message) {
	now := d.mon.Clock().Now()
	d.send(s, &wire.DefineTimeDate{
		Year:         uint32(now.Year()),
		Month:        uint32(now.Month()),
		DayOfWeek:    uint32(now.Weekday()),
		Day:          uint32(now.Day()),
		Hour:         uint32(now.Hour()),
		Minute:       uint32(now.Minute()),
		Second:       uint32(now.Second()),
		Milliseconds: uint32(now.Nanosecond() / int(time.Millisecond)),
		SystemTime:   uint32(now.Unix()),
	})
}

func (d *Dispatcher) handleVersion(s *Session, _ *Device, _ wire.Message) {
	d.send(s, &wire.Version{Version: d.opts.ServerName})
}

func (d *Dispatcher) handleServer(s *Session, _ *Device, _ wire.Message) {
	reply := &wire.ServerRes{ServerName: d.opts.ServerName}
	if ap, err := netip.ParseAddrPort(s.conn.LocalAddr().String()); err == nil {
		reply.Port = uint32(ap.Port())
		if ip := ap.Addr().Unmap(); ip.Is4() {
			reply.IP = ip.As4()
		}
	}
	d.send(s, reply)
}

// handleAvailableLines completes registration.
func (d *Dispatcher) handleAvailableLines(s *Session, dev *Device, _ wire.Message) {
	dev.mu.Lock()
	dev.state = Registered
	lines := make([]lineButton, len(dev.lines))
	copy(lines, dev.lines)
	dev.mu.Unlock()
	s.setState(SessionRegistered)

	for _, lb := range lines {
		d.send(s, &wire.SetLamp{Stimulus: wire.StimulusLine, Instance: lb.instance, Mode: wire.LampOff})
	}
	d.send(s, &wire.SelectSoftKeys{SetIndex: wire.KeySetOnHook, ValidKeyMask: 0xFFFFFFFF})
	if dev.Message() != "" {
		d.showMessage(dev)
	}
	d.logger.Info("device registered", "device_id", dev.id, "session_id", s.id, "lines", len(lines))
}

func (d *Dispatcher) handleHeadset(_ *Session, dev *Device, m wire.Message) {
	d.logger.Debug("headset status", "device_id", dev.id, "mode", m.(*wire.HeadsetStatus).Mode)
}

func (d *Dispatcher) handleNoFeature(_ *Session, dev *Device, m wire.Message) {
	d.logger.Debug("feature request ignored", "device_id", dev.id, "message", m.ID().String())
}

func (d *Dispatcher) handleOpenReceiveAck(_ *Session, dev *Device, m wire.Message) {
	ack := m.(*wire.OpenReceiveChannelAck)
	d.logger.Debug("media channel opened",
		"device_id", dev.id,
		"status", ack.Status,
		"ip", netip.AddrFrom4(ack.IP).String(),
		"port", ack.Port,
		"party_id", ack.PassThruPartyID,
	)
}

func (d *Dispatcher) handleUnknown(s *Session, _ *Device, m wire.Message) {
	d.logger.Info("unhandled message", "session_id", s.id, "device_id", s.DeviceID(), "message", m.ID().String())
}

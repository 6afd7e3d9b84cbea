package sccp

import (
	"net/netip"
	"sync"
	"time"

	"github.com/flowpbx/sccpd/internal/sccp/wire"
)

// RegistrationState is the device side of the registration state machine.
type RegistrationState int

const (
	Unregistered RegistrationState = iota
	Registering
	Registered
)

func (s RegistrationState) String() string {
	switch s {
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	default:
		return "unregistered"
	}
}

// lineButton is a line presented on the device.
type lineButton struct {
	instance uint32
	line     string
}

// speedDial is a speed dial button on the device.
type speedDial struct {
	instance uint32
	number   string
	label    string
}

// Device is a phone identity. It is bound to at most one session through
// sessionID; the session refers back through its deviceID.
type Device struct {
	id string

	mu              sync.Mutex
	description     string
	nat             bool
	keepalive       time.Duration
	provisioned     bool
	template        []wire.Button
	lines           []lineButton
	speedDials      []speedDial
	state           RegistrationState
	sessionID       SessionID
	registeredIP    netip.Addr
	registeredAt    time.Time
	deviceType      uint32
	protocolVersion uint8
	capabilities    []uint32
	activeCallID    uint32
	lastNumber      string
	message         string
}

func newDevice(cfg DeviceConfig) *Device {
	d := &Device{id: cfg.ID}
	d.configure(cfg)
	return d
}

// configure must be called with d.mu held or before d is published.
func (d *Device) configure(cfg DeviceConfig) {
	d.description = cfg.Description
	d.nat = cfg.NAT
	d.keepalive = time.Duration(cfg.Keepalive) * time.Second
	d.provisioned = true
	d.template = d.template[:0]
	d.lines = d.lines[:0]
	d.speedDials = d.speedDials[:0]

	var lineInst, sdInst uint32
	for _, b := range cfg.Buttons {
		switch b.Type {
		case ButtonLine:
			lineInst++
			d.lines = append(d.lines, lineButton{instance: lineInst, line: b.Line})
			d.template = append(d.template, wire.Button{Instance: uint8(lineInst), Definition: wire.ButtonLine})
		case ButtonSpeedDial:
			sdInst++
			d.speedDials = append(d.speedDials, speedDial{instance: sdInst, number: b.Number, label: b.Label})
			d.template = append(d.template, wire.Button{Instance: uint8(sdInst), Definition: wire.ButtonSpeedDial})
		}
	}
}

func (d *Device) ID() string { return d.id }

// SessionID returns the handle of the bound session, empty when offline.
func (d *Device) SessionID() SessionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

func (d *Device) State() RegistrationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) NAT() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nat
}

// RegisteredIP returns the address the device registered from.
func (d *Device) RegisteredIP() netip.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registeredIP
}

// Message returns the persisted phone message shown on the display.
func (d *Device) Message() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.message
}

func (d *Device) setMessage(msg string) {
	d.mu.Lock()
	d.message = msg
	d.mu.Unlock()
}

// lineByInstance resolves a line button number. Instance 0 selects the
// first line.
func (d *Device) lineByInstance(instance uint32) (lineButton, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.lines) == 0 {
		return lineButton{}, false
	}
	if instance == 0 {
		return d.lines[0], true
	}
	for _, lb := range d.lines {
		if lb.instance == instance {
			return lb, true
		}
	}
	return lineButton{}, false
}

// instanceOf returns the button number of line on the device.
func (d *Device) instanceOf(line string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, lb := range d.lines {
		if lb.line == line {
			return lb.instance
		}
	}
	return 0
}

func (d *Device) speedDialByInstance(instance uint32) (speedDial, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sd := range d.speedDials {
		if sd.instance == instance {
			return sd, true
		}
	}
	return speedDial{}, false
}

func (d *Device) activeCall() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeCallID
}

func (d *Device) setActiveCall(callID uint32) {
	d.mu.Lock()
	d.activeCallID = callID
	d.mu.Unlock()
}

// clearActiveCall resets the active call only if it still is callID.
func (d *Device) clearActiveCall(callID uint32) {
	d.mu.Lock()
	if d.activeCallID == callID {
		d.activeCallID = 0
	}
	d.mu.Unlock()
}

func (d *Device) keepaliveOr(def time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keepalive > 0 {
		return d.keepalive
	}
	return def
}

// DeviceSnapshot is a point-in-time copy of a device.
type DeviceSnapshot struct {
	ID              string    `json:"id"`
	Description     string    `json:"description,omitempty"`
	State           string    `json:"state"`
	SessionID       string    `json:"session_id,omitempty"`
	IP              string    `json:"ip,omitempty"`
	NAT             bool      `json:"nat"`
	Provisioned     bool      `json:"provisioned"`
	DeviceType      uint32    `json:"device_type,omitempty"`
	ProtocolVersion uint8     `json:"protocol_version,omitempty"`
	Codecs          []string  `json:"codecs,omitempty"`
	Lines           []string  `json:"lines,omitempty"`
	SpeedDials      int       `json:"speed_dials,omitempty"`
	ActiveCallID    uint32    `json:"active_call_id,omitempty"`
	LastNumber      string    `json:"last_number,omitempty"`
	Message         string    `json:"message,omitempty"`
	RegisteredAt    time.Time `json:"registered_at,omitempty"`
}

func (d *Device) Snapshot() DeviceSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := DeviceSnapshot{
		ID:              d.id,
		Description:     d.description,
		State:           d.state.String(),
		SessionID:       string(d.sessionID),
		NAT:             d.nat,
		Provisioned:     d.provisioned,
		DeviceType:      d.deviceType,
		ProtocolVersion: d.protocolVersion,
		SpeedDials:      len(d.speedDials),
		ActiveCallID:    d.activeCallID,
		LastNumber:      d.lastNumber,
		Message:         d.message,
		RegisteredAt:    d.registeredAt,
	}
	if d.registeredIP.IsValid() {
		snap.IP = d.registeredIP.String()
	}
	for _, c := range d.capabilities {
		snap.Codecs = append(snap.Codecs, wire.CodecName(c))
	}
	for _, lb := range d.lines {
		snap.Lines = append(snap.Lines, lb.line)
	}
	return snap
}

package sccp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
)

// Session close reasons reported to the Observer.
const (
	ReasonSocket         = "socket"
	ReasonDecode         = "decode_error"
	ReasonKeepalive      = "keepalive"
	ReasonConflict       = "conflict"
	ReasonAddressChanged = "address_changed"
	ReasonRejected       = "rejected"
	ReasonRemoved        = "removed"
	ReasonRetries        = "registration_timeout"
	ReasonShutdown       = "shutdown"
)

// Options are the protocol settings resolved once at startup.
type Options struct {
	Keepalive         time.Duration
	KeepaliveGrace    time.Duration
	AllowAnonymous    bool
	DateFormat        string
	ServerName        string
	ProtocolVersion   uint8
	RegisterRetries   int
	RegisterRetryWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		Keepalive:         60 * time.Second,
		KeepaliveGrace:    10 * time.Second,
		AllowAnonymous:    true,
		DateFormat:        "D/M/YA",
		ServerName:        "sccpd",
		ProtocolVersion:   11,
		RegisterRetries:   3,
		RegisterRetryWait: 5 * time.Second,
	}
}

// Observer receives protocol counters. Implementations must be cheap and
// safe for concurrent use.
type Observer interface {
	MessageReceived(id wire.MessageID)
	MessageSent(id wire.MessageID)
	SessionClosed(reason string)
}

type nopObserver struct{}

func (nopObserver) MessageReceived(wire.MessageID) {}
func (nopObserver) MessageSent(wire.MessageID)     {}
func (nopObserver) SessionClosed(string)           {}

// MessageStore persists the per-device display message.
type MessageStore interface {
	DeviceMessage(ctx context.Context, deviceID string) (string, error)
	SetDeviceMessage(ctx context.Context, deviceID, message string) error
	DeleteDeviceMessage(ctx context.Context, deviceID string) error
}

// preRegistration lists the kinds accepted before a device is bound.
var preRegistration = map[wire.MessageID]bool{
	wire.RegisterMessage:         true,
	wire.RegisterTokenReqMessage: true,
	wire.UnregisterMessage:       true,
	wire.AlarmMessage:            true,
	wire.KeepAliveMessage:        true,
	wire.IpPortMessage:           true,
}

type handlerFunc func(s *Session, dev *Device, m wire.Message)

// Dispatcher validates every inbound message against the session and device
// state and routes it to its handler.
type Dispatcher struct {
	store    *Store
	alloc    *Allocator
	mon      *monitor.Monitor
	messages MessageStore
	opts     Options
	observer Observer
	logger   *slog.Logger
	handlers map[wire.MessageID]handlerFunc
}

// NewDispatcher wires the dispatcher to its registries. messages may be nil.
func NewDispatcher(store *Store, alloc *Allocator, mon *monitor.Monitor, messages MessageStore, opts Options, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		alloc:    alloc,
		mon:      mon,
		messages: messages,
		opts:     opts,
		observer: nopObserver{},
		logger:   logger.With("subsystem", "dispatcher"),
	}
	alloc.signal = d
	d.handlers = map[wire.MessageID]handlerFunc{
		wire.KeepAliveMessage:              d.handleKeepAlive,
		wire.RegisterMessage:               d.handleRegister,
		wire.RegisterTokenReqMessage:       d.handleRegister,
		wire.UnregisterMessage:             d.handleUnregister,
		wire.AlarmMessage:                  d.handleAlarm,
		wire.IpPortMessage:                 d.handleIpPort,
		wire.CapabilitiesResMessage:        d.handleCapabilities,
		wire.ButtonTemplateReqMessage:      d.handleButtonTemplate,
		wire.SoftKeyTemplateReqMessage:     d.handleSoftKeyTemplate,
		wire.SoftKeySetReqMessage:          d.handleSoftKeySet,
		wire.LineStatReqMessage:            d.handleLineStat,
		wire.SpeedDialStatReqMessage:       d.handleSpeedDialStat,
		wire.ForwardStatReqMessage:         d.handleForwardStat,
		wire.ConfigStatReqMessage:          d.handleConfigStat,
		wire.TimeDateReqMessage:            d.handleTimeDate,
		wire.VersionReqMessage:             d.handleVersion,
		wire.ServerReqMessage:              d.handleServer,
		wire.RegisterAvailableLinesMessage: d.handleAvailableLines,
		wire.HeadsetStatusMessage:          d.handleHeadset,
		wire.FeatureStatReqMessage:         d.handleNoFeature,
		wire.ServiceURLStatReqMessage:      d.handleNoFeature,
		wire.OpenReceiveChannelAckMessage:  d.handleOpenReceiveAck,
		wire.OffHookMessage:                d.handleOffHook,
		wire.OnHookMessage:                 d.handleOnHook,
		wire.KeypadButtonMessage:           d.handleKeypad,
		wire.EnblocCallMessage:             d.handleEnbloc,
		wire.StimulusMessage:               d.handleStimulus,
		wire.SoftKeyEventMessage:           d.handleSoftKey,
	}
	return d
}

// SetObserver installs protocol counters.
func (d *Dispatcher) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
}

func (d *Dispatcher) Store() *Store             { return d.store }
func (d *Dispatcher) Allocator() *Allocator     { return d.alloc }
func (d *Dispatcher) Monitor() *monitor.Monitor { return d.mon }

// Accept registers a new session and starts its keepalive supervision.
func (d *Dispatcher) Accept(s *Session) {
	d.store.AddSession(s)
	d.armKeepalive(s, d.opts.Keepalive+d.opts.KeepaliveGrace)
	d.logger.Info("session opened", "session_id", s.id, "peer", s.peer.String())
}

// Handle processes one decoded message. The last-activity timestamp is
// updated before any validation so rejected traffic still counts as life.
func (d *Dispatcher) Handle(s *Session, m wire.Message) {
	s.Touch(d.mon.Clock().Now())
	id := m.ID()
	d.observer.MessageReceived(id)

	if s.Closed() {
		return
	}

	var dev *Device
	devID := s.DeviceID()
	if devID == "" {
		if !preRegistration[id] {
			d.logger.Warn("message before registration dropped",
				"session_id", s.id,
				"peer", s.peer.String(),
				"message", id.String(),
				"error", ErrProtocolViolation,
			)
			return
		}
	} else {
		dev = d.store.Device(devID)
		if dev == nil {
			d.logger.Warn("session bound to removed device", "session_id", s.id, "device_id", devID)
			d.CloseSession(s, ReasonRemoved)
			return
		}
		if dev.SessionID() != s.id {
			d.logger.Info("stale session for device, closing",
				"device_id", dev.id,
				"session_id", s.id,
				"current_session_id", dev.SessionID(),
				"error", ErrSessionConflict,
			)
			d.CloseSession(s, ReasonConflict)
			return
		}
		if ip := dev.RegisteredIP(); ip.IsValid() && ip != s.peer.Addr().Unmap() {
			if dev.NAT() {
				d.logger.Warn("device sending from a different address",
					"device_id", dev.id,
					"registered_ip", ip.String(),
					"peer", s.peer.String(),
				)
			} else {
				d.logger.Error("device address changed, closing session; set nat for devices behind a firewall",
					"device_id", dev.id,
					"registered_ip", ip.String(),
					"peer", s.peer.String(),
					"error", ErrAddressChanged,
				)
				d.CloseSession(s, ReasonAddressChanged)
				return
			}
		}
	}

	if id != wire.KeepAliveMessage {
		d.logger.Debug("message received", "session_id", s.id, "device_id", devID, "message", id.String())
	}

	h, ok := d.handlers[id]
	if !ok {
		d.handleUnknown(s, dev, m)
		return
	}
	h(s, dev, m)
}

// CloseSession tears a session down: timers are cancelled, the socket is
// closed, the session leaves the registry and its device goes offline when
// still bound to it. Closing twice is harmless.
func (d *Dispatcher) CloseSession(s *Session, reason string) {
	first, timers := s.markClosed()
	if !first {
		return
	}
	for _, t := range timers {
		t.Cancel()
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		d.logger.Debug("closing session socket", "session_id", s.id, "error", err)
	}
	d.store.RemoveSession(s.id)

	devID := s.DeviceID()
	if devID != "" {
		if dev := d.store.Device(devID); dev != nil && d.store.unbind(dev, s) {
			if n := d.alloc.EndDeviceChannels(devID, CauseUnavailable); n > 0 {
				d.logger.Info("ended channels of departed device", "device_id", devID, "channels", n)
			}
		}
	}
	d.observer.SessionClosed(reason)
	d.logger.Info("session closed", "session_id", s.id, "device_id", devID, "peer", s.peer.String(), "reason", reason)
}

// send writes messages to a session, logging failures. The reader goroutine
// notices a broken socket and closes the session.
func (d *Dispatcher) send(s *Session, msgs ...wire.Message) {
	if s == nil || len(msgs) == 0 {
		return
	}
	if err := s.Send(msgs...); err != nil {
		d.logger.Debug("send failed", "session_id", s.id, "error", err)
		return
	}
	for _, m := range msgs {
		d.observer.MessageSent(m.ID())
	}
}

// sendDevice writes to the device's current session, if it has one.
func (d *Dispatcher) sendDevice(dev *Device, msgs ...wire.Message) {
	if dev == nil {
		return
	}
	_, s := d.store.deviceOnline(dev.id)
	d.send(s, msgs...)
}

func (d *Dispatcher) armKeepalive(s *Session, after time.Duration) {
	t := d.mon.Schedule(after, "keepalive", func() { d.checkKeepalive(s) })
	s.setKeepaliveTimer(t)
}

// checkKeepalive runs on the monitor goroutine.
func (d *Dispatcher) checkKeepalive(s *Session) {
	if s.Closed() {
		return
	}
	interval := d.opts.Keepalive
	if dev := d.store.Device(s.DeviceID()); dev != nil {
		interval = dev.keepaliveOr(interval)
	}
	limit := interval + d.opts.KeepaliveGrace
	idle := d.mon.Clock().Now().Sub(s.LastActivity())
	if idle >= limit {
		d.logger.Warn("keepalive expired",
			"session_id", s.id,
			"device_id", s.DeviceID(),
			"idle", idle.Round(time.Second),
			"error", ErrKeepaliveExpired,
		)
		d.CloseSession(s, ReasonKeepalive)
		return
	}
	d.armKeepalive(s, limit-idle)
}

// ApplyConfig replaces provisioning. Sessions of removed devices are closed.
func (d *Dispatcher) ApplyConfig(p Provisioning) (ApplyResult, error) {
	if err := p.Validate(); err != nil {
		return ApplyResult{}, fmt.Errorf("validating provisioning: %w", err)
	}
	res, removed := d.store.applyConfig(p)
	for _, dev := range removed {
		if s := d.store.Session(dev.SessionID()); s != nil {
			d.CloseSession(s, ReasonRemoved)
		}
		d.alloc.EndDeviceChannels(dev.id, CauseUnavailable)
	}
	d.logger.Info("provisioning applied",
		"lines", len(p.Lines),
		"devices", len(p.Devices),
		"lines_added", len(res.LinesAdded),
		"lines_removed", len(res.LinesRemoved),
		"devices_added", len(res.DevicesAdded),
		"devices_removed", len(res.DevicesRemoved),
	)
	return res, nil
}

// SetDeviceMessage persists a display message and shows it when the device
// is online. An empty message clears it.
func (d *Dispatcher) SetDeviceMessage(ctx context.Context, deviceID, message string) error {
	dev := d.store.Device(deviceID)
	if dev == nil {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	if d.messages != nil {
		var err error
		if message == "" {
			err = d.messages.DeleteDeviceMessage(ctx, deviceID)
		} else {
			err = d.messages.SetDeviceMessage(ctx, deviceID, message)
		}
		if err != nil {
			return fmt.Errorf("persisting device message: %w", err)
		}
	}
	dev.setMessage(message)
	d.showMessage(dev)
	return nil
}

func (d *Dispatcher) loadMessage(dev *Device) {
	if d.messages == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := d.messages.DeviceMessage(ctx, dev.id)
	if err != nil {
		d.logger.Warn("loading device message", "device_id", dev.id, "error", err)
		return
	}
	dev.setMessage(msg)
}

func (d *Dispatcher) showMessage(dev *Device) {
	if msg := dev.Message(); msg != "" {
		d.sendDevice(dev, &wire.DisplayPromptStatus{Text: msg})
		return
	}
	d.sendDevice(dev, &wire.ClearPromptStatus{})
}

// Shutdown forces open channels to ended and closes every session.
func (d *Dispatcher) Shutdown() {
	if n := d.alloc.EndAll(CauseNormal); n > 0 {
		d.logger.Info("ended open channels", "channels", n)
	}
	for _, s := range d.store.Sessions() {
		d.CloseSession(s, ReasonShutdown)
	}
}

// Release drops devices, then lines, then sessions from the registries.
func (d *Dispatcher) Release() {
	d.store.clear()
}

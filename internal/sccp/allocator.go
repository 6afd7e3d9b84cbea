package sccp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flowpbx/sccpd/internal/monitor"
)

// Digit collection timeouts used when the configuration leaves them unset.
const (
	DefaultFirstDigitTimeout = 16 * time.Second
	DefaultDigitTimeout      = 8 * time.Second
)

// signaller tells phones about channel changes. The dispatcher implements it.
type signaller interface {
	ringing(ch *Channel, targets []ringTarget)
	autoAnswered(ch *Channel, t ringTarget)
	dialing(ch *Channel, number string)
	connected(ch *Channel)
	dialFailed(ch *Channel, cause Cause)
	ended(ch *Channel, prev CallState, cause Cause)
}

type nopSignaller struct{}

func (nopSignaller) ringing(*Channel, []ringTarget)    {}
func (nopSignaller) autoAnswered(*Channel, ringTarget) {}
func (nopSignaller) dialing(*Channel, string)          {}
func (nopSignaller) connected(*Channel)                {}
func (nopSignaller) dialFailed(*Channel, Cause)        {}
func (nopSignaller) ended(*Channel, CallState, Cause)  {}

// Allocator creates and destroys channels and assigns call ids.
type Allocator struct {
	store  *Store
	calls  CallControl
	mon    *monitor.Monitor
	logger *slog.Logger
	signal signaller

	firstDigitTimeout time.Duration
	digitTimeout      time.Duration

	mu         sync.Mutex
	lastCallID uint32
	channels   map[uint32]*Channel
}

func NewAllocator(store *Store, calls CallControl, mon *monitor.Monitor, logger *slog.Logger) *Allocator {
	return &Allocator{
		store:             store,
		calls:             calls,
		mon:               mon,
		logger:            logger.With("subsystem", "allocator"),
		signal:            nopSignaller{},
		firstDigitTimeout: DefaultFirstDigitTimeout,
		digitTimeout:      DefaultDigitTimeout,
		channels:          make(map[uint32]*Channel),
	}
}

// SetDigitTimeouts overrides the digit collection timeouts.
func (a *Allocator) SetDigitTimeouts(first, next time.Duration) {
	if first > 0 {
		a.firstDigitTimeout = first
	}
	if next > 0 {
		a.digitTimeout = next
	}
}

// RequestChannel allocates an inbound channel for a dial string of the form
// line[@subNumber[:subName]][/options] and hands it to call control.
func (a *Allocator) RequestChannel(ctx context.Context, dial string) (*Channel, error) {
	req := ParseDialString(dial)
	for _, tok := range req.Ignored {
		a.logger.Warn("ignoring unknown dial option", "dial", dial, "option", tok)
	}

	line := a.store.Line(req.Line)
	if line == nil {
		return nil, fmt.Errorf("%w: %q", ErrLineNotFound, req.Line)
	}
	targets := a.store.onlineTargets(line)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoDeviceRegistered, req.Line)
	}

	sub := req.Subscription
	if sub.IsZero() {
		sub = line.DefaultSubscription()
	}

	line.mu.Lock()
	forwardTo := line.forwardAll
	if forwardTo == "" && line.channelCount > 0 {
		forwardTo = line.forwardBusy
	}
	line.mu.Unlock()

	ch := a.newChannel(line, Inbound)
	ch.mu.Lock()
	ch.subscription = sub
	ch.autoAnswer = req.AutoAnswer
	ch.autoAnswerCause = req.AutoAnswerCause
	ch.ringer = req.Ringer
	ch.forwardTo = forwardTo
	ch.mu.Unlock()

	leg, err := a.calls.Attach(ctx, ch)
	if err != nil {
		a.discard(ch)
		a.logger.Warn("call control refused channel", "call_id", ch.callID, "line", line.name, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	ch.mu.Lock()
	ch.leg = leg
	ch.state = StateRinging
	ch.mu.Unlock()

	if !req.Subscription.IsZero() {
		var matched []ringTarget
		for _, t := range targets {
			if t.assoc.Subscription.Number == req.Subscription.Number {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			targets = matched
		}
	}

	answered := false
	if req.AutoAnswer != AutoAnswerNone {
		for _, t := range targets {
			if t.device.activeCall() != 0 {
				continue
			}
			a.bindAnswer(ch, t.device)
			a.signal.autoAnswered(ch, t)
			if err := leg.Answer(ctx); err != nil {
				a.logger.Warn("call control answer failed", "call_id", ch.callID, "error", err)
			}
			answered = true
			break
		}
	}
	if !answered {
		a.signal.ringing(ch, targets)
	}

	a.logger.Info("channel requested",
		"call_id", ch.callID,
		"line", line.name,
		"subscription", sub.Number,
		"auto_answer", req.AutoAnswer.String(),
		"ringer", req.Ringer.String(),
		"targets", len(targets),
	)
	a.mon.Wake()
	return ch, nil
}

// newChannel assigns a call id and binds a fresh channel to line.
func (a *Allocator) newChannel(line *Line, dir Direction) *Channel {
	a.mu.Lock()
	a.lastCallID++
	ch := &Channel{
		callID:    a.lastCallID,
		line:      line,
		direction: dir,
		createdAt: a.mon.Clock().Now(),
	}
	a.channels[ch.callID] = ch
	a.mu.Unlock()

	line.addChannel(ch)
	return ch
}

// discard undoes newChannel after a failed handoff, returning the call id
// when no other channel was allocated in between.
func (a *Allocator) discard(ch *Channel) {
	ch.line.removeChannel(ch)
	a.mu.Lock()
	delete(a.channels, ch.callID)
	if a.lastCallID == ch.callID {
		a.lastCallID--
	}
	a.mu.Unlock()
	ch.setState(StateEnded)
}

// release removes a finished channel from the registries.
func (a *Allocator) release(ch *Channel) {
	ch.line.removeChannel(ch)
	a.mu.Lock()
	delete(a.channels, ch.callID)
	a.mu.Unlock()
}

// bindAnswer binds ch to the answering device.
func (a *Allocator) bindAnswer(ch *Channel, d *Device) {
	ch.mu.Lock()
	ch.deviceID = d.id
	ch.state = StateConnected
	ch.mu.Unlock()
	d.setActiveCall(ch.callID)
}

// Answer binds a ringing channel to d. It returns false when the channel
// stopped ringing or another device was faster.
func (a *Allocator) Answer(ctx context.Context, ch *Channel, d *Device) bool {
	ch.mu.Lock()
	if ch.state != StateRinging {
		ch.mu.Unlock()
		return false
	}
	ch.deviceID = d.id
	ch.state = StateConnected
	leg := ch.leg
	ch.mu.Unlock()
	d.setActiveCall(ch.callID)

	if leg != nil {
		if err := leg.Answer(ctx); err != nil {
			a.logger.Warn("call control answer failed", "call_id", ch.callID, "error", err)
		}
	}
	return true
}

// StartOutbound opens a channel for a phone going off hook on the line
// button instance. Digit collection starts with the first digit timeout.
func (a *Allocator) StartOutbound(d *Device, instance uint32) (*Channel, error) {
	lb, ok := d.lineByInstance(instance)
	if !ok {
		return nil, fmt.Errorf("%w: device %s has no line %d", ErrLineNotFound, d.id, instance)
	}
	line := a.store.Line(lb.line)
	if line == nil {
		return nil, fmt.Errorf("%w: %q", ErrLineNotFound, lb.line)
	}

	sub := line.DefaultSubscription()
	if assoc, ok := line.association(d.id); ok && !assoc.Subscription.IsZero() {
		sub = assoc.Subscription
	}

	ch := a.newChannel(line, Outbound)
	ch.mu.Lock()
	ch.deviceID = d.id
	ch.subscription = sub
	ch.state = StateOffHook
	ch.mu.Unlock()
	d.setActiveCall(ch.callID)

	a.armDigitTimer(ch, a.firstDigitTimeout)
	return ch, nil
}

func (a *Allocator) armDigitTimer(ch *Channel, after time.Duration) {
	t := a.mon.Schedule(after, "digit-timeout", func() {
		if err := a.Dial(context.Background(), ch, ""); err != nil {
			a.logger.Debug("digit timeout dial failed", "call_id", ch.callID, "error", err)
		}
	})
	ch.mu.Lock()
	if ch.digitTimer != nil {
		ch.digitTimer.Cancel()
	}
	if ch.state != StateOffHook && ch.state != StateDialing {
		t.Cancel()
		t = nil
	}
	ch.digitTimer = t
	ch.mu.Unlock()
}

// AddDigit appends a keypad digit to a channel collecting digits. It
// reports whether the number is complete and should be dialed now.
func (a *Allocator) AddDigit(ch *Channel, digit byte) (accepted, complete bool) {
	ch.mu.Lock()
	if ch.state != StateOffHook && ch.state != StateDialing {
		ch.mu.Unlock()
		return false, false
	}
	if digit == '#' {
		ch.mu.Unlock()
		return true, true
	}
	ch.digits += string(digit)
	ch.state = StateDialing
	ch.mu.Unlock()

	a.armDigitTimer(ch, a.digitTimeout)
	return true, false
}

// RemoveDigit drops the last collected digit.
func (a *Allocator) RemoveDigit(ch *Channel) {
	ch.mu.Lock()
	if ch.state == StateDialing && len(ch.digits) > 0 {
		ch.digits = ch.digits[:len(ch.digits)-1]
	}
	ch.mu.Unlock()
}

// Dial hands the collected number, or number when given, to call control.
// An empty number ends the channel.
func (a *Allocator) Dial(ctx context.Context, ch *Channel, number string) error {
	ch.mu.Lock()
	if ch.state != StateOffHook && ch.state != StateDialing {
		ch.mu.Unlock()
		return fmt.Errorf("%w: channel %d is %s", ErrProtocolViolation, ch.callID, ch.state)
	}
	if ch.digitTimer != nil {
		ch.digitTimer.Cancel()
		ch.digitTimer = nil
	}
	if number != "" {
		ch.digits = number
	}
	number = ch.digits
	if number == "" {
		ch.mu.Unlock()
		a.End(ch, CauseNormal)
		return nil
	}
	ch.state = StateRingOut
	deviceID := ch.deviceID
	ch.mu.Unlock()
	a.signal.dialing(ch, number)

	if d := a.store.Device(deviceID); d != nil {
		d.mu.Lock()
		d.lastNumber = number
		d.mu.Unlock()
	}

	leg, err := a.calls.Originate(ctx, ch, number)
	if err != nil {
		cause := CauseCongestion
		if errors.Is(err, ErrLineNotFound) || errors.Is(err, ErrNoDeviceRegistered) {
			cause = CauseUnavailable
		}
		a.logger.Info("outbound call failed", "call_id", ch.callID, "number", number, "cause", cause.String(), "error", err)
		a.signal.dialFailed(ch, cause)
		a.finish(ch, cause, false)
		return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	ch.mu.Lock()
	if ch.state == StateEnded {
		ch.mu.Unlock()
		leg.Hangup(CauseNormal)
		return nil
	}
	ch.leg = leg
	ch.mu.Unlock()
	if ea, ok := leg.(earlyAnswer); ok && ea.answeredEarly() {
		if err := a.RemoteAnswered(ch.callID); err != nil {
			a.logger.Debug("early answer", "call_id", ch.callID, "error", err)
		}
	}
	a.mon.Wake()
	return nil
}

// End hangs up ch and tells the phones. Ending twice is harmless.
func (a *Allocator) End(ch *Channel, cause Cause) {
	a.finish(ch, cause, true)
}

func (a *Allocator) finish(ch *Channel, cause Cause, notify bool) {
	ch.mu.Lock()
	if ch.state == StateEnded {
		ch.mu.Unlock()
		return
	}
	prev := ch.state
	ch.state = StateEnded
	if ch.digitTimer != nil {
		ch.digitTimer.Cancel()
		ch.digitTimer = nil
	}
	leg := ch.leg
	deviceID := ch.deviceID
	ch.mu.Unlock()

	a.release(ch)
	if d := a.store.Device(deviceID); d != nil {
		d.clearActiveCall(ch.callID)
	}
	if leg != nil {
		leg.Hangup(cause)
	}
	if notify {
		a.signal.ended(ch, prev, cause)
	}
	a.logger.Debug("channel ended", "call_id", ch.callID, "line", ch.line.name, "state", prev.String(), "cause", cause.String())
}

// Hold parks a connected channel. It returns false when the channel is
// not connected.
func (a *Allocator) Hold(ch *Channel) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != StateConnected {
		return false
	}
	ch.state = StateHold
	return true
}

// Resume reconnects a held channel.
func (a *Allocator) Resume(ch *Channel, d *Device) bool {
	ch.mu.Lock()
	if ch.state != StateHold {
		ch.mu.Unlock()
		return false
	}
	ch.state = StateConnected
	ch.mu.Unlock()
	d.setActiveCall(ch.callID)
	return true
}

// Hangup ends the channel with the given call id.
func (a *Allocator) Hangup(callID uint32, cause Cause) error {
	ch := a.Channel(callID)
	if ch == nil {
		return fmt.Errorf("%w: %d", ErrChannelNotFound, callID)
	}
	a.End(ch, cause)
	return nil
}

// RemoteAnswered marks an outbound channel as connected.
func (a *Allocator) RemoteAnswered(callID uint32) error {
	ch := a.Channel(callID)
	if ch == nil {
		return fmt.Errorf("%w: %d", ErrChannelNotFound, callID)
	}
	ch.mu.Lock()
	if ch.state != StateRingOut {
		st := ch.state
		ch.mu.Unlock()
		return fmt.Errorf("%w: channel %d is %s", ErrProtocolViolation, callID, st)
	}
	ch.state = StateConnected
	ch.mu.Unlock()
	a.signal.connected(ch)
	return nil
}

// RemoteHangup ends a channel released by the far end.
func (a *Allocator) RemoteHangup(callID uint32, cause Cause) error {
	return a.Hangup(callID, cause)
}

// EndDeviceChannels ends every channel bound to the device.
func (a *Allocator) EndDeviceChannels(deviceID string, cause Cause) int {
	n := 0
	for _, ch := range a.channelList() {
		if ch.DeviceID() == deviceID {
			a.End(ch, cause)
			n++
		}
	}
	return n
}

// EndAll forces every live channel to ended.
func (a *Allocator) EndAll(cause Cause) int {
	chans := a.channelList()
	for _, ch := range chans {
		a.End(ch, cause)
	}
	return len(chans)
}

// Channel returns the live channel with callID, or nil.
func (a *Allocator) Channel(callID uint32) *Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channels[callID]
}

func (a *Allocator) channelList() []*Channel {
	a.mu.Lock()
	out := make([]*Channel, 0, len(a.channels))
	for _, ch := range a.channels {
		out = append(out, ch)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].callID < out[j].callID })
	return out
}

// Channels returns snapshots of all live channels ordered by call id.
func (a *Allocator) Channels() []ChannelSnapshot {
	chans := a.channelList()
	out := make([]ChannelSnapshot, 0, len(chans))
	for _, ch := range chans {
		out = append(out, ch.Snapshot())
	}
	return out
}

// ChannelCount returns the number of live channels.
func (a *Allocator) ChannelCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.channels)
}

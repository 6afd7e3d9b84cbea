package sccp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// CallLeg is call control's handle on one channel.
type CallLeg interface {
	ID() string
	// Answer reports that a phone picked up an inbound channel.
	Answer(ctx context.Context) error
	// Hangup releases the leg. It must be safe to call more than once.
	Hangup(cause Cause)
}

// CallControl is the routing engine the server hands channels to.
type CallControl interface {
	// Attach is called once for every channel allocated by RequestChannel.
	Attach(ctx context.Context, ch *Channel) (CallLeg, error)
	// Originate is called when a phone has dialed number on ch.
	Originate(ctx context.Context, ch *Channel, number string) (CallLeg, error)
}

// earlyAnswer is implemented by legs whose far end may answer before
// Originate returns.
type earlyAnswer interface {
	answeredEarly() bool
}

// ChannelEvents lets call control report progress on a channel back to
// the server.
type ChannelEvents interface {
	RequestChannel(ctx context.Context, dial string) (*Channel, error)
	RemoteAnswered(callID uint32) error
	RemoteHangup(callID uint32, cause Cause) error
}

// LocalCallControl connects phones on this server to each other. A dialed
// number that names a configured line rings that line; anything else is
// refused as unavailable. It only moves signalling state, media is not
// bridged.
type LocalCallControl struct {
	logger *slog.Logger

	mu     sync.Mutex
	events ChannelEvents
	legs   map[string]*localLeg
}

func NewLocalCallControl(logger *slog.Logger) *LocalCallControl {
	return &LocalCallControl{
		logger: logger.With("subsystem", "callcontrol"),
		legs:   make(map[string]*localLeg),
	}
}

// Bind sets the server the collaborator reports back to.
func (cc *LocalCallControl) Bind(events ChannelEvents) {
	cc.mu.Lock()
	cc.events = events
	cc.mu.Unlock()
}

type localLeg struct {
	id     string
	callID uint32
	cc     *LocalCallControl

	mu       sync.Mutex
	peer     *localLeg
	done     bool
	answered bool
}

func (l *localLeg) ID() string { return l.id }

func (l *localLeg) answeredEarly() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.answered
}

func (l *localLeg) Answer(ctx context.Context) error {
	l.mu.Lock()
	peer := l.peer
	l.mu.Unlock()
	if peer == nil {
		return nil
	}
	events := l.cc.eventsSink()
	if events == nil {
		return nil
	}
	return events.RemoteAnswered(peer.callID)
}

func (l *localLeg) Hangup(cause Cause) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	peer := l.peer
	l.peer = nil
	l.mu.Unlock()

	l.cc.forget(l.id)
	l.cc.logger.Debug("leg hung up", "leg_id", l.id, "call_id", l.callID, "cause", cause.String())

	if peer == nil {
		return
	}
	peer.mu.Lock()
	peer.peer = nil
	peer.mu.Unlock()
	if events := l.cc.eventsSink(); events != nil {
		if err := events.RemoteHangup(peer.callID, cause); err != nil {
			l.cc.logger.Debug("peer already gone", "call_id", peer.callID, "error", err)
		}
	}
}

func (cc *LocalCallControl) eventsSink() ChannelEvents {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.events
}

func (cc *LocalCallControl) newLeg(callID uint32) *localLeg {
	leg := &localLeg{id: uuid.NewString(), callID: callID, cc: cc}
	cc.mu.Lock()
	cc.legs[leg.id] = leg
	cc.mu.Unlock()
	return leg
}

func (cc *LocalCallControl) forget(id string) {
	cc.mu.Lock()
	delete(cc.legs, id)
	cc.mu.Unlock()
}

// Legs returns the number of legs not yet hung up.
func (cc *LocalCallControl) Legs() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.legs)
}

func (cc *LocalCallControl) Attach(ctx context.Context, ch *Channel) (CallLeg, error) {
	leg := cc.newLeg(ch.CallID())
	cc.logger.Debug("channel attached", "call_id", ch.CallID(), "line", ch.LineName(), "leg_id", leg.id)
	return leg, nil
}

func (cc *LocalCallControl) Originate(ctx context.Context, ch *Channel, number string) (CallLeg, error) {
	events := cc.eventsSink()
	if events == nil {
		return nil, ErrLineNotFound
	}
	caller := cc.newLeg(ch.CallID())

	callee, err := events.RequestChannel(ctx, number)
	if err != nil {
		cc.forget(caller.id)
		cc.logger.Info("local call refused", "call_id", ch.CallID(), "number", number, "error", err)
		return nil, err
	}
	calleeLeg, ok := callee.callLeg().(*localLeg)
	if !ok {
		cc.forget(caller.id)
		return nil, ErrAllocationFailed
	}

	caller.mu.Lock()
	caller.peer = calleeLeg
	caller.mu.Unlock()
	calleeLeg.mu.Lock()
	calleeLeg.peer = caller
	calleeLeg.mu.Unlock()

	if callee.State() == StateConnected {
		// The callee auto answered before the legs were linked.
		caller.mu.Lock()
		caller.answered = true
		caller.mu.Unlock()
	}

	cc.logger.Info("local call placed",
		"call_id", ch.CallID(),
		"number", number,
		"peer_call_id", callee.CallID(),
	)
	return caller, nil
}

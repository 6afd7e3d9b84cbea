package sccp

import (
	"sync"
	"time"

	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
)

// CallState is the state of one call leg.
type CallState int

const (
	StateDown CallState = iota
	StateOffHook
	StateDialing
	StateRingOut
	StateRinging
	StateConnected
	StateHold
	StateEnded
)

var callStateNames = [...]string{"down", "offhook", "dialing", "ringout", "ringing", "connected", "hold", "ended"}

func (s CallState) String() string {
	if int(s) < len(callStateNames) {
		return callStateNames[s]
	}
	return "unknown"
}

// Direction tells who started the call.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// AutoAnswer selects how a ringing device picks up by itself.
type AutoAnswer int

const (
	AutoAnswerNone AutoAnswer = iota
	AutoAnswerOneWay
	AutoAnswerTwoWay
)

func (a AutoAnswer) String() string {
	switch a {
	case AutoAnswerOneWay:
		return "1w"
	case AutoAnswerTwoWay:
		return "2w"
	default:
		return "none"
	}
}

// Cause is a call release cause handed to call control.
type Cause int

const (
	CauseNone Cause = iota
	CauseNormal
	CauseBusy
	CauseUnavailable
	CauseCongestion
)

func (c Cause) String() string {
	switch c {
	case CauseNormal:
		return "normal"
	case CauseBusy:
		return "busy"
	case CauseUnavailable:
		return "unavailable"
	case CauseCongestion:
		return "congestion"
	default:
		return "none"
	}
}

// Ringer selects the ring style presented on the phone.
type Ringer int

const (
	RingerOutside Ringer = iota
	RingerInside
	RingerFeature
	RingerSilent
	RingerUrgent
)

func (r Ringer) String() string {
	switch r {
	case RingerInside:
		return "inside"
	case RingerFeature:
		return "feature"
	case RingerSilent:
		return "silent"
	case RingerUrgent:
		return "urgent"
	default:
		return "outside"
	}
}

// Channel is one call leg on a line.
type Channel struct {
	callID    uint32
	line      *Line
	direction Direction
	createdAt time.Time

	mu              sync.Mutex
	deviceID        string
	subscription    SubscriptionID
	state           CallState
	autoAnswer      AutoAnswer
	autoAnswerCause Cause
	ringer          Ringer
	codec           uint32
	parentID        uint32
	digits          string
	forwardTo       string
	leg             CallLeg
	digitTimer      *monitor.Timer
}

func (c *Channel) CallID() uint32       { return c.callID }
func (c *Channel) LineName() string     { return c.line.name }
func (c *Channel) Direction() Direction { return c.direction }

func (c *Channel) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s CallState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// DeviceID returns the device the channel is bound to, empty while a shared
// line is still ringing.
func (c *Channel) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Channel) Subscription() SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}

// AutoAnswer returns the auto answer mode and the release cause to use when
// the target device cannot auto answer.
func (c *Channel) AutoAnswer() (AutoAnswer, Cause) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoAnswer, c.autoAnswerCause
}

func (c *Channel) Ringer() Ringer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ringer
}

// ForwardTo returns the forwarding target configured on the line when the
// channel was requested. Call control decides whether to use it.
func (c *Channel) ForwardTo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forwardTo
}

// Digits returns the number collected or dialed on an outbound channel.
func (c *Channel) Digits() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.digits
}

func (c *Channel) callLeg() CallLeg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leg
}

// ChannelSnapshot is a point-in-time copy of a channel.
type ChannelSnapshot struct {
	CallID          uint32         `json:"call_id"`
	Line            string         `json:"line"`
	Device          string         `json:"device,omitempty"`
	Subscription    SubscriptionID `json:"subscription"`
	State           string         `json:"state"`
	Direction       string         `json:"direction"`
	AutoAnswer      string         `json:"auto_answer"`
	AutoAnswerCause string         `json:"auto_answer_cause"`
	Ringer          string         `json:"ringer"`
	Codec           string         `json:"codec,omitempty"`
	Digits          string         `json:"digits,omitempty"`
	ForwardTo       string         `json:"forward_to,omitempty"`
	ParentID        uint32         `json:"parent_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (c *Channel) Snapshot() ChannelSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := ChannelSnapshot{
		CallID:          c.callID,
		Line:            c.line.name,
		Device:          c.deviceID,
		Subscription:    c.subscription,
		State:           c.state.String(),
		Direction:       c.direction.String(),
		AutoAnswer:      c.autoAnswer.String(),
		AutoAnswerCause: c.autoAnswerCause.String(),
		Ringer:          c.ringer.String(),
		Digits:          c.digits,
		ForwardTo:       c.forwardTo,
		ParentID:        c.parentID,
		CreatedAt:       c.createdAt,
	}
	if c.codec != 0 {
		snap.Codec = wire.CodecName(c.codec)
	}
	return snap
}

package sccp

import (
	"sync"
)

// SubscriptionID addresses one device among those sharing a line.
type SubscriptionID struct {
	Number string `json:"number" yaml:"number"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

// IsZero reports whether no subscription number is set.
func (s SubscriptionID) IsZero() bool { return s.Number == "" }

// LineDevice is the presentation of a line on one device.
type LineDevice struct {
	DeviceID string
	// Instance is the line button number on the device, starting at 1.
	Instance     uint32
	Subscription SubscriptionID
	ForwardAll   string
}

// Line is a dialable extension, possibly shared by several devices.
type Line struct {
	name string

	mu             sync.Mutex
	label          string
	callerIDName   string
	callerIDNumber string
	incomingLimit  int
	forwardAll     string
	forwardBusy    string
	defaultSub     SubscriptionID
	devices        []LineDevice
	channels       []*Channel
	channelCount   int
}

func newLine(cfg LineConfig) *Line {
	l := &Line{name: cfg.Name}
	l.configure(cfg)
	return l
}

// configure must be called with l.mu held or before l is published.
func (l *Line) configure(cfg LineConfig) {
	l.label = cfg.Label
	l.callerIDName = cfg.CallerIDName
	l.callerIDNumber = cfg.CallerIDNumber
	l.incomingLimit = cfg.IncomingLimit
	l.forwardAll = cfg.ForwardAll
	l.forwardBusy = cfg.ForwardBusy
	l.defaultSub = SubscriptionID{Number: cfg.SubscriptionNumber, Name: cfg.SubscriptionName}
}

func (l *Line) Name() string { return l.name }

// ChannelCount returns the number of live channels on the line.
func (l *Line) ChannelCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channelCount
}

// DefaultSubscription returns the line's own subscription id.
func (l *Line) DefaultSubscription() SubscriptionID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.defaultSub
}

// Devices returns a copy of the line's device associations.
func (l *Line) Devices() []LineDevice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LineDevice, len(l.devices))
	copy(out, l.devices)
	return out
}

// association returns the line's presentation on deviceID.
func (l *Line) association(deviceID string) (LineDevice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ld := range l.devices {
		if ld.DeviceID == deviceID {
			return ld, true
		}
	}
	return LineDevice{}, false
}

// addChannel binds ch to the line. Called with no locks held.
func (l *Line) addChannel(ch *Channel) {
	l.mu.Lock()
	l.channels = append(l.channels, ch)
	l.channelCount++
	l.mu.Unlock()
}

// removeChannel unbinds ch. It reports false when ch was not bound.
func (l *Line) removeChannel(ch *Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.channels {
		if c == ch {
			l.channels = append(l.channels[:i], l.channels[i+1:]...)
			l.channelCount--
			return true
		}
	}
	return false
}

// channelList returns the live channels in creation order.
func (l *Line) channelList() []*Channel {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Channel, len(l.channels))
	copy(out, l.channels)
	return out
}

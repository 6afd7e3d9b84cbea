package sccp

import (
	"net/netip"
	"sort"
	"sync"
	"time"
)

// Store holds the session, device and line registries. Each registry has
// its own lock, held only while the map is read or changed. When an object
// lock is needed as well it is taken after the registry lock, never before.
type Store struct {
	sessionsMu sync.RWMutex
	sessions   map[SessionID]*Session

	devicesMu sync.RWMutex
	devices   map[string]*Device

	linesMu sync.RWMutex
	lines   map[string]*Line
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[SessionID]*Session),
		devices:  make(map[string]*Device),
		lines:    make(map[string]*Line),
	}
}

// Sessions.

func (st *Store) AddSession(s *Session) {
	st.sessionsMu.Lock()
	st.sessions[s.id] = s
	st.sessionsMu.Unlock()
}

func (st *Store) RemoveSession(id SessionID) {
	st.sessionsMu.Lock()
	delete(st.sessions, id)
	st.sessionsMu.Unlock()
}

func (st *Store) Session(id SessionID) *Session {
	if id == "" {
		return nil
	}
	st.sessionsMu.RLock()
	defer st.sessionsMu.RUnlock()
	return st.sessions[id]
}

func (st *Store) Sessions() []*Session {
	st.sessionsMu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.sessionsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

func (st *Store) SessionCount() int {
	st.sessionsMu.RLock()
	defer st.sessionsMu.RUnlock()
	return len(st.sessions)
}

// Devices.

func (st *Store) Device(id string) *Device {
	st.devicesMu.RLock()
	defer st.devicesMu.RUnlock()
	return st.devices[id]
}

func (st *Store) Devices() []*Device {
	st.devicesMu.RLock()
	out := make([]*Device, 0, len(st.devices))
	for _, d := range st.devices {
		out = append(out, d)
	}
	st.devicesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// lookupOrCreateDevice returns the device with id, creating an unprovisioned
// one when create is set.
func (st *Store) lookupOrCreateDevice(id string, create bool) (*Device, bool) {
	st.devicesMu.Lock()
	defer st.devicesMu.Unlock()
	if d, ok := st.devices[id]; ok {
		return d, true
	}
	if !create {
		return nil, false
	}
	d := &Device{id: id}
	st.devices[id] = d
	return d, true
}

// deviceOnline reports whether the device is bound to a live session.
func (st *Store) deviceOnline(id string) (*Device, *Session) {
	d := st.Device(id)
	if d == nil {
		return nil, nil
	}
	s := st.Session(d.SessionID())
	if s == nil || s.Closed() {
		return d, nil
	}
	return d, s
}

// bind links s and d both ways and returns the session d was bound to
// before, if any. Both object locks are held so the two references never
// disagree outside this call.
func (st *Store) bind(s *Session, d *Device, ip netip.Addr, now time.Time) SessionID {
	d.mu.Lock()
	s.mu.Lock()
	prev := d.sessionID
	d.sessionID = s.id
	d.registeredIP = ip
	d.registeredAt = now
	if d.state == Unregistered {
		d.state = Registering
	}
	s.deviceID = d.id
	if s.state == SessionUnbound || s.state == SessionClosed {
		s.state = SessionRegistering
	}
	s.mu.Unlock()
	d.mu.Unlock()
	if prev == s.id {
		return ""
	}
	return prev
}

// unbind clears both references when d is still bound to s. It reports
// whether the device went offline.
func (st *Store) unbind(d *Device, s *Session) bool {
	d.mu.Lock()
	s.mu.Lock()
	defer d.mu.Unlock()
	defer s.mu.Unlock()

	if s.deviceID == d.id {
		s.deviceID = ""
	}
	if d.sessionID != s.id {
		return false
	}
	d.sessionID = ""
	d.state = Unregistered
	d.activeCallID = 0
	return true
}

// Lines.

func (st *Store) Line(name string) *Line {
	st.linesMu.RLock()
	defer st.linesMu.RUnlock()
	return st.lines[name]
}

func (st *Store) Lines() []*Line {
	st.linesMu.RLock()
	out := make([]*Line, 0, len(st.lines))
	for _, l := range st.lines {
		out = append(out, l)
	}
	st.linesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ringTarget is a device that presents a line and is online.
type ringTarget struct {
	device  *Device
	session *Session
	assoc   LineDevice
}

// onlineTargets returns the line's associations whose device has a live
// session, in association order.
func (st *Store) onlineTargets(l *Line) []ringTarget {
	var out []ringTarget
	for _, ld := range l.Devices() {
		d, s := st.deviceOnline(ld.DeviceID)
		if s == nil {
			continue
		}
		out = append(out, ringTarget{device: d, session: s, assoc: ld})
	}
	return out
}

// ApplyResult summarises a configuration change.
type ApplyResult struct {
	LinesAdded     []string `json:"lines_added,omitempty"`
	LinesRemoved   []string `json:"lines_removed,omitempty"`
	LinesKept      []string `json:"lines_kept,omitempty"`
	DevicesAdded   []string `json:"devices_added,omitempty"`
	DevicesRemoved []string `json:"devices_removed,omitempty"`
}

// applyConfig makes the registries match p. Lines that still carry
// channels are kept even when p drops them. Removed devices are returned so
// the caller can close their sessions.
func (st *Store) applyConfig(p Provisioning) (ApplyResult, []*Device) {
	var res ApplyResult

	assocs := make(map[string][]LineDevice)
	for _, dc := range p.Devices {
		var inst uint32
		for _, b := range dc.Buttons {
			if b.Type != ButtonLine {
				continue
			}
			inst++
			assocs[b.Line] = append(assocs[b.Line], LineDevice{
				DeviceID:     dc.ID,
				Instance:     inst,
				Subscription: SubscriptionID{Number: b.SubscriptionNumber, Name: b.SubscriptionName},
				ForwardAll:   b.ForwardAll,
			})
		}
	}

	st.linesMu.Lock()
	wanted := make(map[string]bool, len(p.Lines))
	for _, lc := range p.Lines {
		wanted[lc.Name] = true
		l, ok := st.lines[lc.Name]
		if !ok {
			l = newLine(lc)
			st.lines[lc.Name] = l
			res.LinesAdded = append(res.LinesAdded, lc.Name)
		}
		l.mu.Lock()
		l.configure(lc)
		l.devices = assocs[lc.Name]
		l.mu.Unlock()
	}
	for name, l := range st.lines {
		if wanted[name] {
			continue
		}
		l.mu.Lock()
		busy := l.channelCount > 0
		if busy {
			l.devices = nil
		}
		l.mu.Unlock()
		if busy {
			res.LinesKept = append(res.LinesKept, name)
			continue
		}
		delete(st.lines, name)
		res.LinesRemoved = append(res.LinesRemoved, name)
	}
	st.linesMu.Unlock()

	var removed []*Device
	st.devicesMu.Lock()
	present := make(map[string]bool, len(p.Devices))
	for _, dc := range p.Devices {
		present[dc.ID] = true
		d, ok := st.devices[dc.ID]
		if !ok {
			st.devices[dc.ID] = newDevice(dc)
			res.DevicesAdded = append(res.DevicesAdded, dc.ID)
			continue
		}
		d.mu.Lock()
		d.configure(dc)
		d.mu.Unlock()
	}
	for id, d := range st.devices {
		if present[id] {
			continue
		}
		d.mu.Lock()
		provisioned := d.provisioned
		d.mu.Unlock()
		if !provisioned {
			continue
		}
		delete(st.devices, id)
		removed = append(removed, d)
		res.DevicesRemoved = append(res.DevicesRemoved, id)
	}
	st.devicesMu.Unlock()

	sort.Strings(res.LinesAdded)
	sort.Strings(res.LinesRemoved)
	sort.Strings(res.LinesKept)
	sort.Strings(res.DevicesAdded)
	sort.Strings(res.DevicesRemoved)
	return res, removed
}

// clear drops every registry entry.
func (st *Store) clear() {
	st.devicesMu.Lock()
	st.devices = make(map[string]*Device)
	st.devicesMu.Unlock()

	st.linesMu.Lock()
	st.lines = make(map[string]*Line)
	st.linesMu.Unlock()

	st.sessionsMu.Lock()
	st.sessions = make(map[SessionID]*Session)
	st.sessionsMu.Unlock()
}

// Package monitor runs time-based housekeeping on a single goroutine.
//
// Timers can be scheduled from any goroutine. The loop sleeps until the
// earliest timer is due, an explicit Wake, or the maximum wait elapses,
// then runs every due timer in expiry order.
package monitor

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxWait caps a single sleep of the loop.
const DefaultMaxWait = time.Second

// Timer is a scheduled callback. It fires at most once.
type Timer struct {
	name  string
	when  time.Time
	fn    func()
	seq   uint64
	index int // position in the heap, -1 when not pending
	m     *Monitor
}

// Name returns the label the timer was scheduled with.
func (t *Timer) Name() string { return t.name }

// When returns the time the timer is due.
func (t *Timer) When() time.Time { return t.when }

// Cancel removes a pending timer. It returns false when the timer already
// fired, is firing, or was cancelled before.
func (t *Timer) Cancel() bool {
	if t == nil || t.m == nil {
		return false
	}
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&m.timers, t.index)
	return true
}

// Monitor owns the timer queue and the loop that drains it.
type Monitor struct {
	clock   Clock
	maxWait time.Duration
	logger  *slog.Logger

	mu     sync.Mutex // guards timers, seq, closed
	timers timerHeap
	seq    uint64
	closed bool

	// runMu is held only while due timers run, never while sleeping.
	runMu sync.Mutex
	wake  chan struct{}
}

// New creates a monitor. A zero maxWait selects DefaultMaxWait.
func New(clock Clock, maxWait time.Duration, logger *slog.Logger) *Monitor {
	if clock == nil {
		clock = SystemClock{}
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Monitor{
		clock:   clock,
		maxWait: maxWait,
		logger:  logger.With("subsystem", "monitor"),
		wake:    make(chan struct{}, 1),
	}
}

// Clock returns the monitor's time source.
func (m *Monitor) Clock() Clock { return m.clock }

// Schedule arranges for fn to run on the monitor goroutine after the given
// delay. After the loop has shut down the returned timer is never pending.
func (m *Monitor) Schedule(after time.Duration, name string, fn func()) *Timer {
	t := &Timer{
		name:  name,
		when:  m.clock.Now().Add(after),
		fn:    fn,
		index: -1,
		m:     m,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return t
	}
	m.seq++
	t.seq = m.seq
	heap.Push(&m.timers, t)
	first := m.timers[0] == t
	m.mu.Unlock()

	if first {
		m.Wake()
	}
	return t
}

// Wake interrupts the current sleep so the queue is re-evaluated.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of timers waiting to fire.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Run drives the loop until ctx is cancelled. Timers still pending at that
// point are dropped without being invoked.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor loop started", "max_wait", m.maxWait)
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
		case <-m.clock.After(m.nextWait()):
		}
		if ctx.Err() != nil {
			return nil
		}
		m.RunDue()
	}
}

// RunDue runs every timer due at the current clock time and returns how
// many ran. Timers scheduled by a running callback wait for the next pass.
func (m *Monitor) RunDue() int {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	now := m.clock.Now()
	m.mu.Lock()
	limit := m.seq
	m.mu.Unlock()

	ran := 0
	for {
		m.mu.Lock()
		if len(m.timers) == 0 {
			m.mu.Unlock()
			break
		}
		next := m.timers[0]
		if next.when.After(now) || next.seq > limit {
			m.mu.Unlock()
			break
		}
		heap.Pop(&m.timers)
		m.mu.Unlock()

		m.invoke(next)
		ran++
	}
	return ran
}

func (m *Monitor) invoke(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("timer callback panicked", "timer", t.name, "panic", r)
		}
	}()
	t.fn()
}

// nextWait computes the sleep until the earliest timer, capped at maxWait.
func (m *Monitor) nextWait() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.timers) == 0 {
		return m.maxWait
	}
	wait := m.timers[0].when.Sub(m.clock.Now())
	if wait < 0 {
		return 0
	}
	if wait > m.maxWait {
		return m.maxWait
	}
	return wait
}

func (m *Monitor) shutdown() {
	m.mu.Lock()
	dropped := len(m.timers)
	for _, t := range m.timers {
		t.index = -1
	}
	m.timers = nil
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("monitor loop stopped", "dropped_timers", dropped)
}

// timerHeap orders timers by due time, then by scheduling order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

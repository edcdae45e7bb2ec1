package scheduler

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// Ticker provides the "next externally scheduled tick". Schedule must not
// invoke fn synchronously; cancel must be safe to call after fn has run.
type Ticker interface {
	Schedule(fn func()) (cancel func())
}

// FrameTicker fires once per Interval on a timer goroutine.
type FrameTicker struct {
	Interval time.Duration
}

func (t FrameTicker) Schedule(fn func()) func() {
	d := t.Interval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// ManualTicker runs scheduled callbacks only when Tick is called. Hosts
// that own their frame loop drive the scheduler with it.
type ManualTicker struct {
	mu     sync.Mutex
	queue  []*manualTask
	nextID int
}

type manualTask struct {
	id int
	fn func()
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{}
}

func (m *ManualTicker) Schedule(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	task := &manualTask{id: m.nextID, fn: fn}
	m.queue = append(m.queue, task)
	return func() { m.cancel(task.id) }
}

// Tick runs every callback queued before the call and returns how many ran.
// Callbacks scheduled while ticking wait for the next Tick.
func (m *ManualTicker) Tick() int {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, task := range batch {
		task.fn()
	}
	return len(batch)
}

// Pending reports how many callbacks are waiting for the next Tick.
func (m *ManualTicker) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *ManualTicker) cancel(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, task := range m.queue {
		if task.id == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// Package scheduler decouples token arrival from renderer updates. Tokens
// are pushed as they arrive; the scheduler decides when they are applied to
// the accumulated text and announced to the renderer.
package scheduler

import (
	"strings"
	"sync"
)

// State is the per-session flush state. A batched Push buffers the token
// and schedules the tick in one step, so a non-empty buffer is always
// StateFlushScheduled.
type State string

const (
	StateIdle           State = "idle"
	StateFlushScheduled State = "flush-scheduled"
)

// ApplyEvent announces that Delta was appended to the accumulated text.
type ApplyEvent struct {
	Seq    int
	Delta  string
	Text   string
	Tokens int
	// Urgent is false for applies the host may preempt.
	Urgent bool
}

type Stats struct {
	Tokens  int `json:"tokens"`
	Applies int `json:"applies"`
	// Dropped counts tokens discarded unapplied by Stop or Reset.
	Dropped int `json:"dropped"`
}

type Options struct {
	Policy Policy
	// Ticker defaults to a FrameTicker at DefaultFrameInterval.
	Ticker Ticker
	// Apply receives events in Seq order. It must not call Push, Flush or
	// Finish.
	Apply func(ApplyEvent)
	// Settled is called when the lagging view catches up (lag-tolerant
	// policies only). It is serialized with Apply and has the same
	// restrictions.
	Settled func(deferredText string)
}

// Scheduler owns the accumulated text of one session. Push may be called
// from the read loop while ticks fire on other goroutines; all state changes
// are serialized, so there is still a single logical writer.
type Scheduler struct {
	policy  Policy
	ticker  Ticker
	apply   func(ApplyEvent)
	settled func(string)

	// deliverMu keeps apply calls in Seq order. Acquired before mu.
	deliverMu sync.Mutex
	mu        sync.Mutex

	text          strings.Builder
	pending       strings.Builder
	pendingTokens int
	state         State
	cancelFlush   func()
	seq           int
	stopped       bool
	// generation invalidates ticks scheduled before a Stop or Reset.
	generation int

	deferredLen  int
	cancelSettle func()
	// settleID identifies the one settle tick allowed to run.
	settleID int

	stats Stats
}

func New(opts Options) *Scheduler {
	if opts.Policy == "" {
		opts.Policy = Immediate
	}
	if opts.Ticker == nil {
		opts.Ticker = FrameTicker{Interval: DefaultFrameInterval}
	}
	return &Scheduler{
		policy:  opts.Policy,
		ticker:  opts.Ticker,
		apply:   opts.Apply,
		settled: opts.Settled,
		state:   StateIdle,
	}
}

func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Push records one token. Under Immediate it is applied before Push
// returns; otherwise it joins the pending buffer and at most one flush is
// scheduled for it.
func (s *Scheduler) Push(token string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stats.Tokens++

	if !s.policy.batched() {
		s.pending.WriteString(token)
		s.pendingTokens++
		ev, ok := s.flushLocked(true)
		s.mu.Unlock()
		if ok {
			s.deliver(ev)
		}
		return
	}

	if token == "" {
		s.mu.Unlock()
		return
	}
	s.pending.WriteString(token)
	s.pendingTokens++
	if s.state == StateFlushScheduled {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.cancelFlush = s.ticker.Schedule(func() { s.onFlushTick(gen) })
	s.state = StateFlushScheduled
	s.mu.Unlock()
}

// Flush applies the pending buffer now. Flushing an empty buffer is a
// no-op: no event fires and the state is unchanged.
func (s *Scheduler) Flush() bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.stopped || s.pending.Len() == 0 {
		s.mu.Unlock()
		return false
	}
	s.cancelScheduledFlushLocked()
	ev, ok := s.flushLocked(false)
	s.mu.Unlock()
	if ok {
		s.deliver(ev)
	}
	return ok
}

// Finish performs the trailing flush at end of stream so no received token
// is left unapplied.
func (s *Scheduler) Finish() bool {
	return s.Flush()
}

// Settle brings the lagging view up to the applied text now, calling
// Settled if it moved. It reports false when there was nothing to settle.
func (s *Scheduler) Settle() bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if !s.policy.lagging() || s.deferredLen == s.text.Len() {
		s.mu.Unlock()
		return false
	}
	s.cancelSettleLocked()
	deferred := s.settleLocked()
	s.mu.Unlock()

	if s.settled != nil {
		s.settled(deferred)
	}
	return true
}

// Stop ends the session: a scheduled flush is cancelled and the pending
// buffer is discarded without being applied. Tokens pushed afterwards are
// ignored until Reset. No Apply or Settled call starts after Stop returns.
// The lagging view is caught up to the applied text without a Settled call.
func (s *Scheduler) Stop() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
	s.deferredLen = s.text.Len()
	s.stopped = true
}

// Reset returns the scheduler to idle with empty buffers and text.
func (s *Scheduler) Reset() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
	s.text.Reset()
	s.deferredLen = 0
	s.seq = 0
	s.stopped = false
	s.stats = Stats{}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether an interruptible apply is outstanding. It is
// always false for policies that do not mark applies non-urgent.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.interruptible() && s.state == StateFlushScheduled
}

// Text is the immediate view of the accumulated text.
func (s *Scheduler) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// DeferredText is the lagging view. It is a prefix of Text and equals it
// for policies without a lagging view.
func (s *Scheduler) DeferredText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.policy.lagging() {
		return s.text.String()
	}
	return s.text.String()[:s.deferredLen]
}

// Stale reports whether the lagging view differs from the immediate one.
func (s *Scheduler) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.lagging() && s.deferredLen != s.text.Len()
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) onFlushTick(gen int) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || s.state != StateFlushScheduled {
		s.mu.Unlock()
		return
	}
	s.cancelFlush = nil
	ev, ok := s.flushLocked(false)
	s.mu.Unlock()
	if ok {
		s.deliver(ev)
	}
}

func (s *Scheduler) onSettleTick(gen, id int) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || id != s.settleID || s.cancelSettle == nil {
		s.mu.Unlock()
		return
	}
	s.cancelSettle = nil
	deferred := s.settleLocked()
	s.mu.Unlock()

	if s.settled != nil {
		s.settled(deferred)
	}
}

func (s *Scheduler) settleLocked() string {
	s.deferredLen = s.text.Len()
	return s.text.String()
}

func (s *Scheduler) cancelSettleLocked() {
	if s.cancelSettle != nil {
		s.cancelSettle()
		s.cancelSettle = nil
	}
}

// flushLocked moves the pending buffer into the text and returns the event
// to deliver. force applies even an empty buffer.
func (s *Scheduler) flushLocked(force bool) (ApplyEvent, bool) {
	s.state = StateIdle
	if s.pending.Len() == 0 && !force {
		return ApplyEvent{}, false
	}
	delta := s.pending.String()
	tokens := s.pendingTokens
	s.pending.Reset()
	s.pendingTokens = 0

	s.text.WriteString(delta)
	s.seq++
	s.stats.Applies++

	if s.policy.lagging() && s.cancelSettle == nil {
		s.settleID++
		gen, id := s.generation, s.settleID
		s.cancelSettle = s.ticker.Schedule(func() { s.onSettleTick(gen, id) })
	}

	return ApplyEvent{
		Seq:    s.seq,
		Delta:  delta,
		Text:   s.text.String(),
		Tokens: tokens,
		Urgent: !s.policy.interruptible(),
	}, true
}

func (s *Scheduler) cancelScheduledFlushLocked() {
	if s.cancelFlush != nil {
		s.cancelFlush()
		s.cancelFlush = nil
	}
}

func (s *Scheduler) discardLocked() {
	s.generation++
	s.cancelScheduledFlushLocked()
	s.cancelSettleLocked()
	s.stats.Dropped += s.pendingTokens
	s.pending.Reset()
	s.pendingTokens = 0
	s.state = StateIdle
}

func (s *Scheduler) deliver(ev ApplyEvent) {
	if s.apply != nil {
		s.apply(ev)
	}
}

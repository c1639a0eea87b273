// Package ring implements the executor ring and window protocol: the
// lock-protected cycle of stages that share one packet buffer, and the
// condition-variable protocol (initBuffer / waitWork / passPackets) that
// advances ownership windows and propagates metadata and cancellation.
//
// This package knows nothing about plugins or packet contents. It tracks
// only window bookkeeping (first, count) and the handful of booleans and
// metrics the protocol threads through the ring. Callers own translating
// a returned window into buffer slot access.
package ring

import (
	"sync"
	"time"

	"github.com/willdelstrother/tsduck/internal/report"
)

// Confidence is a coarse quality tag on a propagated bitrate measurement.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// Kind mirrors plugin.Kind without importing the plugin package, which
// would create a cycle (plugin depends on nothing in ring, but restart and
// worker sit between the two and this keeps ring a true leaf apart from
// report).
type Kind int

const (
	Input Kind = iota
	Processor
	Output
)

// PendingRestart is an opaque slot a Stage carries for the restart package
// to attach its own record type to, without ring importing restart.
type PendingRestart interface{}

// EventHandler receives synchronous notification of plugin-defined events.
type EventHandler func(ctx EventContext)

// EventContext is the data passed to a registered EventHandler.
type EventContext struct {
	Code        int
	StageName   string
	StageIndex  int
	StageCount  int
	Bitrate     int64
	LocalCount  uint64
	GlobalCount uint64

	// Outcome carries event-specific detail for codes that have it (e.g. a
	// restart's "ok"/"fallback"/"failed"). Empty for codes that don't.
	Outcome string
}

// Stage is one node of the executor ring. All fields below the mutex are
// guarded by the owning Ring's shared mutex; nothing here should be read or
// written outside of a Ring method.
type Stage struct {
	index int
	kind  Kind
	name  string

	ring *Ring
	prev *Stage
	next *Stage

	cond *sync.Cond

	first      int
	count      int
	inputEnd   bool
	aborting   bool
	bitrate    int64
	confidence Confidence

	packetTimeout time.Duration

	pendingRestart PendingRestart

	localCount uint64
}

// Index returns the stage's ordinal position in the ring.
func (s *Stage) Index() int { return s.index }

// Kind returns the stage's kind.
func (s *Stage) Kind() Kind { return s.kind }

// Name returns the stage's display name.
func (s *Stage) Name() string { return s.name }

// SetPacketTimeout sets the duration waitWork may block before invoking the
// caller's timeout handling. Zero disables the timeout.
func (s *Stage) SetPacketTimeout(d time.Duration) {
	s.ring.mu.Lock()
	defer s.ring.mu.Unlock()
	s.packetTimeout = d
}

// PendingRestart returns the stage's opaque pending-restart slot. Callers
// must hold the ring's mutex (via WithLock) to read or write it safely.
func (s *Stage) PendingRestart() PendingRestart {
	return s.pendingRestart
}

// SetPendingRestart installs or clears the stage's pending-restart slot.
// Callers must hold the ring's mutex.
func (s *Stage) SetPendingRestart(p PendingRestart) {
	s.pendingRestart = p
}

// Ring is the closed cycle of stages sharing one coordination mutex.
type Ring struct {
	mu       sync.Mutex
	stages   []*Stage
	capacity int
	sink     report.Sink

	handlersMu sync.Mutex
	handlers   []EventHandler

	globalCount uint64
}

// New constructs a Ring of len(names) stages linked previous↔next in a
// cycle, sharing a buffer of the given capacity. names[i] is stage i's
// display name; kinds[i] its kind. The first entry must be Input and the
// last Output; there is no enforcement here beyond that ring math requires
// at least 3 stages (spec: N ≥ 3).
func New(capacity int, kinds []Kind, names []string, sink report.Sink) *Ring {
	if len(kinds) != len(names) {
		panic("ring: kinds and names length mismatch")
	}
	if len(kinds) < 3 {
		panic("ring: a pipeline ring requires at least 3 stages")
	}
	if sink == nil {
		sink = report.Discard{}
	}
	r := &Ring{capacity: capacity, sink: sink}
	r.stages = make([]*Stage, len(kinds))
	for i, k := range kinds {
		s := &Stage{index: i, kind: k, name: names[i], ring: r}
		s.cond = sync.NewCond(&r.mu)
		r.stages[i] = s
	}
	n := len(r.stages)
	for i, s := range r.stages {
		s.prev = r.stages[(i-1+n)%n]
		s.next = r.stages[(i+1)%n]
	}
	return r
}

// Stages returns the ring's stages in index order. The slice must not be
// mutated by the caller.
func (r *Ring) Stages() []*Stage { return r.stages }

// Capacity returns B, the shared buffer's slot count.
func (r *Ring) Capacity() int { return r.capacity }

// WithLock runs fn while holding the ring's shared mutex. Used by the
// restart package to perform its own multi-field reads/writes under the
// same lock this package uses internally.
func (r *Ring) WithLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// Notify wakes the given stage's condition variable. Callers must hold the
// ring's mutex (typically from inside a WithLock callback).
func (r *Ring) Notify(s *Stage) {
	s.cond.Signal()
}

// RegisterEventHandler adds a handler invoked by SignalPluginEvent.
func (r *Ring) RegisterEventHandler(h EventHandler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers = append(r.handlers, h)
}

// SignalPluginEvent invokes every registered handler synchronously with a
// context built from the stage's current state. Must be called without
// holding the ring's mutex: it reads a consistent snapshot under the lock
// first, then releases it before calling out to handlers, since handlers
// must not observe partial state but also must not block the ring.
func (r *Ring) SignalPluginEvent(s *Stage, code int, bitrate int64) {
	r.SignalPluginEventWithOutcome(s, code, bitrate, "")
}

// SignalPluginEventWithOutcome is SignalPluginEvent plus an event-specific
// Outcome string (e.g. a restart's "ok"/"fallback"/"failed"), for codes
// whose handlers need more than the stage's throughput snapshot.
func (r *Ring) SignalPluginEventWithOutcome(s *Stage, code int, bitrate int64, outcome string) {
	r.mu.Lock()
	ctx := EventContext{
		Code:        code,
		StageName:   s.name,
		StageIndex:  s.index,
		StageCount:  len(r.stages),
		Bitrate:     bitrate,
		LocalCount:  s.localCount,
		GlobalCount: r.globalCount,
		Outcome:     outcome,
	}
	r.mu.Unlock()

	r.handlersMu.Lock()
	handlers := append([]EventHandler(nil), r.handlers...)
	r.handlersMu.Unlock()

	for _, h := range handlers {
		h(ctx)
	}
}

// InitBuffer installs stage s's initial window. Called once per stage,
// synchronously, before any worker starts (spec §4.2). first is the slot
// index at which the stage's window begins; input/inputEnd and aborted let
// callers seed a stage as already terminal for tests.
func (r *Ring) InitBuffer(s *Stage, first, count int, inputEnd, aborted bool, bitrate int64, conf Confidence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.first = r.wrap(first)
	s.count = count
	s.inputEnd = inputEnd
	s.aborting = aborted
	s.bitrate = bitrate
	s.confidence = conf
}

func (r *Ring) wrap(i int) int {
	n := r.capacity
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// WaitResult is the outcome of a WaitWork call.
type WaitResult struct {
	First      int
	Count      int
	Bitrate    int64
	Confidence Confidence
	InputEnd   bool
	Aborted    bool
	TimedOut   bool
}

// WaitWork blocks stage s until it owns at least minPktCnt packets
// (contiguous or not), or input has ended, or the successor has begun aborting, or the
// stage's packet timeout elapses. See spec §4.2 for the exact predicate and
// wrap-boundary contiguity rule.
//
// timeoutHandler, if non-nil, is called (without the ring's mutex held)
// each time the wait times out; returning false stops the wait and reports
// TimedOut=true with Count=0.
func (r *Ring) WaitWork(s *Stage, minPktCnt int, timeoutHandler func() bool) WaitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if minPktCnt > r.capacity {
		r.sink.Warning("waitWork: min_pkt_cnt %d exceeds buffer capacity %d, clamping", minPktCnt, r.capacity)
		minPktCnt = r.capacity
	}

	for {
		abortedBySuccessor := s.kind != Output && s.next.aborting
		if s.count >= minPktCnt || s.inputEnd || abortedBySuccessor {
			return r.buildWaitResult(s, minPktCnt, abortedBySuccessor)
		}

		if s.packetTimeout <= 0 {
			s.cond.Wait()
			continue
		}

		woke := waitWithTimeout(s.cond, s.packetTimeout)
		if woke {
			continue
		}

		abortedBySuccessor = s.kind != Output && s.next.aborting
		if s.count >= minPktCnt || s.inputEnd || abortedBySuccessor {
			return r.buildWaitResult(s, minPktCnt, abortedBySuccessor)
		}

		if timeoutHandler == nil {
			return WaitResult{Aborted: abortedBySuccessor, TimedOut: true}
		}

		r.mu.Unlock()
		keepWaiting := timeoutHandler()
		r.mu.Lock()

		if !keepWaiting {
			abortedBySuccessor = s.kind != Output && s.next.aborting
			return WaitResult{Aborted: abortedBySuccessor, TimedOut: true}
		}
	}
}

func (r *Ring) buildWaitResult(s *Stage, minPktCnt int, aborted bool) WaitResult {
	count := s.count
	if count > 0 {
		tail := r.capacity - s.first
		if tail < count && tail >= minPktCnt {
			count = tail
		}
	}
	return WaitResult{
		First:      s.first,
		Count:      count,
		Bitrate:    s.bitrate,
		Confidence: s.confidence,
		InputEnd:   s.inputEnd,
		Aborted:    aborted,
	}
}

// PassPackets advances stage s's window by count packets, propagates
// metadata and end/abort flags to the next stage, and reports whether s
// should keep looping. See spec §4.2 steps 1-8. Panics if count exceeds
// s.count: this is the invariant-violation case spec §7 calls a fatal
// programming error, not a recoverable one.
func (r *Ring) PassPackets(s *Stage, count int, bitrate int64, conf Confidence, inputEnd, aborted bool) (cont bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if count > s.count {
		panic("ring: passPackets count exceeds stage window")
	}

	s.first = r.wrap(s.first + count)
	s.count -= count
	s.localCount += uint64(count)
	r.globalCount += uint64(count)

	next := s.next
	next.count += count
	next.bitrate = bitrate
	next.confidence = conf
	next.inputEnd = next.inputEnd || inputEnd

	if count > 0 || inputEnd {
		next.cond.Signal()
	}

	if s.kind != Output {
		aborted = aborted || next.aborting
	}

	if aborted {
		s.aborting = true
		s.prev.cond.Signal()
	}

	return !inputEnd && !aborted
}

// SetAbort marks stage s as aborting and wakes its predecessor, causing
// backward propagation of termination (spec §4.3, external setAbort()).
func (r *Ring) SetAbort(s *Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.aborting = true
	s.prev.cond.Signal()
}

// IsAborting reports whether the stage has begun aborting.
func (r *Ring) IsAborting(s *Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.aborting
}

// snapshot for tests/introspection: total count across every stage, which
// must always equal capacity (spec §8 invariant 1).
func (r *Ring) TotalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, s := range r.stages {
		total += s.count
	}
	return total
}

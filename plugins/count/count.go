// Package count implements a minimal reference Output plugin: it counts
// packets delivered to it, optionally sleeping once per Send call (to exercise
// backpressure) or aborting after a configured number of packets (to
// exercise backward abort propagation).
package count

import (
	"sync/atomic"
	"time"

	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/report"
)

// Plugin counts every packet handed to Send.
type Plugin struct {
	// SleepPerPacket, if non-zero, is slept once per Send call (not per
	// packet) to simulate a slow consumer for backpressure scenarios.
	SleepPerPacket time.Duration

	// AbortAfter, if non-zero, causes Send to return an error once the
	// running total reaches this count, simulating the
	// reference scenario "Output returns abort after receiving 50 packets".
	AbortAfter int64

	received int64
	dropped  int64
	sink     report.Sink
}

// New constructs a counting Output plugin.
func New() *Plugin {
	return &Plugin{sink: report.Discard{}}
}

func (p *Plugin) Kind() plugin.Kind { return plugin.Output }

func (p *Plugin) ResetContext(args []string) error                { return nil }
func (p *Plugin) Analyze(name string, argv []string, partial bool) error { return nil }
func (p *Plugin) GetOptions() error                                { return nil }
func (p *Plugin) Start() error                                     { return nil }
func (p *Plugin) Stop() error                                      { return nil }
func (p *Plugin) HandlePacketTimeout() bool                        { return true }
func (p *Plugin) IsRealTime() bool                                  { return false }
func (p *Plugin) RedirectReport(sink report.Sink) report.Sink {
	prev := p.sink
	p.sink = sink
	return prev
}

// Received returns the running total of packets delivered so far. Safe for
// concurrent use while the pipeline is running.
func (p *Plugin) Received() int64 {
	return atomic.LoadInt64(&p.received)
}

// Dropped returns the running total of delivered slots a processor upstream
// marked StatusDrop (meta.Valid == false). These are included in Received,
// since a drop never shrinks the window count, but were never real packets.
func (p *Plugin) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

// Send counts count packets and, if configured, sleeps or signals abort.
func (p *Plugin) Send(slots []buffer.Packet, meta []buffer.Metadata, count int) error {
	if p.SleepPerPacket > 0 {
		time.Sleep(p.SleepPerPacket)
	}
	for i := 0; i < count; i++ {
		if !meta[i].Valid {
			atomic.AddInt64(&p.dropped, 1)
		}
	}
	total := atomic.AddInt64(&p.received, int64(count))
	if p.AbortAfter > 0 && total >= p.AbortAfter {
		return errAbortThresholdReached
	}
	return nil
}

var errAbortThresholdReached = abortError{}

type abortError struct{}

func (abortError) Error() string { return "count: abort threshold reached" }

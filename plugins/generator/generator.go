// Package generator implements a minimal reference Input plugin: it
// produces a fixed count of synthetic packets, each tagged with a
// monotonically increasing sequence number in its payload, then signals
// end-of-input.
package generator

import (
	"encoding/binary"
	"fmt"

	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/report"
)

// Plugin is a reference Input plugin producing Count synthetic packets.
type Plugin struct {
	Count int

	produced int
	sink     report.Sink
}

// New constructs a Plugin that will produce count packets before signaling
// end-of-input.
func New(count int) *Plugin {
	return &Plugin{Count: count, sink: report.Discard{}}
}

func (p *Plugin) Kind() plugin.Kind { return plugin.Input }

func (p *Plugin) ResetContext(args []string) error {
	p.produced = 0
	return p.parseArgs(args)
}

func (p *Plugin) Analyze(name string, argv []string, partial bool) error {
	return p.parseArgs(argv)
}

func (p *Plugin) parseArgs(argv []string) error {
	for i := 0; i < len(argv); i++ {
		if argv[i] == "--count" && i+1 < len(argv) {
			var count int
			if _, err := fmt.Sscanf(argv[i+1], "%d", &count); err != nil {
				return fmt.Errorf("generator: invalid --count value %q: %w", argv[i+1], err)
			}
			p.Count = count
			i++
		}
	}
	return nil
}

func (p *Plugin) GetOptions() error                { return nil }
func (p *Plugin) Start() error                     { return nil }
func (p *Plugin) Stop() error                      { return nil }
func (p *Plugin) HandlePacketTimeout() bool        { return true }
func (p *Plugin) IsRealTime() bool                 { return false }
func (p *Plugin) RedirectReport(sink report.Sink) report.Sink {
	prev := p.sink
	p.sink = sink
	return prev
}

// Receive fills up to len(slots) packets with a sync byte and a sequence
// number, returning 0 once Count packets have been produced in total.
func (p *Plugin) Receive(slots []buffer.Packet, meta []buffer.Metadata) (int, error) {
	remaining := p.Count - p.produced
	if remaining <= 0 {
		return 0, nil
	}
	n := len(slots)
	if n > remaining {
		n = remaining
	}
	for i := 0; i < n; i++ {
		pkt := &slots[i]
		pkt[0] = 0x47
		binary.BigEndian.PutUint32(pkt[4:8], uint32(p.produced+i))
		meta[i] = buffer.Metadata{Valid: true}
	}
	p.produced += n
	return n, nil
}

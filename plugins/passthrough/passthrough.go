// Package passthrough implements a minimal reference Processor plugin: it
// forwards every packet unchanged, exercising the plugin contract's
// Processor path without any transformation logic of its own.
package passthrough

import (
	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/report"
)

// Plugin forwards every packet unchanged, unless DropEvery or
// StuffNullEvery configure it to return StatusDrop/StatusStuffNull
// periodically, exercising the rest of the Processor status surface.
type Plugin struct {
	// DropEvery, if non-zero, returns StatusDrop for every DropEvery-th
	// packet (1-indexed: DropEvery == 1 drops every packet).
	DropEvery int
	// StuffNullEvery, if non-zero, returns StatusStuffNull for every
	// StuffNullEvery-th packet. Checked after DropEvery, so configuring
	// both on overlapping packets always drops, never stuff-nulls.
	StuffNullEvery int

	count int64
	sink  report.Sink
}

// New constructs a passthrough Plugin.
func New() *Plugin {
	return &Plugin{sink: report.Discard{}}
}

func (p *Plugin) Kind() plugin.Kind { return plugin.Processor }

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

// ProcessPacket returns StatusOK unless DropEvery or StuffNullEvery selects
// this packet.
func (p *Plugin) ProcessPacket(pkt *buffer.Packet, meta *buffer.Metadata) plugin.Status {
	p.count++
	if p.DropEvery > 0 && p.count%int64(p.DropEvery) == 0 {
		return plugin.StatusDrop
	}
	if p.StuffNullEvery > 0 && p.count%int64(p.StuffNullEvery) == 0 {
		return plugin.StatusStuffNull
	}
	return plugin.StatusOK
}

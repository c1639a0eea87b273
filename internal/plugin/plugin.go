// Package plugin defines the stage-kind contract a pipeline plugin
// implements: identity, lifecycle, and the per-kind data operation.
//
// The original source dispatches through virtual inheritance on a common
// plugin base. This package expresses the same idea as three small
// interfaces sharing one lifecycle embed, rather than one fat interface
// every plugin must satisfy regardless of kind.
package plugin

import (
	"time"

	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/report"
)

// Kind identifies a plugin's position in the ring.
type Kind int

const (
	Input Kind = iota
	Processor
	Output
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Processor:
		return "processor"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Status is the result a Processor plugin returns for one packet.
type Status int

const (
	// StatusOK passes the packet through unchanged.
	StatusOK Status = iota
	// StatusDrop marks the slot logically dropped: the worker clears
	// meta.Valid and leaves the packet bytes untouched. The slot still
	// occupies its place in the window (drop never physically compacts the
	// count passed forward) but a downstream stage can see meta.Valid is
	// false and skip acting on it.
	StatusDrop
	// StatusStuffNull physically overwrites the packet in place with a null
	// packet (PID 0x1FFF) and leaves meta.Valid true: a size- and
	// bitrate-preserving substitution, as opposed to StatusDrop's purely
	// logical marking.
	StatusStuffNull
	// StatusEnd asks the stage to behave as if end-of-input occurred here.
	StatusEnd
	// StatusAbort asks the stage (and, by propagation, its neighbors) to stop.
	StatusAbort
)

// Lifecycle is the configuration and lifecycle contract common to every
// plugin kind, independent of Input/Processor/Output.
type Lifecycle interface {
	// ResetContext reinitializes transient state before a (re)start. args is
	// the argument vector the plugin should treat as authoritative once
	// Start is called.
	ResetContext(args []string) error

	// Analyze parses argv under the given command name, returning an error
	// on a malformed argument vector. partial indicates a restart attempt
	// where option definitions were already registered by a previous call.
	Analyze(name string, argv []string, partial bool) error

	// GetOptions applies parsed option values into the plugin's own state,
	// called after a successful Analyze.
	GetOptions() error

	// Start begins (or resumes, after ResetContext) processing.
	Start() error

	// Stop ends processing and releases any resources acquired by Start.
	Stop() error

	// HandlePacketTimeout is invoked when waitWork times out. Returning true
	// asks the caller to keep waiting; false asks it to give up and return
	// no data.
	HandlePacketTimeout() bool

	// IsRealTime reports whether this plugin requires real-time scheduling.
	IsRealTime() bool

	// RedirectReport swaps the sink used for diagnostics, returning the
	// previous one so a caller (the restart protocol) can restore it later.
	RedirectReport(sink report.Sink) report.Sink
}

// Base is embedded by every concrete plugin kind to supply Kind() alongside
// Lifecycle.
type Base interface {
	Lifecycle
	Kind() Kind
}

// InputPlugin produces packets into the caller-owned window.
type InputPlugin interface {
	Base
	// Receive writes up to len(slots) packets (and matching metadata) and
	// returns the number produced. A return of 0 signals end-of-input.
	Receive(slots []buffer.Packet, meta []buffer.Metadata) (produced int, err error)
}

// ProcessorPlugin transforms packets in place within the caller-owned
// window.
type ProcessorPlugin interface {
	Base
	// ProcessPacket inspects and may rewrite pkt and its metadata in place.
	ProcessPacket(pkt *buffer.Packet, meta *buffer.Metadata) Status
}

// OutputPlugin consumes packets from the caller-owned window.
type OutputPlugin interface {
	Base
	// Send delivers count packets starting at slots[0]. A returned error
	// indicates delivery failure, which the caller may treat as abort.
	Send(slots []buffer.Packet, meta []buffer.Metadata, count int) error
}

// PacketTimeout is the duration a stage's waitWork call may block before
// invoking HandlePacketTimeout. Zero means no timeout (block indefinitely).
type PacketTimeout = time.Duration

package tsp

import (
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/report"
)

// The plugin contract types are re-exported from internal/plugin so callers
// implementing a plugin never import an internal package directly, mirroring
// the teacher's own re-export pattern (framesupplier.Frame =
// internal.Frame).

type (
	Kind            = plugin.Kind
	Status          = plugin.Status
	Lifecycle       = plugin.Lifecycle
	InputPlugin     = plugin.InputPlugin
	ProcessorPlugin = plugin.ProcessorPlugin
	OutputPlugin    = plugin.OutputPlugin
	ReportSink      = report.Sink
)

const (
	Input     = plugin.Input
	Processor = plugin.Processor
	Output    = plugin.Output
)

const (
	StatusOK        = plugin.StatusOK
	StatusDrop      = plugin.StatusDrop
	StatusStuffNull = plugin.StatusStuffNull
	StatusEnd       = plugin.StatusEnd
	StatusAbort     = plugin.StatusAbort
)

// NewSlogSink wraps a *slog.Logger-backed report.Sink for callers that don't
// want to depend on internal/report directly. See internal/report.NewSlog
// for the full logger-adaptation documentation.
var NewSlogSink = report.NewSlog

// DiscardSink is a ReportSink that drops everything.
type DiscardSink = report.Discard

package tsp

import "github.com/willdelstrother/tsduck/internal/ring"

// EventHandler is invoked synchronously from a stage's worker thread on a
// plugin-defined (or stage-lifecycle) event. Handlers must not block
// significantly and must not call back into a Pipeline's control methods
// (spec §6, "Pipeline -> event handlers").
type EventHandler = ring.EventHandler

// PluginEventContext carries the data available to an EventHandler at
// signal time: which stage raised the event, its position among its
// siblings, the current bitrate, and both local and pipeline-wide packet
// counters.
type PluginEventContext = ring.EventContext

// Event codes reserved for stage lifecycle, distinct from plugin-defined
// event codes, which by convention start at 0.
const (
	EventStageStarted   = -1
	EventStageStopped   = -2
	EventStageAborting  = -3 // ctx.Outcome unused, always ""
	EventStageRestarted = -4 // ctx.Outcome is "ok", "fallback", or "failed"
)

// Package tsp implements a multi-threaded plugin pipeline that moves fixed
// size Transport Stream packets through a chain of pluggable stages (one
// Input, zero or more Processors, one Output) via a single shared circular
// buffer.
//
// Architecture:
//   - A closed ring of executor stages (internal/ring), each owning a
//     non-overlapping contiguous window of the shared buffer.
//   - A condition-variable protocol (waitWork / passPackets) that advances
//     window ownership and propagates bitrate, end-of-input, and abort.
//   - An online restart protocol (internal/restart) letting a supervisor
//     reconfigure one stage's plugin without tearing down the ring.
//
// Construct a Pipeline with New, start it with Start, and either let it run
// to completion (JoinPipeline) or drive it from a supervisor thread
// (AbortPipeline, RestartStage). Plugins implement InputPlugin,
// ProcessorPlugin, or OutputPlugin from this package's re-exports of
// internal/plugin.
package tsp

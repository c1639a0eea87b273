package tsp

import (
	"fmt"
	"sync"
	"time"

	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/report"
	"github.com/willdelstrother/tsduck/internal/restart"
	"github.com/willdelstrother/tsduck/internal/ring"
	"github.com/willdelstrother/tsduck/internal/worker"
)

// StageSpec describes one stage in chain order: its display name, kind,
// concrete plugin instance, and per-stage scheduling parameters.
type StageSpec struct {
	Name          string
	Kind          Kind
	Plugin        Lifecycle
	MinPacketCnt  int
	PacketTimeout time.Duration
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithReportSink sets the sink used for diagnostics not attributable to a
// specific restart (ring warnings, stage lifecycle logging).
func WithReportSink(sink ReportSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithEventHandler registers a handler invoked on every stage lifecycle and
// plugin-defined event.
func WithEventHandler(h EventHandler) Option {
	return func(p *Pipeline) { p.pendingHandlers = append(p.pendingHandlers, h) }
}

// Pipeline is the public API for constructing, running, and controlling a
// ring of executor stages (spec §6, "Supervisor -> pipeline").
type Pipeline struct {
	ring   *ring.Ring
	buffer *buffer.PacketBuffer
	specs  []StageSpec
	sink   ReportSink

	pendingHandlers []EventHandler

	wg      sync.WaitGroup
	started bool

	mu sync.Mutex
}

// New constructs a Pipeline of len(specs) stages sharing a buffer of the
// given capacity. specs[0] must be Kind Input, specs[len-1] Kind Output,
// and every stage in between Kind Processor (spec §2: N >= 3).
func New(capacity int, specs []StageSpec, opts ...Option) (*Pipeline, error) {
	if len(specs) < 3 {
		return nil, fmt.Errorf("tsp: pipeline requires at least 3 stages, got %d", len(specs))
	}
	if specs[0].Kind != Input {
		return nil, fmt.Errorf("tsp: stage 0 must be Input")
	}
	if specs[len(specs)-1].Kind != Output {
		return nil, fmt.Errorf("tsp: last stage must be Output")
	}
	for i, s := range specs[1 : len(specs)-1] {
		if s.Kind != Processor {
			return nil, fmt.Errorf("tsp: stage %d must be Processor", i+1)
		}
	}

	p := &Pipeline{
		specs:  specs,
		buffer: buffer.New(capacity),
		sink:   report.Discard{},
	}
	for _, opt := range opts {
		opt(p)
	}

	kinds := make([]ring.Kind, len(specs))
	names := make([]string, len(specs))
	for i, s := range specs {
		kinds[i] = ring.Kind(s.Kind)
		names[i] = s.Name
	}
	p.ring = ring.New(capacity, kinds, names, p.sink)
	for _, h := range p.pendingHandlers {
		p.ring.RegisterEventHandler(h)
	}

	for i, stage := range p.ring.Stages() {
		if specs[i].PacketTimeout > 0 {
			stage.SetPacketTimeout(specs[i].PacketTimeout)
		}
	}

	return p, nil
}

// Start installs each stage's initial window (input owns the full buffer,
// every other stage starts empty immediately after its predecessor's
// window, per spec §4.2 initBuffer), calls every plugin's Start, and
// launches one worker goroutine per stage.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("tsp: pipeline already started")
	}

	stages := p.ring.Stages()
	capacity := p.ring.Capacity()

	first := 0
	for i, stage := range stages {
		count := 0
		if i == 0 {
			count = capacity
		}
		p.ring.InitBuffer(stage, first, count, false, false, 0, ring.ConfidenceLow)
		first = (first + count) % capacity
	}

	for i, spec := range p.specs {
		if err := spec.Plugin.Start(); err != nil {
			return fmt.Errorf("tsp: stage %q failed to start: %w", spec.Name, err)
		}
		p.wg.Add(1)
		go p.runStage(stages[i], p.specs[i])
	}

	p.started = true
	return nil
}

func (p *Pipeline) runStage(stage *ring.Stage, spec StageSpec) {
	defer p.wg.Done()
	defer spec.Plugin.Stop()

	minPktCnt := spec.MinPacketCnt
	if minPktCnt <= 0 {
		minPktCnt = 1
	}

	switch pl := spec.Plugin.(type) {
	case plugin.InputPlugin:
		worker.RunInput(p.ring, stage, p.buffer, pl, minPktCnt)
	case plugin.ProcessorPlugin:
		worker.RunProcessor(p.ring, stage, p.buffer, pl, minPktCnt)
	case plugin.OutputPlugin:
		worker.RunOutput(p.ring, stage, p.buffer, pl, minPktCnt)
	default:
		p.sink.Error("tsp: stage %q plugin implements no recognized kind interface", spec.Name)
	}
}

// AbortPipeline sets abort on every stage, per spec §6's abort_pipeline.
func (p *Pipeline) AbortPipeline() {
	for _, stage := range p.ring.Stages() {
		p.ring.SetAbort(stage)
		p.ring.SignalPluginEvent(stage, EventStageAborting, 0)
	}
}

// RestartStage requests an in-place restart of the stage at index without
// tearing down the ring (spec §4.5, §6). It satisfies control.Controller so
// a Pipeline can back the restart control-channel server directly.
func (p *Pipeline) RestartStage(index int, args []string, sameArgs bool) error {
	stages := p.ring.Stages()
	if index < 0 || index >= len(stages) {
		return fmt.Errorf("tsp: stage index %d out of range [0,%d)", index, len(stages))
	}
	outcome, err := restart.Request(p.ring, stages[index], args, sameArgs, p.sink)
	p.ring.SignalPluginEventWithOutcome(stages[index], EventStageRestarted, 0, outcome)
	return err
}

// JoinPipeline waits for every worker goroutine to finish.
func (p *Pipeline) JoinPipeline() {
	p.wg.Wait()
}

// TotalPacketCount returns the sum of every stage's window count, which
// must always equal the buffer capacity (spec §8 invariant 1). Exposed for
// tests and diagnostics.
func (p *Pipeline) TotalPacketCount() int {
	return p.ring.TotalCount()
}

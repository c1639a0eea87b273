package tsp

import (
	"testing"
	"time"

	"github.com/willdelstrother/tsduck/plugins/count"
	"github.com/willdelstrother/tsduck/plugins/generator"
	"github.com/willdelstrother/tsduck/plugins/passthrough"
)

func buildRingPlumbingPipeline(t *testing.T, capacity, packets int) (*Pipeline, *count.Plugin) {
	t.Helper()
	gen := generator.New(packets)
	proc := passthrough.New()
	out := count.New()

	specs := []StageSpec{
		{Name: "input", Kind: Input, Plugin: gen, MinPacketCnt: 1},
		{Name: "proc", Kind: Processor, Plugin: proc, MinPacketCnt: 1},
		{Name: "output", Kind: Output, Plugin: out, MinPacketCnt: 1},
	}

	p, err := New(capacity, specs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, out
}

// Scenario 1: ring plumbing. B=8, N=3, Input produces 1000 packets then
// end. Output must count exactly 1000 and the pipeline must join cleanly.
func TestScenarioRingPlumbing(t *testing.T) {
	p, out := buildRingPlumbingPipeline(t, 8, 1000)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.JoinPipeline()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not join within timeout")
	}

	if got := out.Received(); got != 1000 {
		t.Fatalf("output received %d packets, want 1000", got)
	}
	if got := p.TotalPacketCount(); got != 8 {
		t.Fatalf("total packet count = %d, want 8 (buffer capacity)", got)
	}
}

// Scenario 2: backpressure. Output sleeps per Send call while Input
// produces as fast as possible. The pipeline must still complete without
// exceeding the buffer's invariant (sum of counts == B, enforced by the
// ring itself and checked via TotalPacketCount once the pipeline has
// joined).
func TestScenarioBackpressure(t *testing.T) {
	gen := generator.New(200)
	proc := passthrough.New()
	out := count.New()
	out.SleepPerPacket = time.Millisecond

	specs := []StageSpec{
		{Name: "input", Kind: Input, Plugin: gen, MinPacketCnt: 1},
		{Name: "proc", Kind: Processor, Plugin: proc, MinPacketCnt: 1},
		{Name: "output", Kind: Output, Plugin: out, MinPacketCnt: 1},
	}
	p, err := New(8, specs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.JoinPipeline()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not join within timeout")
	}

	if got := out.Received(); got != 200 {
		t.Fatalf("output received %d packets, want 200", got)
	}
	if got := p.TotalPacketCount(); got != 8 {
		t.Fatalf("total packet count = %d, want 8 (buffer capacity)", got)
	}
}

// Drop vs stuff-null: StatusDrop must not shrink the count a Processor
// hands forward (spec §4.4's "possibly-reduced count" is logical, never a
// physical compaction), but it must be observably different downstream
// from StatusStuffNull — here, only dropped slots are counted as Dropped.
func TestScenarioDropVsStuffNull(t *testing.T) {
	gen := generator.New(300)
	proc := passthrough.New()
	proc.DropEvery = 3      // every 3rd packet: logical drop
	proc.StuffNullEvery = 5 // every 5th packet, unless already dropped: physical null
	out := count.New()

	specs := []StageSpec{
		{Name: "input", Kind: Input, Plugin: gen, MinPacketCnt: 1},
		{Name: "proc", Kind: Processor, Plugin: proc, MinPacketCnt: 1},
		{Name: "output", Kind: Output, Plugin: out, MinPacketCnt: 1},
	}
	p, err := New(8, specs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.JoinPipeline()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not join within timeout")
	}

	if got := out.Received(); got != 300 {
		t.Fatalf("output received %d packets, want 300 (drop must not shrink the count)", got)
	}
	// Packets dropped: every multiple of 3 among 300, i.e. 100. Packets
	// stuff-nulled (multiples of 5 not also multiples of 3) are delivered
	// as ordinary valid packets and must not count as dropped.
	if got, want := out.Dropped(), int64(100); got != want {
		t.Fatalf("output dropped %d packets, want %d", got, want)
	}
}

// Scenario 3: backward abort. N=4; Output aborts after receiving 50
// packets. Input must stop producing and the join must complete, with
// total Output-received in [50, 50+B].
func TestScenarioBackwardAbort(t *testing.T) {
	gen := generator.New(100000)
	proc1 := passthrough.New()
	proc2 := passthrough.New()
	out := count.New()
	out.AbortAfter = 50

	capacity := 8
	specs := []StageSpec{
		{Name: "input", Kind: Input, Plugin: gen, MinPacketCnt: 1},
		{Name: "proc1", Kind: Processor, Plugin: proc1, MinPacketCnt: 1},
		{Name: "proc2", Kind: Processor, Plugin: proc2, MinPacketCnt: 1},
		{Name: "output", Kind: Output, Plugin: out, MinPacketCnt: 1},
	}
	p, err := New(capacity, specs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.JoinPipeline()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not join within timeout after abort")
	}

	got := out.Received()
	if got < 50 || got > int64(50+capacity) {
		t.Fatalf("output received %d packets, want in [50, %d]", got, 50+capacity)
	}
}

// Scenario 4: restart same-args. Throughput must continue advancing after
// the restart call returns.
func TestScenarioRestartSameArgs(t *testing.T) {
	p, out := buildRingPlumbingPipeline(t, 8, 5000)
	// Slow the output so the pipeline is still running when the restart
	// request arrives: a request on a stage whose worker has already
	// returned is never serviced.
	out.SleepPerPacket = 100 * time.Microsecond
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	before := out.Received()

	if err := p.RestartStage(1, nil, true); err != nil {
		t.Fatalf("RestartStage(same_args): %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.JoinPipeline()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not join within timeout")
	}

	after := out.Received()
	if after < before {
		t.Fatalf("throughput regressed across restart: before=%d after=%d", before, after)
	}
	if after != 5000 {
		t.Fatalf("output received %d packets, want 5000", after)
	}
}

// Scenario 5: restart bad-args fallback. The supervisor sees an error, and
// the stage resumes with its previous configuration.
type failOnBadArgsPlugin struct {
	*passthrough.Plugin
}

func (f failOnBadArgsPlugin) Analyze(name string, argv []string, partial bool) error {
	for _, a := range argv {
		if a == "--invalid" {
			return errBadArg
		}
	}
	return nil
}

var errBadArg = fmtErrorf("plugins/passthrough: unknown option --invalid")

func fmtErrorf(msg string) error { return simpleError(msg) }

type simpleError string

func (e simpleError) Error() string { return string(e) }

type capturingSink struct {
	DiscardSink
	warnings []string
}

func (c *capturingSink) Warning(msg string, args ...any) {
	c.warnings = append(c.warnings, msg)
}

func TestScenarioRestartBadArgsFallback(t *testing.T) {
	gen := generator.New(5000)
	proc := failOnBadArgsPlugin{passthrough.New()}
	out := count.New()
	sink := &capturingSink{}

	specs := []StageSpec{
		{Name: "input", Kind: Input, Plugin: gen, MinPacketCnt: 1},
		{Name: "proc", Kind: Processor, Plugin: proc, MinPacketCnt: 1},
		{Name: "output", Kind: Output, Plugin: out, MinPacketCnt: 1},
	}
	p, err := New(8, specs, WithReportSink(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The restart call itself succeeds once the fallback to previous
	// configuration completes; the bad-args failure is surfaced to the
	// supervisor's report, not as a synchronous error from this call.
	if err := p.RestartStage(1, []string{"--invalid"}, false); err != nil {
		t.Fatalf("RestartStage unexpectedly failed even after fallback: %v", err)
	}
	if len(sink.warnings) == 0 {
		t.Fatal("expected the bad-args failure to be logged to the supervisor's report")
	}

	done := make(chan struct{})
	go func() {
		p.JoinPipeline()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not join within timeout")
	}

	if got := out.Received(); got != 5000 {
		t.Fatalf("output received %d packets, want 5000 (pipeline should have continued)", got)
	}
}

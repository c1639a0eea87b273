package ring

import (
	"testing"

	"github.com/willdelstrother/tsduck/internal/report"
)

func newTestRing(t *testing.T, capacity int) *Ring {
	t.Helper()
	kinds := []Kind{Input, Processor, Output}
	names := []string{"input", "proc", "output"}
	r := New(capacity, kinds, names, report.Discard{})
	r.InitBuffer(r.Stages()[0], 0, capacity, false, false, 0, ConfidenceLow)
	r.InitBuffer(r.Stages()[1], 0, 0, false, false, 0, ConfidenceLow)
	r.InitBuffer(r.Stages()[2], 0, 0, false, false, 0, ConfidenceLow)
	return r
}

func TestInvariantSumOfCountsEqualsCapacity(t *testing.T) {
	r := newTestRing(t, 8)
	if got := r.TotalCount(); got != 8 {
		t.Fatalf("total count = %d, want 8", got)
	}
}

func TestPassPacketsAdvancesWindows(t *testing.T) {
	r := newTestRing(t, 8)
	input, proc, output := r.Stages()[0], r.Stages()[1], r.Stages()[2]

	cont := r.PassPackets(input, 5, 1000, ConfidenceHigh, false, false)
	if !cont {
		t.Fatal("expected continue=true")
	}
	if proc.count != 5 {
		t.Fatalf("proc.count = %d, want 5", proc.count)
	}
	if input.count != 3 {
		t.Fatalf("input.count = %d, want 3", input.count)
	}
	if got := r.TotalCount(); got != 8 {
		t.Fatalf("total count = %d, want 8", got)
	}

	res := r.WaitWork(proc, 1, nil)
	if res.Count != 5 || res.Bitrate != 1000 {
		t.Fatalf("waitWork = %+v, want count=5 bitrate=1000", res)
	}

	cont = r.PassPackets(proc, 5, 1000, ConfidenceHigh, false, false)
	if !cont || output.count != 5 {
		t.Fatalf("output.count = %d, want 5", output.count)
	}
}

func TestPassPacketsPanicsOnOverdraw(t *testing.T) {
	r := newTestRing(t, 8)
	input := r.Stages()[0]

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on count > stage window")
		}
	}()
	r.PassPackets(input, 9, 0, ConfidenceLow, false, false)
}

func TestInputEndIsMonotonicAndPropagatesForward(t *testing.T) {
	r := newTestRing(t, 8)
	input, proc := r.Stages()[0], r.Stages()[1]

	r.PassPackets(input, 0, 0, ConfidenceLow, true, false)
	if !proc.inputEnd {
		t.Fatal("expected proc.inputEnd=true after input_end propagated")
	}

	// Monotonic: passing input_end=false afterward must not clear it.
	r.PassPackets(input, 0, 0, ConfidenceLow, false, false)
	if !proc.inputEnd {
		t.Fatal("input_end regressed to false")
	}
}

func TestAbortPropagatesForwardThenBackward(t *testing.T) {
	r := newTestRing(t, 8)
	input, proc, output := r.Stages()[0], r.Stages()[1], r.Stages()[2]

	r.SetAbort(output)

	// proc is non-Output: passPackets must observe next(proc).aborting and
	// force proc.aborted too, notifying proc's predecessor (input).
	cont := r.PassPackets(proc, 0, 0, ConfidenceLow, false, false)
	if cont {
		t.Fatal("expected continue=false once successor is aborting")
	}
	if !r.IsAborting(proc) {
		t.Fatal("expected proc.aborting=true")
	}
	_ = input
}

func TestWaitWorkClampsOversizedMinPktCnt(t *testing.T) {
	r := newTestRing(t, 8)
	input := r.Stages()[0]
	res := r.WaitWork(input, 100, nil)
	if res.Count != 8 {
		t.Fatalf("count = %d, want 8 (full buffer)", res.Count)
	}
}

func TestWaitWorkReturnsContiguousHeadOnWrap(t *testing.T) {
	r := newTestRing(t, 8)
	input, proc := r.Stages()[0], r.Stages()[1]

	// Drain most of input's window so its remaining packets start near the
	// wrap boundary, then hand some back so count wraps around 0.
	r.PassPackets(input, 6, 0, ConfidenceLow, false, false) // input: first=6 count=2
	r.PassPackets(proc, 6, 0, ConfidenceLow, false, false)  // proc count=0, output count=6
	output := r.Stages()[2]
	r.PassPackets(output, 6, 0, ConfidenceLow, false, false) // output count=0, input count=8 first=6

	res := r.WaitWork(input, 1, nil)
	// first=6, count=8, capacity=8: tail = 8-6 = 2, contiguous head available
	// satisfies min_pkt_cnt=1, so only the 2-packet head should be returned.
	if res.Count != 2 {
		t.Fatalf("count = %d, want 2 (contiguous head before wrap)", res.Count)
	}
}

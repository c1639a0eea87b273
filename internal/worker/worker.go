// Package worker implements the three executor loop shapes (one per plugin
// kind) that tie together internal/ring's window protocol,
// internal/restart's pending-restart servicing, and a plugin's data
// operation. Each loop function is the "executor loop (conceptual)"
// description of spec §4.4 made concrete for one Kind.
package worker

import (
	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/restart"
	"github.com/willdelstrother/tsduck/internal/ring"
)

// eventCode values signalled by the loops themselves, distinct from any
// plugin-defined event codes (which start above this range by convention).
const (
	EventStageStarted = -1
	EventStageStopped = -2
)

// RunInput drives an Input stage until its plugin reports end-of-input or
// the stage is told to abort.
func RunInput(r *ring.Ring, s *ring.Stage, buf *buffer.PacketBuffer, p plugin.InputPlugin, minPktCnt int) {
	r.SignalPluginEvent(s, EventStageStarted, 0)
	defer r.SignalPluginEvent(s, EventStageStopped, 0)

	for {
		if restart.ServicePending(r, s, p) {
			continue
		}

		res := r.WaitWork(s, minPktCnt, p.HandlePacketTimeout)
		if res.TimedOut {
			continue
		}
		if res.Count == 0 && !res.InputEnd && !res.Aborted {
			continue
		}
		if res.Count == 0 {
			if !r.PassPackets(s, 0, res.Bitrate, res.Confidence, true, res.Aborted) {
				return
			}
			continue
		}

		slots, meta := buf.Slice(res.First, res.Count)
		produced, err := p.Receive(slots, meta)

		inputEnd := produced == 0
		aborted := res.Aborted || err != nil

		if !r.PassPackets(s, produced, res.Bitrate, res.Confidence, inputEnd, aborted) {
			return
		}
	}
}

// RunProcessor drives a Processor stage, applying p.ProcessPacket to every
// packet in its window before handing the full window count forward: a
// drop only clears the slot's meta.Valid and never reduces the count.
func RunProcessor(r *ring.Ring, s *ring.Stage, buf *buffer.PacketBuffer, p plugin.ProcessorPlugin, minPktCnt int) {
	r.SignalPluginEvent(s, EventStageStarted, 0)
	defer r.SignalPluginEvent(s, EventStageStopped, 0)

	for {
		if restart.ServicePending(r, s, p) {
			continue
		}

		res := r.WaitWork(s, minPktCnt, p.HandlePacketTimeout)
		if res.TimedOut {
			continue
		}
		if res.Count == 0 {
			if !r.PassPackets(s, 0, res.Bitrate, res.Confidence, res.InputEnd, res.Aborted) {
				return
			}
			continue
		}

		slots, meta := buf.Slice(res.First, res.Count)

		inputEnd := res.InputEnd
		aborted := res.Aborted

		for i := range slots {
			switch p.ProcessPacket(&slots[i], &meta[i]) {
			case plugin.StatusOK:
			case plugin.StatusDrop:
				meta[i].Valid = false
			case plugin.StatusStuffNull:
				stuffNull(&slots[i], &meta[i])
			case plugin.StatusEnd:
				inputEnd = true
			case plugin.StatusAbort:
				aborted = true
			}
		}

		if !r.PassPackets(s, res.Count, res.Bitrate, res.Confidence, inputEnd, aborted) {
			return
		}
	}
}

// RunOutput drives an Output stage, consuming its window via p.Send and
// recycling slots back to Input via passPackets.
func RunOutput(r *ring.Ring, s *ring.Stage, buf *buffer.PacketBuffer, p plugin.OutputPlugin, minPktCnt int) {
	r.SignalPluginEvent(s, EventStageStarted, 0)
	defer r.SignalPluginEvent(s, EventStageStopped, 0)

	for {
		if restart.ServicePending(r, s, p) {
			continue
		}

		res := r.WaitWork(s, minPktCnt, p.HandlePacketTimeout)
		if res.TimedOut {
			continue
		}
		if res.Count == 0 {
			if !r.PassPackets(s, 0, res.Bitrate, res.Confidence, false, res.Aborted) {
				return
			}
			if res.InputEnd {
				return
			}
			continue
		}

		slots, meta := buf.Slice(res.First, res.Count)
		err := p.Send(slots, meta, res.Count)

		// The Output -> Input edge never carries input_end or aborting
		// forward (spec invariant 5): it is slot recycling, not data flow.
		if !r.PassPackets(s, res.Count, res.Bitrate, res.Confidence, false, err != nil) {
			return
		}
		if res.InputEnd {
			return
		}
	}
}

// stuffNull overwrites pkt in place with a null packet (PID 0x1FFF),
// preserving slot size and position: StatusStuffNull is a size-preserving
// substitution, never a physical compaction of the window.
func stuffNull(pkt *buffer.Packet, meta *buffer.Metadata) {
	for i := range pkt {
		pkt[i] = 0xFF
	}
	pkt[0] = 0x47     // sync byte
	pkt[1] = 0x1F     // PID high bits incl. 5 MSBs of PID 0x1FFF
	pkt[2] = 0xFF     // PID low bits
	pkt[3] = 0x10     // no scrambling, no adaptation field, cc=0
	meta.Valid = true
}

// Package bitratemonitor implements the reference processor plugin from
// spec §4.6: a sliding window of one-second buckets feeding a hysteresis
// state machine over an allowed [min, max] bitrate band, with periodic
// reports, alarm delivery, a packet-label side channel, and a final
// summary on stop.
//
// Grounded line-for-line on the original plugin
// (tsplugin_bitrate_monitor.cpp): the bucket/window bookkeeping in
// checkTime/computeBitrate, the bitrate formula (packets * 1504 bits over
// accumulated microseconds), and the label-application order in
// processPacket all mirror that source directly.
package bitratemonitor

import (
	"fmt"
	"time"

	"github.com/willdelstrother/tsduck/internal/alarm"
	"github.com/willdelstrother/tsduck/internal/buffer"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/internal/report"
	"github.com/willdelstrother/tsduck/internal/stats"
)

// pktSizeBits is the bit count of one TS packet: 188 bytes * 8.
const pktSizeBits = buffer.PacketSize * 8

// nullPID is the reserved PID for stuffing/padding packets.
const nullPID = 0x1FFF

const defaultWindowSeconds = 5

// Options configures a Plugin at construction time. Zero values take the
// same defaults as the original plugin's command line.
type Options struct {
	FullTS         bool
	Pids           map[int]bool
	FirstPID       int
	WindowSeconds  int
	MinBitrate     int64
	MaxBitrate     int64
	PeriodicBitrateSeconds int
	PeriodicCommandSeconds int
	Tag            string
	AlarmSink      alarm.Sink
	Summary        bool

	LabelsBelow    buffer.LabelSet
	LabelsNormal   buffer.LabelSet
	LabelsAbove    buffer.LabelSet
	LabelsGoBelow  buffer.LabelSet
	LabelsGoNormal buffer.LabelSet
	LabelsGoAbove  buffer.LabelSet
}

func (o *Options) fillDefaults() {
	if o.WindowSeconds <= 0 {
		o.WindowSeconds = defaultWindowSeconds
	}
	if o.MaxBitrate == 0 {
		o.MaxBitrate = 0xFFFFFFFF
	}
	if len(o.Pids) == 0 {
		o.FullTS = true
	}
}

type period struct {
	duration time.Duration
	packets  int64
	nonNull  int64
}

func (p *period) clear() { p.duration, p.packets, p.nonNull = 0, 0, 0 }

// Plugin is the reference bitrate-monitor processor.
type Plugin struct {
	opts Options
	sink report.Sink

	// clock is injected for tests; defaults to time.Now in Start.
	clock func() time.Time

	bitrateCountdown int
	commandCountdown int
	lastStatus       alarm.State
	lastSecond       time.Time
	startup          bool
	periodsIndex     int
	periods          []period
	labelsNext       buffer.LabelSet

	stats    stats.RunningMean
	netStats stats.RunningMean
}

// New constructs a bitrate monitor with the given options.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts, sink: report.Discard{}}
}

func (p *Plugin) Kind() plugin.Kind { return plugin.Processor }

func (p *Plugin) ResetContext(args []string) error {
	return p.Analyze("bitrate_monitor", args, true)
}

// Analyze parses a small, spec-defined subset of the original plugin's
// option surface (§10.5): --pid, --min, --max, --time-interval,
// --periodic-bitrate, --periodic-command, --tag, --summary. The alarm
// sink and the label sets are set only through Options; any other
// argument is rejected. Full CLI-argument-grammar parsing is out of scope
// (spec §1); this is the narrow contract a restart's new argument vector
// is validated against.
func (p *Plugin) Analyze(name string, argv []string, partial bool) error {
	opts := p.opts
	opts.Pids = map[int]bool{}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		next := func() (string, error) {
			i++
			if i >= len(argv) {
				return "", fmt.Errorf("bitratemonitor: missing value for %s", arg)
			}
			return argv[i], nil
		}
		switch arg {
		case "--pid":
			v, err := next()
			if err != nil {
				return err
			}
			var pid int
			if _, err := fmt.Sscanf(v, "%d", &pid); err != nil {
				return fmt.Errorf("bitratemonitor: invalid --pid value %q: %w", v, err)
			}
			opts.Pids[pid] = true
			if opts.FirstPID == 0 {
				opts.FirstPID = pid
			}
		case "--min":
			v, err := next()
			if err != nil {
				return err
			}
			if _, err := fmt.Sscanf(v, "%d", &opts.MinBitrate); err != nil {
				return fmt.Errorf("bitratemonitor: invalid --min value %q: %w", v, err)
			}
		case "--max":
			v, err := next()
			if err != nil {
				return err
			}
			if _, err := fmt.Sscanf(v, "%d", &opts.MaxBitrate); err != nil {
				return fmt.Errorf("bitratemonitor: invalid --max value %q: %w", v, err)
			}
		case "--time-interval":
			v, err := next()
			if err != nil {
				return err
			}
			if _, err := fmt.Sscanf(v, "%d", &opts.WindowSeconds); err != nil {
				return fmt.Errorf("bitratemonitor: invalid --time-interval value %q: %w", v, err)
			}
		case "--periodic-bitrate":
			v, err := next()
			if err != nil {
				return err
			}
			if _, err := fmt.Sscanf(v, "%d", &opts.PeriodicBitrateSeconds); err != nil {
				return fmt.Errorf("bitratemonitor: invalid --periodic-bitrate value %q: %w", v, err)
			}
		case "--periodic-command":
			v, err := next()
			if err != nil {
				return err
			}
			if _, err := fmt.Sscanf(v, "%d", &opts.PeriodicCommandSeconds); err != nil {
				return fmt.Errorf("bitratemonitor: invalid --periodic-command value %q: %w", v, err)
			}
		case "--tag":
			v, err := next()
			if err != nil {
				return err
			}
			opts.Tag = v
		case "--summary":
			opts.Summary = true
		default:
			return fmt.Errorf("bitratemonitor: unknown option %q", arg)
		}
	}

	if opts.MinBitrate > opts.MaxBitrate && opts.MaxBitrate != 0 {
		return fmt.Errorf("bitratemonitor: bad parameters, bitrate min (%d) > max (%d)", opts.MinBitrate, opts.MaxBitrate)
	}
	if opts.PeriodicCommandSeconds > 0 && opts.AlarmSink == nil {
		p.sink.Warning("no alarm sink configured, --periodic-command ignored")
		opts.PeriodicCommandSeconds = 0
	}

	p.opts = opts
	return nil
}

func (p *Plugin) GetOptions() error {
	p.opts.fillDefaults()
	return nil
}

// Start initializes the sliding window. It does not set a packet timeout:
// the plugin has no access to its stage, so how long waitWork blocks is
// whatever the stage's PacketTimeout was configured to, and
// HandlePacketTimeout only ticks the window when such a timeout is set.
func (p *Plugin) Start() error {
	if p.clock == nil {
		p.clock = time.Now
	}
	p.periods = make([]period, p.opts.WindowSeconds)
	p.periodsIndex = 0
	p.labelsNext = 0
	p.bitrateCountdown = p.opts.PeriodicBitrateSeconds
	p.commandCountdown = p.opts.PeriodicCommandSeconds
	p.lastStatus = alarm.StateInRange
	p.lastSecond = p.clock()
	p.startup = true
	p.stats = stats.RunningMean{}
	p.netStats = stats.RunningMean{}
	return nil
}

func (p *Plugin) Stop() error {
	if p.opts.Summary {
		if p.opts.FullTS {
			p.sink.Info("%s average bitrate: %d bits/s, average net bitrate: %d bits/s",
				p.alarmPrefix(), int64(p.stats.Mean()), int64(p.netStats.Mean()))
		} else {
			p.sink.Info("%s average bitrate: %d bits/s", p.alarmPrefix(), int64(p.stats.Mean()))
		}
	}
	return nil
}

// HandlePacketTimeout still ticks the windowing logic when upstream is
// idle, never asking the caller to abort.
func (p *Plugin) HandlePacketTimeout() bool {
	p.checkTime()
	return true
}

func (p *Plugin) IsRealTime() bool { return false }

func (p *Plugin) RedirectReport(sink report.Sink) report.Sink {
	prev := p.sink
	p.sink = sink
	return prev
}

func pidOf(pkt *buffer.Packet) int {
	return (int(pkt[1]&0x1F) << 8) | int(pkt[2])
}

// ProcessPacket increments the current bucket, ticks the window, and
// applies whichever labels the current (and just-transitioned) state
// calls for, in the same order as the original: trigger labels first,
// then steady-state labels.
func (p *Plugin) ProcessPacket(pkt *buffer.Packet, meta *buffer.Metadata) plugin.Status {
	pid := pidOf(pkt)
	if p.opts.FullTS || p.opts.Pids[pid] {
		p.periods[p.periodsIndex].packets++
		if pid != nullPID {
			p.periods[p.periodsIndex].nonNull++
		}
	}

	p.checkTime()

	meta.Labels = meta.Labels.Union(p.labelsNext)
	p.labelsNext = 0

	switch p.lastStatus {
	case alarm.StateLower:
		meta.Labels = meta.Labels.Union(p.opts.LabelsBelow)
	case alarm.StateInRange:
		meta.Labels = meta.Labels.Union(p.opts.LabelsNormal)
	case alarm.StateGreater:
		meta.Labels = meta.Labels.Union(p.opts.LabelsAbove)
	}

	return plugin.StatusOK
}

func (p *Plugin) checkTime() {
	now := p.clock()
	sinceLastSecond := now.Sub(p.lastSecond)
	if sinceLastSecond < time.Second {
		return
	}

	p.periods[p.periodsIndex].duration = sinceLastSecond
	p.lastSecond = now

	if !p.startup {
		p.computeBitrate()
	}

	p.periodsIndex = (p.periodsIndex + 1) % len(p.periods)
	p.periods[p.periodsIndex].clear()

	if p.startup {
		p.startup = p.periodsIndex != 0
	}
}

func (p *Plugin) computeBitrate() {
	var durationUS int64
	var totalPkt, nonNull int64
	for _, period := range p.periods {
		durationUS += period.duration.Microseconds()
		totalPkt += period.packets
		nonNull += period.nonNull
	}

	var bitrate, netBitrate int64
	if durationUS > 0 {
		bitrate = totalPkt * pktSizeBits * 1_000_000 / durationUS
		netBitrate = nonNull * pktSizeBits * 1_000_000 / durationUS
	}

	if p.opts.Summary {
		p.stats.Add(bitrate)
		p.netStats.Add(netBitrate)
	}

	var newStatus alarm.State
	switch {
	case bitrate < p.opts.MinBitrate:
		newStatus = alarm.StateLower
	case bitrate > p.opts.MaxBitrate:
		newStatus = alarm.StateGreater
	default:
		newStatus = alarm.StateInRange
	}

	if p.opts.PeriodicBitrateSeconds > 0 {
		p.bitrateCountdown--
		if p.bitrateCountdown <= 0 {
			p.bitrateCountdown = p.opts.PeriodicBitrateSeconds
			if p.opts.FullTS {
				p.sink.Info("%s bitrate: %d bits/s, net bitrate: %d bits/s", p.alarmPrefix(), bitrate, netBitrate)
			} else {
				p.sink.Info("%s bitrate: %d bits/s", p.alarmPrefix(), bitrate)
			}
		}
	}

	runCommand := false
	if p.opts.PeriodicCommandSeconds > 0 {
		p.commandCountdown--
		if p.commandCountdown <= 0 {
			p.commandCountdown = p.opts.PeriodicCommandSeconds
			runCommand = true
		}
	}

	stateChange := newStatus != p.lastStatus
	if !stateChange && !runCommand {
		return
	}

	message := fmt.Sprintf("%s bitrate (%d bits/s)", p.alarmPrefix(), bitrate)
	if stateChange {
		switch newStatus {
		case alarm.StateLower:
			message += fmt.Sprintf(" is lower than allowed minimum (%d bits/s)", p.opts.MinBitrate)
			p.labelsNext = p.labelsNext.Union(p.opts.LabelsGoBelow)
		case alarm.StateInRange:
			message += fmt.Sprintf(" is back in allowed range (%d-%d bits/s)", p.opts.MinBitrate, p.opts.MaxBitrate)
			p.labelsNext = p.labelsNext.Union(p.opts.LabelsGoNormal)
		case alarm.StateGreater:
			message += fmt.Sprintf(" is greater than allowed maximum (%d bits/s)", p.opts.MaxBitrate)
			p.labelsNext = p.labelsNext.Union(p.opts.LabelsGoAbove)
		}
		p.sink.Warning(message)
	}

	if p.opts.AlarmSink != nil {
		a := alarm.Alarm{
			Message:    message,
			PIDOrTS:    p.alarmTarget(),
			State:      newStatus,
			Bitrate:    bitrate,
			MinBitrate: p.opts.MinBitrate,
			MaxBitrate: p.opts.MaxBitrate,
			NetBitrate: netBitrate,
		}
		// The original launches the alarm command asynchronously and does
		// not wait for completion; a goroutine preserves that here.
		go func() {
			if err := p.opts.AlarmSink.Send(a); err != nil {
				p.sink.Warning("alarm delivery failed: %v", err)
			}
		}()
	}

	p.lastStatus = newStatus
}

func (p *Plugin) alarmPrefix() string {
	prefix := p.opts.Tag
	if prefix != "" {
		prefix += ": "
	}
	if p.opts.FullTS {
		return prefix + "TS"
	}
	return fmt.Sprintf("%sPID 0x%X (%d)", prefix, p.opts.FirstPID, p.opts.FirstPID)
}

func (p *Plugin) alarmTarget() string {
	if p.opts.FullTS {
		return "ts"
	}
	return fmt.Sprintf("%d", p.opts.FirstPID)
}

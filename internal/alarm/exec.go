package alarm

import (
	"context"
	"os/exec"
	"strconv"
	"time"
)

// ExecSink spawns the configured command as a subprocess for every alarm,
// passing the seven positional arguments spec §6 specifies. Grounded on the
// original plugin's ForkPipe::Launch call (tsplugin_bitrate_monitor.cpp).
type ExecSink struct {
	Command string
	Timeout time.Duration
}

// NewExecSink constructs an ExecSink invoking command for every alarm, with
// a default timeout of 5 seconds if timeout is zero.
func NewExecSink(command string, timeout time.Duration) *ExecSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExecSink{Command: command, Timeout: timeout}
}

func (e *ExecSink) Send(a Alarm) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Command,
		a.Message,
		a.PIDOrTS,
		a.State.String(),
		strconv.FormatInt(a.Bitrate, 10),
		strconv.FormatInt(a.MinBitrate, 10),
		strconv.FormatInt(a.MaxBitrate, 10),
		strconv.FormatInt(a.NetBitrate, 10),
	)
	return cmd.Run()
}

// Package report defines the narrow diagnostic-sink contract plugins and the
// restart protocol use to emit messages, and a log/slog-backed implementation.
//
// The original TSDuck Report is a full class hierarchy (console report, file
// report, delegating report, ...) with verbosity levels, formatting, and
// process-wide redirection. That machinery is out of scope here (§1); what
// the pipeline core actually needs is a narrow contract a plugin's report
// pointer can be swapped against at restart time (§4.5) and restored after.
package report

import (
	"fmt"
	"log/slog"
)

// Sink is the narrow diagnostic contract a plugin or the restart protocol
// writes to. It mirrors four of the severities TSDuck's Report exposes
// (debug/info/warning/error; there is no verbose level), and like that Report interface each
// method takes a printf-style format string rather than slog-style
// key-value pairs: callers here are composing one human-readable message
// out of changing values (stage names, packet counts, argv slices), not
// indexing on structured fields, so printf formatting is the better fit
// for this one narrow interface even though the rest of the ambient stack
// uses log/slog's structured style directly.
type Sink interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
}

// Slog adapts a *slog.Logger to the Sink contract, formatting each message
// with fmt.Sprintf before handing it to the logger as a single "msg" value.
// There is no "warning" level in log/slog, so Warning logs at
// slog.LevelWarn.
type Slog struct {
	Logger *slog.Logger
}

// NewSlog wraps logger as a Sink. A nil logger falls back to slog.Default().
func NewSlog(logger *slog.Logger) Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return Slog{Logger: logger}
}

func (s Slog) Debug(format string, args ...any) { s.Logger.Debug(fmt.Sprintf(format, args...)) }
func (s Slog) Info(format string, args ...any)  { s.Logger.Info(fmt.Sprintf(format, args...)) }
func (s Slog) Warning(format string, args ...any) {
	s.Logger.Warn(fmt.Sprintf(format, args...))
}
func (s Slog) Error(format string, args ...any) { s.Logger.Error(fmt.Sprintf(format, args...)) }

// Discard is a Sink that drops everything. Useful as a zero-value default
// for plugins constructed outside of a pipeline (e.g. in unit tests).
type Discard struct{}

func (Discard) Debug(string, ...any)   {}
func (Discard) Info(string, ...any)    {}
func (Discard) Warning(string, ...any) {}
func (Discard) Error(string, ...any)   {}

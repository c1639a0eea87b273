// Package registry maps a config.StageConfig's plugin name to a concrete
// plugin instance, configured from its argument vector. It exists only to
// wire cmd/tsp's static set of reference plugins together; a deployment
// with more plugins would extend the switch in Build, the same way the
// original tsp process resolves a plugin name against its shared-library
// search path (out of scope here, spec §1).
package registry

import (
	"fmt"

	"github.com/willdelstrother/tsduck/internal/alarm"
	"github.com/willdelstrother/tsduck/internal/config"
	"github.com/willdelstrother/tsduck/internal/plugin"
	"github.com/willdelstrother/tsduck/plugins/bitratemonitor"
	"github.com/willdelstrother/tsduck/plugins/count"
	"github.com/willdelstrother/tsduck/plugins/generator"
	"github.com/willdelstrother/tsduck/plugins/passthrough"
)

// Build constructs the plugin instance stage.Plugin names, configured with
// stage.Args via ResetContext, then GetOptions. alarmSink is threaded into bitratemonitor
// instances only; every other reference plugin ignores it.
func Build(stage config.StageConfig, alarmSink alarm.Sink) (plugin.Lifecycle, error) {
	var p plugin.Lifecycle

	switch stage.Plugin {
	case "generator":
		p = generator.New(0)
	case "passthrough":
		p = passthrough.New()
	case "count":
		p = count.New()
	case "bitratemonitor":
		p = bitratemonitor.New(bitratemonitor.Options{AlarmSink: alarmSink})
	default:
		return nil, fmt.Errorf("registry: unknown plugin %q (stage %q)", stage.Plugin, stage.Name)
	}

	if err := p.ResetContext(stage.Args); err != nil {
		return nil, fmt.Errorf("registry: stage %q: configure %q: %w", stage.Name, stage.Plugin, err)
	}
	if err := p.GetOptions(); err != nil {
		return nil, fmt.Errorf("registry: stage %q: options for %q: %w", stage.Name, stage.Plugin, err)
	}
	return p, nil
}

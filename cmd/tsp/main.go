// Command tsp runs a transport-stream plugin pipeline built from a YAML
// configuration file: it resolves each stage's plugin by name (internal/registry),
// wires alarm delivery and Prometheus metrics, starts the pipeline, and serves
// restart requests on the control channel (internal/control) until the input
// is exhausted or a shutdown signal arrives.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	tsp "github.com/willdelstrother/tsduck"
	"github.com/willdelstrother/tsduck/internal/alarm"
	"github.com/willdelstrother/tsduck/internal/config"
	"github.com/willdelstrother/tsduck/internal/control"
	"github.com/willdelstrother/tsduck/internal/metrics"
	"github.com/willdelstrother/tsduck/internal/registry"
	"github.com/willdelstrother/tsduck/internal/report"
)

func main() {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:   "tsp",
		Short: "Run a transport-stream plugin pipeline",
		Long: "tsp builds a ring of input/processor/output plugin stages from a YAML " +
			"configuration file and runs it until the input is exhausted or a shutdown " +
			"signal arrives, serving restart requests on a control channel in the meantime.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "tsp.yaml", "path to pipeline configuration file")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	sink := report.NewSlog(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("tsp: %w", err)
	}

	alarmSink := buildAlarmSink(cfg.Alarm, sink)

	specs := make([]tsp.StageSpec, len(cfg.Stages))
	for i, stageCfg := range cfg.Stages {
		p, err := registry.Build(stageCfg, alarmSink)
		if err != nil {
			return fmt.Errorf("tsp: %w", err)
		}
		specs[i] = tsp.StageSpec{
			Name:          stageCfg.Name,
			Kind:          stageKind(stageCfg.Kind),
			Plugin:        p,
			MinPacketCnt:  stageCfg.MinPacketCnt,
			PacketTimeout: stageCfg.PacketTimeout,
		}
	}

	opts := []tsp.Option{tsp.WithReportSink(sink)}
	if cfg.Metrics.ListenAddr != "" {
		reg := prometheus.NewRegistry()
		m := metrics.NewRegistry(reg, cfg.Metrics.Namespace)
		opts = append(opts, tsp.WithEventHandler(metricsEventHandler(m)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics endpoint listening", "addr", cfg.Metrics.ListenAddr)
	}

	pipeline, err := tsp.New(cfg.Buffer.Capacity, specs, opts...)
	if err != nil {
		return fmt.Errorf("tsp: %w", err)
	}

	if cfg.Control.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.Control.ListenAddr)
		if err != nil {
			return fmt.Errorf("tsp: listen on control address %s: %w", cfg.Control.ListenAddr, err)
		}
		controlServer := control.NewServer(pipeline, sink)
		go func() {
			if err := controlServer.Serve(ln); err != nil {
				logger.Info("control server stopped", "error", err)
			}
		}()
		logger.Info("control channel listening", "addr", cfg.Control.ListenAddr)
	}

	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("tsp: %w", err)
	}
	logger.Info("pipeline started", "stages", len(specs), "buffer_capacity", cfg.Buffer.Capacity)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		pipeline.JoinPipeline()
		close(done)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal, aborting pipeline", "signal", sig.String())
		pipeline.AbortPipeline()
		<-done
	case <-done:
		logger.Info("pipeline ended (input exhausted)")
	}

	return nil
}

func stageKind(kind string) tsp.Kind {
	switch kind {
	case "input":
		return tsp.Input
	case "output":
		return tsp.Output
	default:
		return tsp.Processor
	}
}

// metricsEventHandler folds stage lifecycle events into the Prometheus
// registry. Packet/bitrate throughput is only known at the point a stage
// stops (the ring signals no per-passPackets event, see
// worker.RunInput/Processor/Output), so PacketsProcessed is set once per
// stage lifetime rather than incrementally. Restart and abort events are
// signaled directly by Pipeline.RestartStage/AbortPipeline.
func metricsEventHandler(m *metrics.Registry) tsp.EventHandler {
	return func(ctx tsp.PluginEventContext) {
		switch ctx.Code {
		case tsp.EventStageStopped:
			m.ObservePassPackets(ctx.StageName, int(ctx.LocalCount), ctx.Bitrate)
		case tsp.EventStageRestarted:
			m.ObserveRestart(ctx.StageName, ctx.Outcome)
		case tsp.EventStageAborting:
			m.SetAborting(ctx.StageName, true)
		}
	}
}

func buildAlarmSink(cfg config.AlarmConfig, sink report.Sink) alarm.Sink {
	var sinks alarm.Multi
	if cfg.Command != "" {
		sinks = append(sinks, alarm.NewExecSink(cfg.Command, 5*time.Second))
	}
	if cfg.MQTT != nil {
		mqttOpts := mqtt.NewClientOptions().AddBroker(cfg.MQTT.Broker)
		client := mqtt.NewClient(mqttOpts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			sink.Error("alarm: mqtt connect to %s failed: %v", cfg.MQTT.Broker, token.Error())
		} else {
			sinks = append(sinks, alarm.NewMQTTSink(client, cfg.MQTT.Topic))
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

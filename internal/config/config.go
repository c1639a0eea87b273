// Package config implements pipeline configuration loading: buffer
// capacity, per-stage packet timeouts, plugin chain, and the restart
// control channel's listen address, following the teacher's own
// config.Load shape (a single struct loaded once from YAML, validated
// before use).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete pipeline configuration.
type Config struct {
	Buffer  BufferConfig  `yaml:"buffer"`
	Stages  []StageConfig `yaml:"stages"`
	Control ControlConfig `yaml:"control"`
	Alarm   AlarmConfig   `yaml:"alarm"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BufferConfig sets the shared ring buffer's capacity.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// StageConfig describes one plugin in chain order.
type StageConfig struct {
	Name          string        `yaml:"name"`
	Kind          string        `yaml:"kind"` // "input" | "processor" | "output"
	Plugin        string        `yaml:"plugin"`
	Args          []string      `yaml:"args"`
	PacketTimeout time.Duration `yaml:"packet_timeout"`
	MinPacketCnt  int           `yaml:"min_packet_count"`
}

// ControlConfig configures the restart control channel server.
type ControlConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AlarmConfig configures the bitrate monitor's alarm delivery.
type AlarmConfig struct {
	Command  string         `yaml:"command"`
	MQTT     *MQTTAlarmConfig `yaml:"mqtt,omitempty"`
}

// MQTTAlarmConfig configures the MQTT alarm sink.
type MQTTAlarmConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

// Load reads and parses a YAML configuration file at path, then validates
// it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks cfg for the minimum shape a pipeline can be built from,
// filling in defaults where the spec allows it (spec §2: N >= 3 stages).
func Validate(cfg *Config) error {
	if cfg.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be > 0")
	}
	if len(cfg.Stages) < 3 {
		return fmt.Errorf("pipeline requires at least 3 stages (input, processor, output), got %d", len(cfg.Stages))
	}
	if cfg.Stages[0].Kind != "input" {
		return fmt.Errorf("stages[0] must be kind=input, got %q", cfg.Stages[0].Kind)
	}
	if cfg.Stages[len(cfg.Stages)-1].Kind != "output" {
		return fmt.Errorf("last stage must be kind=output, got %q", cfg.Stages[len(cfg.Stages)-1].Kind)
	}
	for i, s := range cfg.Stages[1 : len(cfg.Stages)-1] {
		if s.Kind != "processor" {
			return fmt.Errorf("stages[%d] must be kind=processor, got %q", i+1, s.Kind)
		}
	}
	for i := range cfg.Stages {
		if cfg.Stages[i].MinPacketCnt <= 0 {
			cfg.Stages[i].MinPacketCnt = 1
		}
	}
	if cfg.Control.ListenAddr == "" {
		cfg.Control.ListenAddr = "127.0.0.1:4190"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "tsp"
	}
	return nil
}

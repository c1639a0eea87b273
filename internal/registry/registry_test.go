package registry

import (
	"testing"

	"github.com/willdelstrother/tsduck/internal/config"
	"github.com/willdelstrother/tsduck/plugins/bitratemonitor"
	"github.com/willdelstrother/tsduck/plugins/count"
	"github.com/willdelstrother/tsduck/plugins/generator"
	"github.com/willdelstrother/tsduck/plugins/passthrough"
)

func TestBuildKnownPlugins(t *testing.T) {
	cases := []struct {
		name   string
		stage  config.StageConfig
		assert func(t *testing.T, p interface{})
	}{
		{
			name:  "generator",
			stage: config.StageConfig{Name: "in", Plugin: "generator", Args: []string{"--count", "42"}},
			assert: func(t *testing.T, p interface{}) {
				gen, ok := p.(*generator.Plugin)
				if !ok {
					t.Fatalf("got %T, want *generator.Plugin", p)
				}
				if gen.Count != 42 {
					t.Fatalf("Count = %d, want 42", gen.Count)
				}
			},
		},
		{
			name:  "passthrough",
			stage: config.StageConfig{Name: "proc", Plugin: "passthrough"},
			assert: func(t *testing.T, p interface{}) {
				if _, ok := p.(*passthrough.Plugin); !ok {
					t.Fatalf("got %T, want *passthrough.Plugin", p)
				}
			},
		},
		{
			name:  "count",
			stage: config.StageConfig{Name: "out", Plugin: "count"},
			assert: func(t *testing.T, p interface{}) {
				if _, ok := p.(*count.Plugin); !ok {
					t.Fatalf("got %T, want *count.Plugin", p)
				}
			},
		},
		{
			name:  "bitratemonitor",
			stage: config.StageConfig{Name: "mon", Plugin: "bitratemonitor", Args: []string{"--min", "1000", "--max", "2000"}},
			assert: func(t *testing.T, p interface{}) {
				if _, ok := p.(*bitratemonitor.Plugin); !ok {
					t.Fatalf("got %T, want *bitratemonitor.Plugin", p)
				}
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := Build(c.stage, nil)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			c.assert(t, p)
		})
	}
}

func TestBuildUnknownPluginFails(t *testing.T) {
	_, err := Build(config.StageConfig{Name: "mystery", Plugin: "does-not-exist"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown plugin name")
	}
}

func TestBuildPropagatesConfigureError(t *testing.T) {
	_, err := Build(config.StageConfig{Name: "mon", Plugin: "bitratemonitor", Args: []string{"--unknown-flag"}}, nil)
	if err == nil {
		t.Fatal("expected Build to surface the plugin's Analyze error")
	}
}

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/pingmill/internal/config"
)

func writeConfigFile(t *testing.T, settings map[string]interface{}) string {
	t.Helper()
	data, err := yaml.Marshal(settings)
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}
	path := filepath.Join(t.TempDir(), "pingmill.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"eth0", "10.0.0.2:9000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Interface != "eth0" || cfg.Target != "10.0.0.2:9000" {
		t.Errorf("positionals: interface=%q target=%q", cfg.Interface, cfg.Target)
	}
	if cfg.Windows != 5 {
		t.Errorf("windows = %d, want 5", cfg.Windows)
	}
	if cfg.Duration != 60*time.Second {
		t.Errorf("duration = %s, want 1m", cfg.Duration)
	}
	if cfg.StatsQlen != 1024 {
		t.Errorf("stats_qlen = %d, want 1024", cfg.StatsQlen)
	}
	if cfg.Workers != 1 {
		t.Errorf("workers = %d, want 1", cfg.Workers)
	}
	if cfg.HTTPListen != "0.0.0.0:42024" {
		t.Errorf("http_listen = %q", cfg.HTTPListen)
	}
	if cfg.Waterfall != "ok_waterfall.png" || cfg.TraceFile != "ok_trace.txt" {
		t.Errorf("artifacts: waterfall=%q trace=%q", cfg.Waterfall, cfg.TraceFile)
	}
	if cfg.DrainTimeout != 5*time.Second {
		t.Errorf("drain_timeout = %s", cfg.DrainTimeout)
	}
	if cfg.Tracing.ServiceName != "pingmill" || cfg.Tracing.Enabled() {
		t.Errorf("tracing defaults: %+v", cfg.Tracing)
	}
	if cfg.Backend() != config.BackendStack {
		t.Errorf("default backend = %s, want stack", cfg.Backend())
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{
		"--windows", "3",
		"-d", "5s",
		"-w", "4",
		"-r", "250",
		"--noop",
		"--json-output",
		"--http-listen", "",
		"--otlp-endpoint", "localhost:4317",
		"--otlp-insecure",
		"eth1", "192.168.1.9:5001",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Windows != 3 || cfg.Duration != 5*time.Second || cfg.Workers != 4 || cfg.Rate != 250 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.Noop || !cfg.JSONOutput {
		t.Errorf("bool flags not applied: noop=%v json=%v", cfg.Noop, cfg.JSONOutput)
	}
	if cfg.HTTPListen != "" {
		t.Errorf("http_listen = %q, want disabled", cfg.HTTPListen)
	}
	if cfg.Interface != "eth1" || cfg.Target != "192.168.1.9:5001" {
		t.Errorf("positionals after flags: interface=%q target=%q", cfg.Interface, cfg.Target)
	}
	if !cfg.Tracing.Enabled() || !cfg.Tracing.Insecure {
		t.Errorf("tracing flags not applied: %+v", cfg.Tracing)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"interface":  "eth2",
		"target":     "10.1.0.2:9000",
		"ip":         "10.1.0.5/24",
		"windows":    7,
		"duration":   30, // bare numbers are seconds
		"stats_qlen": 512,
		"workers":    2,
		"rate":       1000,
		"waterfall":  "out.png",
		"trace":      "out.txt",
		"tracing": map[string]interface{}{
			"endpoint":     "http://otel:4318",
			"service_name": "pingmill-lab",
			"insecure":     true,
		},
	})

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Interface != "eth2" || cfg.Target != "10.1.0.2:9000" || cfg.SourceCIDR != "10.1.0.5/24" {
		t.Errorf("addresses not read: %+v", cfg)
	}
	if cfg.Windows != 7 || cfg.StatsQlen != 512 || cfg.Workers != 2 || cfg.Rate != 1000 {
		t.Errorf("numbers not read: %+v", cfg)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("duration = %s, want 30s", cfg.Duration)
	}
	if cfg.Waterfall != "out.png" || cfg.TraceFile != "out.txt" {
		t.Errorf("artifacts not read: waterfall=%q trace=%q", cfg.Waterfall, cfg.TraceFile)
	}
	if cfg.Tracing.Endpoint != "http://otel:4318" || cfg.Tracing.ServiceName != "pingmill-lab" || !cfg.Tracing.Insecure {
		t.Errorf("tracing section not read: %+v", cfg.Tracing)
	}
}

func TestLoadDurationString(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"duration":      "1m30s",
		"drain_timeout": "10s",
	})
	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Duration != 90*time.Second {
		t.Errorf("duration = %s, want 1m30s", cfg.Duration)
	}
	if cfg.DrainTimeout != 10*time.Second {
		t.Errorf("drain_timeout = %s, want 10s", cfg.DrainTimeout)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"windows": 9,
		"workers": 8,
	})
	cfg, err := config.NewLoader().Load([]string{"--config", path, "--windows", "2"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Windows != 2 {
		t.Errorf("windows = %d, flag should win over file", cfg.Windows)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers = %d, file value should survive", cfg.Workers)
	}
}

func TestLoadHelp(t *testing.T) {
	if _, err := config.NewLoader().Load(nil); !errors.Is(err, config.ErrHelpRequested) {
		t.Errorf("no args: err = %v, want help", err)
	}
	if _, err := config.NewLoader().Load([]string{"--help"}); !errors.Is(err, config.ErrHelpRequested) {
		t.Errorf("--help: err = %v, want help", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--config", "/nonexistent/pingmill.yaml"}); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

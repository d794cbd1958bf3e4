package config_test

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pingmill/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Target:     "10.0.0.2:9000",
		SourceCIDR: "10.0.0.5/24",
		Windows:    5,
		Duration:   time.Minute,
		StatsQlen:  1024,
		Workers:    1,
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.TargetAddr(); got != netip.MustParseAddrPort("10.0.0.2:9000") {
		t.Errorf("target = %s", got)
	}
	if got := cfg.SourcePrefix(); got != netip.MustParsePrefix("10.0.0.5/24") {
		t.Errorf("source = %s", got)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero windows", func(c *config.Config) { c.Windows = 0 }, "windows"},
		{"zero duration", func(c *config.Config) { c.Duration = 0 }, "duration"},
		{"zero qlen", func(c *config.Config) { c.StatsQlen = 0 }, "stats-qlen"},
		{"zero workers", func(c *config.Config) { c.Workers = 0 }, "workers"},
		{"negative rate", func(c *config.Config) { c.Rate = -1 }, "rate"},
		{"noop and stdnet", func(c *config.Config) { c.Noop, c.StdNet = true, true }, "mutually exclusive"},
		{"bad target", func(c *config.Config) { c.Target = "10.0.0.2" }, "target"},
		{"bad cidr", func(c *config.Config) { c.SourceCIDR = "not-a-cidr" }, "CIDR"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Errorf("error %q does not mention %q", err, c.want)
			}
		})
	}
}

func TestBackendSelection(t *testing.T) {
	cases := []struct {
		noop, stdnet bool
		want         config.BackendKind
	}{
		{false, false, config.BackendStack},
		{false, true, config.BackendSocket},
		{true, false, config.BackendNoop},
	}
	for _, c := range cases {
		cfg := &config.Config{Noop: c.noop, StdNet: c.stdnet}
		if got := cfg.Backend(); got != c.want {
			t.Errorf("noop=%v stdnet=%v: backend = %s, want %s", c.noop, c.stdnet, got, c.want)
		}
	}
}

func TestNoopSkipsNetworkResolution(t *testing.T) {
	cfg := &config.Config{
		Noop:      true,
		Windows:   1,
		Duration:  time.Second,
		StatsQlen: 16,
		Workers:   1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("noop run should not resolve addresses: %v", err)
	}
}

func TestGatewayDefaultsToFirstHost(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.GatewayAddr(); got != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("gateway = %s, want 10.0.0.1", got)
	}
}

func TestGatewayExplicit(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway = "10.0.0.254"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.GatewayAddr(); got != netip.MustParseAddr("10.0.0.254") {
		t.Errorf("gateway = %s, want 10.0.0.254", got)
	}
}

func TestGatewayOutsideNetworkRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway = "192.168.1.1"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "outside source network") {
		t.Fatalf("expected outside-network error, got %v", err)
	}
}

func TestTracingEnabled(t *testing.T) {
	if (config.TracingConfig{}).Enabled() {
		t.Error("tracing enabled without an endpoint")
	}
	if !(config.TracingConfig{Endpoint: "localhost:4317"}).Enabled() {
		t.Error("tracing disabled despite an endpoint")
	}
}

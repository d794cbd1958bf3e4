// Package config provides configuration loading and parsing for pingmill.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// BackendKind selects which transport implementation workers are bound to.
// The choice is made once at start-up and never changes mid-run.
type BackendKind string

const (
	BackendStack  BackendKind = "stack"  // user-space network stack
	BackendSocket BackendKind = "socket" // host UDP socket
	BackendNoop   BackendKind = "noop"   // no I/O, measurement-path baseline
)

// Config holds the fully merged run configuration: config file values
// overridden by command-line flags, then resolved against the host's
// interfaces.
type Config struct {
	Interface    string        `mapstructure:"interface"`
	Target       string        `mapstructure:"target"`
	SourceCIDR   string        `mapstructure:"ip"`
	Gateway      string        `mapstructure:"gateway"`
	Windows      int           `mapstructure:"windows"`
	Duration     time.Duration `mapstructure:"duration"`
	StatsQlen    int           `mapstructure:"stats_qlen"`
	Workers      int           `mapstructure:"workers"`
	Noop         bool          `mapstructure:"noop"`
	StdNet       bool          `mapstructure:"stdnet"`
	Rate         int           `mapstructure:"rate"`
	HTTPListen   string        `mapstructure:"http_listen"`
	Waterfall    string        `mapstructure:"waterfall"`
	TraceFile    string        `mapstructure:"trace_file"`
	JSONOutput   bool          `mapstructure:"json_output"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	Tracing      TracingConfig `mapstructure:"tracing"`
	ConfigFile   string        `mapstructure:"-"`

	target  netip.AddrPort
	source  netip.Prefix
	gateway netip.Addr
}

// TracingConfig configures the optional OTLP span exporter.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool { return t.Endpoint != "" }

// Backend returns the transport variant this configuration selects. Absent
// both flags, probes go through the user-space stack.
func (c *Config) Backend() BackendKind {
	switch {
	case c.Noop:
		return BackendNoop
	case c.StdNet:
		return BackendSocket
	default:
		return BackendStack
	}
}

// TargetAddr returns the resolved probe destination.
func (c *Config) TargetAddr() netip.AddrPort { return c.target }

// SourcePrefix returns the resolved local address and on-link network.
func (c *Config) SourcePrefix() netip.Prefix { return c.source }

// GatewayAddr returns the resolved default gateway.
func (c *Config) GatewayAddr() netip.Addr { return c.gateway }

// Validate checks ranges and resolves addresses. All failures here are fatal
// at start-up, before any worker is created.
func (c *Config) Validate() error {
	if c.Windows <= 0 {
		return fmt.Errorf("windows must be positive, got %d", c.Windows)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	if c.StatsQlen <= 0 {
		return fmt.Errorf("stats-qlen must be positive, got %d", c.StatsQlen)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must not be negative, got %d", c.Rate)
	}
	if c.Noop && c.StdNet {
		return fmt.Errorf("--noop and --stdnet are mutually exclusive")
	}

	if c.Backend() == BackendNoop {
		return nil
	}

	target, err := netip.ParseAddrPort(c.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: must be <ip>:<port>", c.Target)
	}
	c.target = target

	if err := c.resolveSource(); err != nil {
		return err
	}
	return c.resolveGateway()
}

// resolveSource fills the source prefix, either from --ip or from the first
// IPv4 address configured on the interface.
func (c *Config) resolveSource() error {
	if c.SourceCIDR != "" {
		prefix, err := netip.ParsePrefix(c.SourceCIDR)
		if err != nil || !prefix.Addr().Is4() {
			return fmt.Errorf("invalid CIDR %q", c.SourceCIDR)
		}
		c.source = prefix
		return nil
	}

	if c.Interface == "" {
		return fmt.Errorf("an interface name is required")
	}
	ifc, err := net.InterfaceByName(c.Interface)
	if err != nil {
		return fmt.Errorf("found no interface named %s", c.Interface)
	}
	addrs, err := ifc.Addrs()
	if err != nil {
		return fmt.Errorf("interface %s: %w", c.Interface, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		ones, _ := ipnet.Mask.Size()
		c.source = netip.PrefixFrom(netip.AddrFrom4([4]byte(ip4)), ones)
		return nil
	}
	return fmt.Errorf("no IPv4 address to use on interface %s", c.Interface)
}

// resolveGateway fills the gateway, defaulting to the first host address in
// the source network.
func (c *Config) resolveGateway() error {
	if c.Gateway != "" {
		gw, err := netip.ParseAddr(c.Gateway)
		if err != nil || !gw.Is4() {
			return fmt.Errorf("unable to parse gateway ip %q", c.Gateway)
		}
		if !c.source.Contains(gw) {
			return fmt.Errorf("gateway %s is outside source network %s", gw, c.source.Masked())
		}
		c.gateway = gw
		return nil
	}

	first := c.source.Masked().Addr().Next()
	if !c.source.Contains(first) {
		return fmt.Errorf("could not guess a default gateway inside %s", c.source.Masked())
	}
	c.gateway = first
	return nil
}

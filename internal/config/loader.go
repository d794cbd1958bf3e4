package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a
// Config. File values apply first; flags and positional arguments override.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Windows:      5,
		Duration:     60 * time.Second,
		StatsQlen:    1024,
		Workers:      1,
		DrainTimeout: 5 * time.Second,
		HTTPListen:   "0.0.0.0:42024",
		Waterfall:    "ok_waterfall.png",
		TraceFile:    "ok_trace.txt",
		ConfigFile:   configPath,
		Tracing:      TracingConfig{ServiceName: "pingmill"},
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "interface", "iface"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("interface: %w", err)
		}
		cfg.Interface = val
	}
	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.Target = val
	}
	if raw, ok := lookupSetting(settings, "ip", "source_cidr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("ip: %w", err)
		}
		cfg.SourceCIDR = val
	}
	if raw, ok := lookupSetting(settings, "gateway"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		cfg.Gateway = val
	}
	if raw, ok := lookupSetting(settings, "windows"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("windows: %w", err)
		}
		cfg.Windows = val
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = val
	}
	if raw, ok := lookupSetting(settings, "stats_qlen", "stats-qlen"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("stats_qlen: %w", err)
		}
		cfg.StatsQlen = val
	}
	if raw, ok := lookupSetting(settings, "workers", "threads"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		cfg.Workers = val
	}
	if raw, ok := lookupSetting(settings, "noop"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("noop: %w", err)
		}
		cfg.Noop = val
	}
	if raw, ok := lookupSetting(settings, "stdnet"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("stdnet: %w", err)
		}
		cfg.StdNet = val
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}
	if raw, ok := lookupSetting(settings, "drain_timeout", "drain-timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("drain_timeout: %w", err)
		}
		cfg.DrainTimeout = val
	}
	if raw, ok := lookupSetting(settings, "http_listen", "http-listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("http_listen: %w", err)
		}
		cfg.HTTPListen = val
	}
	if raw, ok := lookupSetting(settings, "waterfall"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("waterfall: %w", err)
		}
		cfg.Waterfall = val
	}
	if raw, ok := lookupSetting(settings, "trace", "trace_file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		cfg.TraceFile = val
	}
	if raw, ok := lookupSetting(settings, "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		if raw, ok := lookupSetting(section, "endpoint"); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("tracing.endpoint: %w", err)
			}
			cfg.Tracing.Endpoint = val
		}
		if raw, ok := lookupSetting(section, "service_name", "service-name"); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("tracing.service_name: %w", err)
			}
			cfg.Tracing.ServiceName = val
		}
		if raw, ok := lookupSetting(section, "insecure"); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("tracing.insecure: %w", err)
			}
			cfg.Tracing.Insecure = val
		}
	}
	return nil
}

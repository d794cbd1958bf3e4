package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pingmill [flags] <iface> <target ip:port>",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Network flags
	flags.String("ip", "", "Local IP and prefix to send from, in CIDR form. Defaults to the first IPv4 on the given interface")
	flags.String("gateway", "", "Default gateway for off-link destinations; must be inside the --ip network. Defaults to the first address in that network")
	flags.Bool("noop", false, "Skip all I/O; measures the timing/aggregation overhead itself")
	flags.Bool("stdnet", false, "Probe through the host UDP stack instead of the user-space stack")

	// Measurement flags
	flags.Int("windows", 5, "Number of integration windows per run")
	flags.DurationP("duration", "d", 60*time.Second, "Length of one integration window")
	flags.Int("stats-qlen", 1024, "Capacity of the sample channel")
	flags.IntP("workers", "w", 1, "Number of concurrent probe workers")
	flags.IntP("rate", "r", 0, "Probe issue rate limit per worker in probes/sec (0 means unlimited)")
	flags.Duration("drain-timeout", 5*time.Second, "Max time to wait for workers to stop after the last window")

	// Output flags
	flags.String("http-listen", "0.0.0.0:42024", "Status endpoint listen address (empty disables)")
	flags.String("waterfall", "ok_waterfall.png", "Latency waterfall PNG output path (empty disables)")
	flags.String("trace", "ok_trace.txt", "Raw sample trace output path (empty disables)")
	flags.Bool("json-output", false, "Emit JSON formatted window reports")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("otlp-endpoint", "", "OTLP endpoint for per-window spans (empty disables tracing)")
	flags.String("otlp-service-name", "pingmill", "Service name reported on exported spans")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if args := fs.Args(); len(args) > 0 {
		cfg.Interface = args[0]
		if len(args) > 1 {
			cfg.Target = args[1]
		}
	}
	if fs.Changed("ip") {
		val, err := fs.GetString("ip")
		if err != nil {
			return err
		}
		cfg.SourceCIDR = val
	}
	if fs.Changed("gateway") {
		val, err := fs.GetString("gateway")
		if err != nil {
			return err
		}
		cfg.Gateway = val
	}
	if fs.Changed("noop") {
		val, err := fs.GetBool("noop")
		if err != nil {
			return err
		}
		cfg.Noop = val
	}
	if fs.Changed("stdnet") {
		val, err := fs.GetBool("stdnet")
		if err != nil {
			return err
		}
		cfg.StdNet = val
	}
	if fs.Changed("windows") {
		val, err := fs.GetInt("windows")
		if err != nil {
			return err
		}
		cfg.Windows = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("stats-qlen") {
		val, err := fs.GetInt("stats-qlen")
		if err != nil {
			return err
		}
		cfg.StatsQlen = val
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("drain-timeout") {
		val, err := fs.GetDuration("drain-timeout")
		if err != nil {
			return err
		}
		cfg.DrainTimeout = val
	}
	if fs.Changed("http-listen") {
		val, err := fs.GetString("http-listen")
		if err != nil {
			return err
		}
		cfg.HTTPListen = val
	}
	if fs.Changed("waterfall") {
		val, err := fs.GetString("waterfall")
		if err != nil {
			return err
		}
		cfg.Waterfall = val
	}
	if fs.Changed("trace") {
		val, err := fs.GetString("trace")
		if err != nil {
			return err
		}
		cfg.TraceFile = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("otlp-endpoint") {
		val, err := fs.GetString("otlp-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = val
	}
	if fs.Changed("otlp-service-name") {
		val, err := fs.GetString("otlp-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = val
	}
	if fs.Changed("otlp-insecure") {
		val, err := fs.GetBool("otlp-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	return nil
}

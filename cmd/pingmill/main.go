package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/torosent/pingmill/internal/config"
	"github.com/torosent/pingmill/internal/output"
	"github.com/torosent/pingmill/internal/runner"
	"github.com/torosent/pingmill/internal/stats"
	"github.com/torosent/pingmill/internal/tracing"
	"github.com/torosent/pingmill/internal/transport"
	"github.com/torosent/pingmill/internal/usernet"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	receiver, err := stats.NewReceiver(stats.Options{
		Windows:        cfg.Windows,
		WindowDuration: cfg.Duration,
		Capacity:       cfg.StatsQlen,
		HTTPListen:     cfg.HTTPListen,
	})
	if err != nil {
		return err
	}
	receiver.AddInterest(stats.Count(stats.MetricOk))
	receiver.AddInterest(stats.Percentile(stats.MetricOk))
	if cfg.Waterfall != "" {
		receiver.AddInterest(stats.Waterfall(stats.MetricOk, cfg.Waterfall))
	}
	if cfg.TraceFile != "" {
		receiver.AddInterest(stats.Trace(stats.MetricOk, cfg.TraceFile))
	}

	workers, cleanup, err := buildWorkers(cfg, receiver)
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := output.NewReporter(os.Stdout, os.Stderr, cfg.JSONOutput)

	opts := runner.Options{
		Workers:      workers,
		Receiver:     receiver,
		Windows:      cfg.Windows,
		Reporter:     reporter,
		DrainTimeout: cfg.DrainTimeout,
	}
	if provider.Enabled() {
		opts.Tracer = provider.Tracer()
	}

	summary, err := runner.New(opts).Run(ctx)
	if err != nil {
		return err
	}
	reporter.Complete(summary)

	if summary.StoppedWorkers == len(workers) && summary.CombinedCount == 0 {
		return fmt.Errorf("all %d workers failed before producing a sample", len(workers))
	}
	return nil
}

// buildWorkers constructs one backend per worker for the configured
// transport variant. The returned cleanup releases the shared user-space
// stack when one was created.
func buildWorkers(cfg *config.Config, receiver *stats.Receiver) ([]*runner.Worker, func(), error) {
	cleanup := func() {}

	var stack *usernet.Stack
	if cfg.Backend() == config.BackendStack {
		dev, err := usernet.OpenDevice(cfg.Interface)
		if err != nil {
			return nil, cleanup, err
		}
		stack = usernet.NewStack()
		if err := stack.AddInterface(dev); err != nil {
			dev.Close()
			return nil, cleanup, err
		}
		if err := stack.AddIPv4(cfg.SourcePrefix()); err != nil {
			stack.Close()
			return nil, cleanup, err
		}
		defaultRoute := netip.MustParsePrefix("0.0.0.0/0")
		stack.RoutingTable().AddRoute(defaultRoute, cfg.GatewayAddr())
		cleanup = func() { _ = stack.Close() }
	}

	workers := make([]*runner.Worker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		var backend transport.Backend
		switch cfg.Backend() {
		case config.BackendNoop:
			backend = transport.NewNoop()
		case config.BackendSocket:
			sock, err := transport.NewSocket(cfg.SourcePrefix().Addr())
			if err != nil {
				return nil, cleanup, err
			}
			backend = sock
		case config.BackendStack:
			sock, err := stack.Bind(netip.AddrPortFrom(cfg.SourcePrefix().Addr(), 0))
			if err != nil {
				return nil, cleanup, err
			}
			backend = transport.NewStack(sock)
		}

		var limiter *rate.Limiter
		if cfg.Rate > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
		}

		workers = append(workers, &runner.Worker{
			ID:      i,
			Backend: backend,
			Dest:    cfg.TargetAddr(),
			Clock:   receiver.GetClocksource(),
			Sink:    receiver.GetSender(),
			Limiter: limiter,
		})
	}
	return workers, cleanup, nil
}

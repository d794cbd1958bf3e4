package runner

import (
	"context"
	"net/netip"

	"golang.org/x/time/rate"

	"github.com/torosent/pingmill/internal/clock"
	"github.com/torosent/pingmill/internal/stats"
	"github.com/torosent/pingmill/internal/transport"
)

// Worker drives one continuous stream of probe/measure cycles against its
// bound backend. Workers never talk to each other; their only output is the
// sample sink.
type Worker struct {
	ID      int
	Backend transport.Backend
	Dest    netip.AddrPort
	Clock   clock.Clocksource
	Sink    stats.Sender
	Limiter *rate.Limiter // optional probe pacing, nil means unlimited
}

// Run probes until ctx is cancelled or the backend fails. A transport error
// is returned so the harness can report the lost worker; a receiver shutdown
// is a clean stop and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.Limiter != nil {
			if err := w.Limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		t0 := w.Clock.Counter()
		if err := w.Backend.SendAndReceive(ctx, w.Dest); err != nil {
			if ctx.Err() != nil {
				// Shutdown closed the backend under us.
				return nil
			}
			return err
		}
		t1 := w.Clock.Counter()

		if err := w.Sink.Send(stats.Sample{Start: t0, Stop: t1, Metric: stats.MetricOk}); err != nil {
			return nil
		}
	}
}

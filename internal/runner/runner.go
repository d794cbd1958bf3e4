package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pingmill/internal/stats"
)

// State tracks the runner's lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateExporting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateExporting:
		return "exporting"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// WindowReport is handed to the reporter once per completed window.
type WindowReport struct {
	Index    int // zero-based window number
	Total    int // configured window count
	Rate     float64
	Snapshot stats.Snapshot
}

// Reporter receives progress events from the runner.
type Reporter interface {
	Window(w WindowReport)
	WorkerStopped(id int, err error)
	Exporting()
}

// Options configure the Runner.
type Options struct {
	Workers      []*Worker
	Receiver     *stats.Receiver
	Windows      int           // measurement windows per run
	Reporter     Reporter      // optional progress sink
	Tracer       trace.Tracer  // optional, one span per window
	DrainTimeout time.Duration // max wait for workers after the last window
}

func (o *Options) normalize() {
	if o.Windows <= 0 {
		o.Windows = 1
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
}

// Summary is the final result of a run.
type Summary struct {
	Windows        int    // windows actually completed
	CombinedCount  uint64 // cumulative sample count at the end
	StoppedWorkers int    // workers lost to transport errors
	Drained        bool   // all workers exited within the drain timeout
}

// Runner owns the measurement loop: it launches the workers, advances the
// receiver one window at a time, computes the instantaneous rate from the
// count delta, and finally drains the workers and exports artifacts.
type Runner struct {
	opt     Options
	state   atomic.Int32
	active  atomic.Int32
	stopped atomic.Int32
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// State reports the current lifecycle phase.
func (r *Runner) State() State { return State(r.state.Load()) }

// ActiveWorkers reports how many workers are still probing. It declines when
// a worker hits a transport error, making silent degradation observable.
func (r *Runner) ActiveWorkers() int { return int(r.active.Load()) }

// Run executes the configured number of windows and blocks until artifacts
// are exported. Cancelling ctx ends the run early but still drains and
// exports.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.state.Store(int32(StateRunning))

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range r.opt.Workers {
		r.active.Add(1)
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			defer r.active.Add(-1)
			if err := w.Run(workerCtx); err != nil {
				r.stopped.Add(1)
				if r.opt.Reporter != nil {
					r.opt.Reporter.WorkerStopped(w.ID, err)
				}
			}
		}(w)
	}

	cs := r.opt.Receiver.GetClocksource()
	var total uint64
	completed := 0
	for i := 0; i < r.opt.Windows; i++ {
		if ctx.Err() != nil {
			break
		}

		var span trace.Span
		if r.opt.Tracer != nil {
			_, span = r.opt.Tracer.Start(ctx, "window")
		}

		t0 := cs.Time()
		snap := r.opt.Receiver.RunOnce(ctx)
		t1 := cs.Time()

		delta := snap.CombinedCount - total
		total = snap.CombinedCount

		// Equal wall timestamps can happen on a cancelled window; report
		// zero instead of dividing.
		rps := 0.0
		if t1 > t0 {
			rps = float64(delta) / (float64(t1-t0) / 1e9)
		}
		completed++

		if span != nil {
			span.SetAttributes(
				attribute.Int("window.index", i),
				attribute.Float64("window.rate_rps", rps),
				attribute.Int64("window.count", int64(delta)),
				attribute.Int64("window.p50_ns", int64(snap.Percentiles["p50"])),
				attribute.Int64("window.p99_ns", int64(snap.Percentiles["p99"])),
			)
			span.End()
		}

		if r.opt.Reporter != nil {
			r.opt.Reporter.Window(WindowReport{
				Index:    i,
				Total:    r.opt.Windows,
				Rate:     rps,
				Snapshot: snap,
			})
		}
	}

	r.state.Store(int32(StateExporting))
	if r.opt.Reporter != nil {
		r.opt.Reporter.Exporting()
	}

	// Drain before export: stop issuing probes, unblock anything stuck in
	// send/receive or on a full channel, then wait for the workers.
	cancel()
	for _, w := range r.opt.Workers {
		_ = w.Backend.Close()
	}
	r.opt.Receiver.Close()
	drained := waitTimeout(&wg, r.opt.DrainTimeout)

	err := r.opt.Receiver.SaveFiles()

	r.state.Store(int32(StateDone))
	return Summary{
		Windows:        completed,
		CombinedCount:  total,
		StoppedWorkers: int(r.stopped.Load()),
		Drained:        drained,
	}, err
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

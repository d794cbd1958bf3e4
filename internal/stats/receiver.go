// Package stats ingests timestamped latency samples from many producers,
// buckets them into fixed-duration measurement windows, and reports combined
// counts and percentile snapshots. It also owns the optional distribution
// artifacts (waterfall, raw trace) and the HTTP status endpoint.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/pingmill/internal/clock"
)

// Percentile labels reported in window snapshots, in ascending order.
var PercentileLabels = []string{"p50", "p90", "p99", "p999", "p9999"}

var percentileQuantiles = map[string]float64{
	"p50":   50.0,
	"p90":   90.0,
	"p99":   99.0,
	"p999":  99.9,
	"p9999": 99.99,
}

// Options configure a Receiver.
type Options struct {
	Windows        int           // number of measurement windows per run
	WindowDuration time.Duration // wall time covered by one window
	Capacity       int           // sample channel depth
	HTTPListen     string        // status endpoint address ("" disables)
}

func (o *Options) normalize() {
	if o.Windows <= 0 {
		o.Windows = 1
	}
	if o.WindowDuration <= 0 {
		o.WindowDuration = time.Second
	}
	if o.Capacity <= 0 {
		o.Capacity = 1024
	}
}

// Snapshot is the read-only result of one completed window.
type Snapshot struct {
	Window        int               `json:"window"`
	CombinedCount uint64            `json:"combined_count"`
	Percentiles   map[string]uint64 `json:"percentiles,omitempty"` // label -> ns
}

// Receiver is the single consumer of the sample channel. One Receiver serves
// arbitrarily many senders; all aggregation state is guarded by one mutex
// because only RunOnce and the status endpoint ever touch it.
type Receiver struct {
	opt   Options
	runID ulid.ULID
	cs    clock.Clocksource

	queue     chan Sample
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	counted   map[Metric]bool
	counts    map[Metric]uint64
	percTag   map[Metric]bool
	window    *hdrhistogram.Histogram
	windowIdx int
	last      Snapshot
	waterfall *waterfallArtifact
	trace     *traceArtifact

	status *statusServer
}

// NewReceiver builds a receiver and, when configured, starts its status
// endpoint. The returned receiver owns the sample channel; hand Sender
// copies to producers via GetSender.
func NewReceiver(opt Options) (*Receiver, error) {
	opt.normalize()
	r := &Receiver{
		opt:     opt,
		runID:   ulid.Make(),
		cs:      clock.New(),
		queue:   make(chan Sample, opt.Capacity),
		done:    make(chan struct{}),
		counted: make(map[Metric]bool),
		counts:  make(map[Metric]uint64),
		percTag: make(map[Metric]bool),
		// Latencies from 1ns up to 60s with 3 significant figures.
		window: hdrhistogram.New(1, 60_000_000_000, 3),
	}
	if opt.HTTPListen != "" {
		status, err := newStatusServer(r, opt.HTTPListen)
		if err != nil {
			return nil, err
		}
		r.status = status
	}
	return r, nil
}

// RunID identifies this run; it is stamped into artifacts and status output.
func (r *Receiver) RunID() ulid.ULID { return r.runID }

// StatusAddr reports the bound status endpoint address, or "" when the
// endpoint is disabled.
func (r *Receiver) StatusAddr() string {
	if r.status == nil {
		return ""
	}
	return r.status.Addr()
}

// AddInterest registers what the receiver should track or export. Interests
// must be registered before the first window runs.
func (r *Receiver) AddInterest(i Interest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch i.kind {
	case interestCount:
		r.counted[i.metric] = true
	case interestPercentile:
		r.percTag[i.metric] = true
	case interestWaterfall:
		r.waterfall = newWaterfallArtifact(i.path)
	case interestTrace:
		r.trace = newTraceArtifact(i.path)
	}
}

// GetSender returns a producer handle for the sample channel.
func (r *Receiver) GetSender() Sender {
	return Sender{queue: r.queue, done: r.done}
}

// GetClocksource returns a copy of the shared clocksource.
func (r *Receiver) GetClocksource() clock.Clocksource { return r.cs }

// RunOnce drains samples into the current window until the window duration
// elapses (or ctx is cancelled), then closes the window and returns its
// snapshot. It must only be called from one goroutine.
func (r *Receiver) RunOnce(ctx context.Context) Snapshot {
	timer := time.NewTimer(r.opt.WindowDuration)
	defer timer.Stop()
	for {
		select {
		case s := <-r.queue:
			r.record(s)
		case <-timer.C:
			return r.closeWindow()
		case <-ctx.Done():
			return r.closeWindow()
		}
	}
}

func (r *Receiver) record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counted[s.Metric] {
		r.counts[s.Metric]++
	}
	lat := s.Latency()
	if r.percTag[s.Metric] {
		v := int64(lat)
		if v < r.window.LowestTrackableValue() {
			v = r.window.LowestTrackableValue()
		}
		if v > r.window.HighestTrackableValue() {
			v = r.window.HighestTrackableValue()
		}
		_ = r.window.RecordValue(v)
	}
	if r.waterfall != nil {
		r.waterfall.record(lat)
	}
	if r.trace != nil {
		r.trace.record(s)
	}
}

func (r *Receiver) closeWindow() Snapshot {
	r.mu.Lock()
	var combined uint64
	for _, c := range r.counts {
		combined += c
	}
	snap := Snapshot{Window: r.windowIdx, CombinedCount: combined}
	if r.window.TotalCount() > 0 {
		snap.Percentiles = make(map[string]uint64, len(PercentileLabels))
		for _, label := range PercentileLabels {
			snap.Percentiles[label] = uint64(r.window.ValueAtQuantile(percentileQuantiles[label]))
		}
	}
	r.window.Reset()
	if r.waterfall != nil {
		r.waterfall.closeRow()
	}
	r.windowIdx++
	r.last = snap
	status := r.status
	r.mu.Unlock()

	if status != nil {
		status.broadcast(snap)
	}
	return snap
}

// Pending reports how many samples are currently buffered on the channel.
func (r *Receiver) Pending() int { return len(r.queue) }

// SaveFiles persists all registered artifacts and stops the status endpoint.
func (r *Receiver) SaveFiles() error {
	r.mu.Lock()
	waterfall, trace := r.waterfall, r.trace
	r.mu.Unlock()

	if r.status != nil {
		r.status.shutdown()
	}
	if waterfall != nil {
		if err := waterfall.save(); err != nil {
			return err
		}
	}
	if trace != nil {
		if err := trace.save(r.runID); err != nil {
			return err
		}
	}
	return nil
}

// Close signals all senders that the receiver is gone. Sends after Close
// return ErrClosed.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Package output renders runtime reporting: one line per completed window
// with rate and latency percentiles, worker loss notices, and the final
// summary after artifact export.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/torosent/pingmill/internal/runner"
)

// Reporter writes human-readable (or JSON) progress. It is safe for
// concurrent use; worker loss notices can arrive while a window line is
// being written.
type Reporter struct {
	mu   sync.Mutex
	w    io.Writer
	errW io.Writer
	json bool

	rateColor *color.Color
	warnColor *color.Color
}

// NewReporter writes window lines to w and worker notices to errW. With
// jsonOut set, window lines become one JSON object per line.
func NewReporter(w, errW io.Writer, jsonOut bool) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if errW == nil {
		errW = io.Discard
	}
	return &Reporter{
		w:         w,
		errW:      errW,
		json:      jsonOut,
		rateColor: color.New(color.FgGreen),
		warnColor: color.New(color.FgYellow),
	}
}

type windowLine struct {
	Window        int               `json:"window"`
	Windows       int               `json:"windows"`
	RateRPS       float64           `json:"rate_rps"`
	CombinedCount uint64            `json:"combined_count"`
	Percentiles   map[string]uint64 `json:"percentiles,omitempty"`
}

// Window emits one report line for a completed window. Unavailable
// percentiles print as zero.
func (r *Reporter) Window(wr runner.WindowReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.json {
		_ = json.NewEncoder(r.w).Encode(windowLine{
			Window:        wr.Index + 1,
			Windows:       wr.Total,
			RateRPS:       wr.Rate,
			CombinedCount: wr.Snapshot.CombinedCount,
			Percentiles:   wr.Snapshot.Percentiles,
		})
		return
	}

	fmt.Fprintf(r.w, "window %d/%d rate: %s rps\n",
		wr.Index+1, wr.Total, r.rateColor.Sprintf("%.2f", wr.Rate))
	p := wr.Snapshot.Percentiles
	fmt.Fprintf(r.w, "latency: p50: %d ns p90: %d ns p99: %d ns p999: %d ns p9999: %d ns\n",
		p["p50"], p["p90"], p["p99"], p["p999"], p["p9999"])
}

// WorkerStopped reports a worker lost to a transport error.
func (r *Reporter) WorkerStopped(id int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnColor.Fprintf(r.errW, "worker %d stopped: %v\n", id, err)
}

// Exporting announces the artifact export phase.
func (r *Reporter) Exporting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.json {
		fmt.Fprintln(r.w, "saving files...")
	}
}

// Complete prints the final summary line.
func (r *Reporter) Complete(s runner.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.json {
		_ = json.NewEncoder(r.w).Encode(struct {
			Windows        int    `json:"windows"`
			CombinedCount  uint64 `json:"combined_count"`
			StoppedWorkers int    `json:"stopped_workers"`
			Drained        bool   `json:"drained"`
		}{s.Windows, s.CombinedCount, s.StoppedWorkers, s.Drained})
		return
	}

	fmt.Fprintf(r.w, "complete: %d windows, %d samples", s.Windows, s.CombinedCount)
	if s.StoppedWorkers > 0 {
		fmt.Fprintf(r.w, ", %d workers lost", s.StoppedWorkers)
	}
	if !s.Drained {
		fmt.Fprint(r.w, ", drain timed out")
	}
	fmt.Fprintln(r.w)
}

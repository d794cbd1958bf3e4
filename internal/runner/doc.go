// Package runner coordinates the benchmark: N worker goroutines issue probes
// through interchangeable transport backends and emit timestamped samples,
// while the runner advances the stats receiver one measurement window at a
// time and reports rate and latency percentiles per window.
//
// Concurrency model: N+1 units of execution, the workers plus the window
// loop on the calling goroutine. Workers share nothing with each other; the
// bounded sample channel is the only mutable state between producers and the
// receiver, and a full channel applies backpressure rather than dropping.
//
// Shutdown is cooperative. After the last window the runner cancels the
// worker context, closes every backend to unblock in-flight receives, closes
// the receiver side of the sample channel, and waits (bounded) for the
// workers before asking the receiver to export artifacts.
//
// A worker that hits a transport error stops and is reported through the
// Reporter; the run continues with the remaining workers and the decline is
// visible via ActiveWorkers.
package runner

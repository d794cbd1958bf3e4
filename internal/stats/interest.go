package stats

type interestKind int

const (
	interestCount interestKind = iota
	interestPercentile
	interestWaterfall
	interestTrace
)

// Interest declares one thing the receiver should track or export for a
// given metric. Construct values with Count, Percentile, Waterfall or Trace.
type Interest struct {
	kind   interestKind
	metric Metric
	path   string
}

// Count tracks the cumulative number of samples carrying the metric.
func Count(m Metric) Interest { return Interest{kind: interestCount, metric: m} }

// Percentile tracks the per-window latency distribution of the metric.
func Percentile(m Metric) Interest { return Interest{kind: interestPercentile, metric: m} }

// Waterfall exports a per-window latency heatmap PNG to path on SaveFiles.
func Waterfall(m Metric, path string) Interest {
	return Interest{kind: interestWaterfall, metric: m, path: path}
}

// Trace exports the raw sample stream as text to path on SaveFiles.
func Trace(m Metric, path string) Interest {
	return Interest{kind: interestTrace, metric: m, path: path}
}

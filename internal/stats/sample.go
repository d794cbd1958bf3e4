package stats

import "errors"

// Metric identifies the category of a measured operation. New categories can
// be added without touching the worker loop or the channel plumbing.
type Metric string

// MetricOk tags a successfully completed probe exchange.
const MetricOk Metric = "response_ok"

// Sample is one timestamped record of a completed probe exchange. Start and
// Stop are monotonic counter readings taken around exactly one
// request/response pair, so Start <= Stop always holds.
type Sample struct {
	Start  uint64
	Stop   uint64
	Metric Metric
}

// Latency returns the elapsed nanoseconds between the two counter readings.
func (s Sample) Latency() uint64 {
	if s.Stop < s.Start {
		return 0
	}
	return s.Stop - s.Start
}

// ErrClosed is returned by Sender.Send once the receiver has shut down.
// Producers should treat it as a stop signal, not a failure.
var ErrClosed = errors.New("stats: receiver closed")

// Sender is the producer side of the sample channel. It is a plain value and
// may be copied freely; every copy feeds the same receiver.
//
// Send blocks while the channel is full. Backpressure is deliberate: a slow
// consumer delays the producer's next probe cycle instead of dropping
// samples, so counts stay exact.
type Sender struct {
	queue chan<- Sample
	done  <-chan struct{}
}

// Send places one sample on the channel, blocking until there is space or
// the receiver shuts down.
func (s Sender) Send(sample Sample) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- sample:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

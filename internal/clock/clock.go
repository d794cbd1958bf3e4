// Package clock provides the shared clocksource used for probe timing and
// window boundaries. Handles are plain values; every worker and the window
// loop carry their own copy of the same source.
package clock

import "time"

// Clocksource reads a process-wide monotonic counter and wall-clock time.
// The zero value is not usable; obtain handles from New or by copying an
// existing one.
type Clocksource struct {
	base time.Time
}

// New returns a clocksource anchored at the current instant.
func New() Clocksource {
	return Clocksource{base: time.Now()}
}

// Counter returns monotonic nanoseconds elapsed since the source was created.
// Successive reads from any handle of the same source never decrease.
func (c Clocksource) Counter() uint64 {
	return uint64(time.Since(c.base))
}

// Time returns wall-clock nanoseconds since the Unix epoch.
func (c Clocksource) Time() uint64 {
	return uint64(time.Now().UnixNano())
}

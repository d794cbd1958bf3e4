package transport

import (
	"context"
	"net/netip"
)

// Noop performs no I/O at all. Timing an exchange through it measures the
// overhead of the clock reads and the aggregation path, establishing the
// noise floor against which real-transport latencies are compared.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) SendAndReceive(ctx context.Context, _ netip.AddrPort) error {
	return ctx.Err()
}

func (Noop) Close() error { return nil }

// Package transport provides the interchangeable probe backends. All three
// implementations expose the same contract so the worker loop never knows
// which one it is driving; the choice is made once at start-up and is fixed
// for the lifetime of a worker.
package transport

import (
	"context"
	"fmt"
	"net/netip"
)

// probe is the fixed request payload. Its bytes carry no meaning to the
// benchmark; only round-trip completion is measured.
const probe = "PING\r\n"

// receiveBufferSize fits any reply a cooperating echo server would send.
const receiveBufferSize = 2048

// Backend performs exactly one probe exchange per call. Implementations may
// block indefinitely in send or receive; Close unblocks any in-flight call
// so workers can be drained.
type Backend interface {
	SendAndReceive(ctx context.Context, dst netip.AddrPort) error
	Close() error
}

// Error wraps a send or receive failure with the backend and operation that
// produced it.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

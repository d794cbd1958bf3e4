package transport

import (
	"context"
	"net/netip"

	"github.com/torosent/pingmill/internal/usernet"
)

// Stack probes through the shared user-space network stack. The stack
// serializes concurrent access internally; each backend only owns its own
// socket handle.
type Stack struct {
	sock    *usernet.Socket
	payload []byte
	buf     []byte
}

// NewStack wraps a socket already bound on the user-space stack.
func NewStack(sock *usernet.Socket) *Stack {
	return &Stack{
		sock:    sock,
		payload: []byte(probe),
		buf:     make([]byte, receiveBufferSize),
	}
}

func (s *Stack) SendAndReceive(ctx context.Context, dst netip.AddrPort) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sock.SendTo(s.payload, dst); err != nil {
		return &Error{Backend: "stack", Op: "send", Err: err}
	}
	if _, _, err := s.sock.RecvFrom(s.buf); err != nil {
		return &Error{Backend: "stack", Op: "receive", Err: err}
	}
	return nil
}

func (s *Stack) Close() error { return s.sock.Close() }

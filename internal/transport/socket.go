package transport

import (
	"context"
	"net"
	"net/netip"
)

// Socket probes through the host's native UDP stack. The socket binds to the
// configured source address with an OS-assigned ephemeral port.
type Socket struct {
	conn    *net.UDPConn
	payload []byte
	buf     []byte
}

// NewSocket binds a native UDP socket on src, port 0.
func NewSocket(src netip.Addr) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(netip.AddrPortFrom(src, 0)))
	if err != nil {
		return nil, &Error{Backend: "socket", Op: "bind", Err: err}
	}
	return &Socket{
		conn:    conn,
		payload: []byte(probe),
		buf:     make([]byte, receiveBufferSize),
	}, nil
}

func (s *Socket) SendAndReceive(ctx context.Context, dst netip.AddrPort) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.conn.WriteToUDPAddrPort(s.payload, dst); err != nil {
		return &Error{Backend: "socket", Op: "send", Err: err}
	}
	if _, _, err := s.conn.ReadFromUDPAddrPort(s.buf); err != nil {
		return &Error{Backend: "socket", Op: "receive", Err: err}
	}
	return nil
}

func (s *Socket) Close() error { return s.conn.Close() }

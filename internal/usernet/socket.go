package usernet

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// socketQueueDepth bounds datagrams buffered per socket before the reader
// catches up. Overflow drops, matching kernel UDP semantics.
const socketQueueDepth = 64

type packetIn struct {
	payload []byte
	src     netip.AddrPort
}

// Socket is a UDP endpoint bound on the stack. SendTo and RecvFrom are safe
// for one concurrent caller each.
type Socket struct {
	stack     *Stack
	local     netip.AddrPort
	incoming  chan packetIn
	closed    chan struct{}
	closeOnce sync.Once
}

// Bind reserves a UDP port on the stack. Port 0 picks an unused ephemeral
// port. The address part is ignored; the stack has exactly one local address.
func (s *Stack) Bind(local netip.AddrPort) (*Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.addr.IsValid() {
		return nil, errors.New("usernet: bind before AddIPv4")
	}

	port := local.Port()
	if port == 0 {
		for p := uint16(ephemeralPortBase); p != 0; p++ {
			if _, taken := s.sockets[p]; !taken {
				port = p
				break
			}
		}
		if port == 0 {
			return nil, errors.New("usernet: no free ephemeral port")
		}
	} else if _, taken := s.sockets[port]; taken {
		return nil, fmt.Errorf("usernet: port %d already bound", port)
	}

	sock := &Socket{
		stack:    s,
		local:    netip.AddrPortFrom(s.addr, port),
		incoming: make(chan packetIn, socketQueueDepth),
		closed:   make(chan struct{}),
	}
	s.sockets[port] = sock
	return sock, nil
}

// LocalAddr returns the bound address and port.
func (s *Socket) LocalAddr() netip.AddrPort { return s.local }

// SendTo transmits one datagram to dst, resolving the next hop through the
// routing table and ARP as needed.
func (s *Socket) SendTo(b []byte, dst netip.AddrPort) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrClosed
	default:
	}

	hop, err := s.stack.nexthop(dst.Addr())
	if err != nil {
		return 0, err
	}
	mac, err := s.stack.resolve(hop)
	if err != nil {
		return 0, err
	}

	frame := make([]byte, ethHeaderLen+ipv4HeaderLen+udpHeaderLen+len(b))
	putEthernet(frame, mac, s.stack.hwaddr, etherTypeIPv4)
	ip := frame[ethHeaderLen:]
	putIPv4(ip, s.local.Addr(), dst.Addr(), s.stack.nextIPID(), udpHeaderLen+len(b))
	udp := ip[ipv4HeaderLen:]
	putUDP(udp, s.local.Port(), dst.Port(), len(b))
	copy(udp[udpHeaderLen:], b)

	if err := s.stack.writeFrame(frame); err != nil {
		return 0, err
	}
	return len(b), nil
}

// RecvFrom blocks until one datagram arrives, copies its payload into b, and
// returns the byte count and source address. Oversized payloads truncate.
func (s *Socket) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	select {
	case p := <-s.incoming:
		n := copy(b, p.payload)
		return n, p.src, nil
	case <-s.closed:
		return 0, netip.AddrPort{}, ErrClosed
	}
}

func (s *Socket) deliver(p packetIn) {
	select {
	case s.incoming <- p:
	default:
		// Receiver queue full: drop, as a kernel socket would.
	}
}

// Close releases the port and unblocks a pending RecvFrom.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.stack.mu.Lock()
		delete(s.stack.sockets, s.local.Port())
		s.stack.mu.Unlock()
	})
	return nil
}

// Package usernet is a minimal user-space UDP/IPv4 network stack over a raw
// link-layer device. It exists so latency probes can bypass the host's
// in-kernel stack entirely. The stack is shared by many callers and
// serializes all mutable state internally; callers never take its lock.
package usernet

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"
)

const (
	arpTimeout  = time.Second
	arpAttempts = 3

	ephemeralPortBase = 49152

	frameBufferSize = 65536
)

var (
	ErrNoInterface = errors.New("usernet: no interface configured")
	ErrNoRoute     = errors.New("usernet: no route to destination")
	ErrClosed      = errors.New("usernet: stack closed")
)

type route struct {
	dst netip.Prefix
	gw  netip.Addr
}

// Stack is a single-interface IPv4/UDP stack.
type Stack struct {
	mu      sync.Mutex
	dev     Device
	hwaddr  macAddr
	addr    netip.Addr
	prefix  netip.Prefix
	routes  []route
	arp     map[netip.Addr]macAddr
	arpWait map[netip.Addr][]chan macAddr
	sockets map[uint16]*Socket
	ipID    uint16
	closed  bool

	// writeMu serializes frame transmission separately from stack state so
	// an ARP wait never blocks an unrelated send.
	writeMu sync.Mutex
}

func NewStack() *Stack {
	return &Stack{
		arp:     make(map[netip.Addr]macAddr),
		arpWait: make(map[netip.Addr][]chan macAddr),
		sockets: make(map[uint16]*Socket),
	}
}

// AddInterface attaches the link-layer device and starts the receive loop.
// The stack currently drives exactly one interface.
func (s *Stack) AddInterface(dev Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return errors.New("usernet: interface already configured")
	}
	s.dev = dev
	s.hwaddr = dev.HardwareAddr()
	go s.readLoop(dev)
	return nil
}

// AddIPv4 assigns the local address and on-link prefix.
func (s *Stack) AddIPv4(prefix netip.Prefix) error {
	if !prefix.Addr().Is4() {
		return fmt.Errorf("usernet: %s is not an IPv4 prefix", prefix)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addr = prefix.Addr()
	s.prefix = prefix.Masked()
	return nil
}

// RoutingTable exposes route management for the stack.
func (s *Stack) RoutingTable() *RoutingTable { return &RoutingTable{s: s} }

// RoutingTable adds routes to its owning stack.
type RoutingTable struct {
	s *Stack
}

// AddRoute sends traffic for dst via the gateway gw. More specific prefixes
// win on lookup.
func (rt *RoutingTable) AddRoute(dst netip.Prefix, gw netip.Addr) {
	rt.s.mu.Lock()
	defer rt.s.mu.Unlock()
	rt.s.routes = append(rt.s.routes, route{dst: dst.Masked(), gw: gw})
}

// Close shuts down the device and all bound sockets.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dev := s.dev
	socks := make([]*Socket, 0, len(s.sockets))
	for _, sock := range s.sockets {
		socks = append(socks, sock)
	}
	s.mu.Unlock()

	for _, sock := range socks {
		sock.Close()
	}
	if dev != nil {
		return dev.Close()
	}
	return nil
}

// nexthop decides where the frame for dst physically goes: the destination
// itself when on-link, otherwise the gateway of the best matching route.
func (s *Stack) nexthop(dst netip.Addr) (netip.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefix.Contains(dst) {
		return dst, nil
	}
	best := -1
	var gw netip.Addr
	for _, r := range s.routes {
		if r.dst.Contains(dst) && r.dst.Bits() > best {
			best = r.dst.Bits()
			gw = r.gw
		}
	}
	if best < 0 {
		return netip.Addr{}, ErrNoRoute
	}
	return gw, nil
}

// resolve returns the MAC address for an on-link IP, consulting the ARP
// cache and falling back to request/wait cycles.
func (s *Stack) resolve(ip netip.Addr) (macAddr, error) {
	for attempt := 0; attempt < arpAttempts; attempt++ {
		s.mu.Lock()
		if mac, ok := s.arp[ip]; ok {
			s.mu.Unlock()
			return mac, nil
		}
		wait := make(chan macAddr, 1)
		s.arpWait[ip] = append(s.arpWait[ip], wait)
		hwaddr, addr := s.hwaddr, s.addr
		s.mu.Unlock()

		if err := s.sendARP(arpOpRequest, broadcastMAC, hwaddr, addr, macAddr{}, ip); err != nil {
			return macAddr{}, err
		}

		timer := time.NewTimer(arpTimeout)
		select {
		case mac := <-wait:
			timer.Stop()
			return mac, nil
		case <-timer.C:
		}
	}
	return macAddr{}, fmt.Errorf("usernet: arp resolution for %s timed out", ip)
}

func (s *Stack) sendARP(op uint16, ethDst, senderMAC macAddr, senderIP netip.Addr, targetMAC macAddr, targetIP netip.Addr) error {
	frame := make([]byte, ethHeaderLen+arpPacketLen)
	putEthernet(frame, ethDst, senderMAC, etherTypeARP)
	putARP(frame[ethHeaderLen:], op, senderMAC, senderIP, targetMAC, targetIP)
	return s.writeFrame(frame)
}

func (s *Stack) writeFrame(frame []byte) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		return ErrNoInterface
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := dev.WriteFrame(frame)
	return err
}

func (s *Stack) nextIPID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ipID == 0 {
		s.ipID = uint16(rand.Uint32())
	}
	s.ipID++
	return s.ipID
}

func (s *Stack) readLoop(dev Device) {
	buf := make([]byte, frameBufferSize)
	for {
		n, err := dev.ReadFrame(buf)
		if err != nil {
			return
		}
		s.handleFrame(buf[:n])
	}
}

func (s *Stack) handleFrame(frame []byte) {
	if len(frame) < ethHeaderLen {
		return
	}
	etherType := uint16(frame[12])<<8 | uint16(frame[13])
	body := frame[ethHeaderLen:]
	switch etherType {
	case etherTypeARP:
		s.handleARP(body)
	case etherTypeIPv4:
		s.handleIPv4(body)
	}
}

func (s *Stack) handleARP(body []byte) {
	pkt, ok := parseARP(body)
	if !ok {
		return
	}
	switch pkt.op {
	case arpOpRequest:
		s.mu.Lock()
		mine := s.addr.IsValid() && pkt.targetIP == s.addr
		hwaddr, addr := s.hwaddr, s.addr
		s.mu.Unlock()
		if mine {
			_ = s.sendARP(arpOpReply, pkt.senderMAC, hwaddr, addr, pkt.senderMAC, pkt.senderIP)
		}
	case arpOpReply:
		s.mu.Lock()
		s.arp[pkt.senderIP] = pkt.senderMAC
		waiters := s.arpWait[pkt.senderIP]
		delete(s.arpWait, pkt.senderIP)
		s.mu.Unlock()
		for _, w := range waiters {
			w <- pkt.senderMAC
		}
	}
}

func (s *Stack) handleIPv4(body []byte) {
	pkt, ok := parseIPv4(body)
	if !ok || pkt.proto != ipProtoUDP {
		return
	}
	s.mu.Lock()
	if !s.addr.IsValid() || pkt.dst != s.addr {
		s.mu.Unlock()
		return
	}
	dgram, ok := parseUDP(pkt.payload)
	if !ok {
		s.mu.Unlock()
		return
	}
	sock := s.sockets[dgram.dstPort]
	s.mu.Unlock()
	if sock == nil {
		return
	}

	payload := make([]byte, len(dgram.payload))
	copy(payload, dgram.payload)
	sock.deliver(packetIn{
		payload: payload,
		src:     netip.AddrPortFrom(pkt.src, dgram.srcPort),
	})
}

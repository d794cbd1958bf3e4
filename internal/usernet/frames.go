package usernet

import (
	"encoding/binary"
	"net/netip"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806

	ethHeaderLen  = 14
	arpPacketLen  = 28
	ipv4HeaderLen = 20
	udpHeaderLen  = 8

	ipProtoUDP = 17

	arpOpRequest = 1
	arpOpReply   = 2
)

type macAddr [6]byte

var broadcastMAC = macAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func putEthernet(b []byte, dst, src macAddr, etherType uint16) {
	copy(b[0:6], dst[:])
	copy(b[6:12], src[:])
	binary.BigEndian.PutUint16(b[12:14], etherType)
}

// putARP writes an Ethernet/IPv4 ARP packet body (28 bytes) into b.
func putARP(b []byte, op uint16, senderMAC macAddr, senderIP netip.Addr, targetMAC macAddr, targetIP netip.Addr) {
	binary.BigEndian.PutUint16(b[0:2], 1) // hardware type: ethernet
	binary.BigEndian.PutUint16(b[2:4], etherTypeIPv4)
	b[4] = 6 // hardware address length
	b[5] = 4 // protocol address length
	binary.BigEndian.PutUint16(b[6:8], op)
	copy(b[8:14], senderMAC[:])
	sip := senderIP.As4()
	copy(b[14:18], sip[:])
	copy(b[18:24], targetMAC[:])
	tip := targetIP.As4()
	copy(b[24:28], tip[:])
}

type arpPacket struct {
	op        uint16
	senderMAC macAddr
	senderIP  netip.Addr
	targetIP  netip.Addr
}

func parseARP(b []byte) (arpPacket, bool) {
	if len(b) < arpPacketLen {
		return arpPacket{}, false
	}
	if binary.BigEndian.Uint16(b[0:2]) != 1 ||
		binary.BigEndian.Uint16(b[2:4]) != etherTypeIPv4 ||
		b[4] != 6 || b[5] != 4 {
		return arpPacket{}, false
	}
	var p arpPacket
	p.op = binary.BigEndian.Uint16(b[6:8])
	copy(p.senderMAC[:], b[8:14])
	p.senderIP = netip.AddrFrom4([4]byte(b[14:18]))
	p.targetIP = netip.AddrFrom4([4]byte(b[24:28]))
	return p, true
}

// putIPv4 writes a 20-byte header with no options. The checksum covers the
// header only.
func putIPv4(b []byte, src, dst netip.Addr, id uint16, payloadLen int) {
	b[0] = 0x45 // version 4, IHL 5
	b[1] = 0
	binary.BigEndian.PutUint16(b[2:4], uint16(ipv4HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], 0x4000) // don't fragment
	b[8] = 64                                  // ttl
	b[9] = ipProtoUDP
	b[10], b[11] = 0, 0
	sip := src.As4()
	copy(b[12:16], sip[:])
	dip := dst.As4()
	copy(b[16:20], dip[:])
	binary.BigEndian.PutUint16(b[10:12], ipv4Checksum(b[:ipv4HeaderLen]))
}

type ipv4Packet struct {
	src     netip.Addr
	dst     netip.Addr
	proto   uint8
	payload []byte
}

func parseIPv4(b []byte) (ipv4Packet, bool) {
	if len(b) < ipv4HeaderLen || b[0]>>4 != 4 {
		return ipv4Packet{}, false
	}
	ihl := int(b[0]&0x0f) * 4
	total := int(binary.BigEndian.Uint16(b[2:4]))
	if ihl < ipv4HeaderLen || total < ihl || total > len(b) {
		return ipv4Packet{}, false
	}
	return ipv4Packet{
		src:     netip.AddrFrom4([4]byte(b[12:16])),
		dst:     netip.AddrFrom4([4]byte(b[16:20])),
		proto:   b[9],
		payload: b[ihl:total],
	}, true
}

// putUDP writes an 8-byte UDP header. The checksum is left zero, which IPv4
// permits.
func putUDP(b []byte, srcPort, dstPort uint16, payloadLen int) {
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint16(b[4:6], uint16(udpHeaderLen+payloadLen))
	b[6], b[7] = 0, 0
}

type udpDatagram struct {
	srcPort uint16
	dstPort uint16
	payload []byte
}

func parseUDP(b []byte) (udpDatagram, bool) {
	if len(b) < udpHeaderLen {
		return udpDatagram{}, false
	}
	length := int(binary.BigEndian.Uint16(b[4:6]))
	if length < udpHeaderLen || length > len(b) {
		return udpDatagram{}, false
	}
	return udpDatagram{
		srcPort: binary.BigEndian.Uint16(b[0:2]),
		dstPort: binary.BigEndian.Uint16(b[2:4]),
		payload: b[udpHeaderLen:length],
	}, true
}

// ipv4Checksum computes the RFC 1071 ones-complement sum over b, which must
// already have its checksum field zeroed.
func ipv4Checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

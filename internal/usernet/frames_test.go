package usernet

import (
	"net/netip"
	"testing"
)

func TestIPv4ChecksumKnownVector(t *testing.T) {
	// Example header from RFC 1071 discussions: checksum field zeroed.
	hdr := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01,
		0xc0, 0xa8, 0x00, 0xc7,
	}
	if got := ipv4Checksum(hdr); got != 0xb861 {
		t.Fatalf("checksum = %#04x, want 0xb861", got)
	}
}

func TestIPv4HeaderVerifies(t *testing.T) {
	b := make([]byte, ipv4HeaderLen)
	putIPv4(b, netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"), 42, 100)

	// Re-summing a valid header, checksum included, must yield zero.
	var sum uint32
	for i := 0; i < ipv4HeaderLen; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	if ^uint16(sum) != 0 {
		t.Fatalf("header checksum does not verify: %#04x", ^uint16(sum))
	}

	pkt, ok := parseIPv4(append(b, make([]byte, 100)...))
	if !ok {
		t.Fatal("parseIPv4 rejected own header")
	}
	if pkt.src != netip.MustParseAddr("10.0.0.1") || pkt.dst != netip.MustParseAddr("10.0.0.2") {
		t.Fatalf("parsed %s -> %s", pkt.src, pkt.dst)
	}
	if pkt.proto != ipProtoUDP {
		t.Fatalf("proto = %d, want %d", pkt.proto, ipProtoUDP)
	}
}

func TestParseARPRoundTrip(t *testing.T) {
	sender := macAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	b := make([]byte, arpPacketLen)
	putARP(b, arpOpRequest, sender, netip.MustParseAddr("10.0.0.1"), macAddr{}, netip.MustParseAddr("10.0.0.2"))

	pkt, ok := parseARP(b)
	if !ok {
		t.Fatal("parseARP rejected own packet")
	}
	if pkt.op != arpOpRequest || pkt.senderMAC != sender {
		t.Fatalf("parsed op=%d sender=%v", pkt.op, pkt.senderMAC)
	}
	if pkt.targetIP != netip.MustParseAddr("10.0.0.2") {
		t.Fatalf("target ip = %s", pkt.targetIP)
	}
}

func TestParseRejectsTruncatedFrames(t *testing.T) {
	if _, ok := parseARP(make([]byte, arpPacketLen-1)); ok {
		t.Error("accepted truncated ARP")
	}
	if _, ok := parseIPv4(make([]byte, ipv4HeaderLen-1)); ok {
		t.Error("accepted truncated IPv4")
	}
	if _, ok := parseUDP(make([]byte, udpHeaderLen-1)); ok {
		t.Error("accepted truncated UDP")
	}
	// UDP length field longer than the buffer.
	b := make([]byte, udpHeaderLen)
	putUDP(b, 1, 2, 100)
	if _, ok := parseUDP(b); ok {
		t.Error("accepted UDP with length past the buffer")
	}
}

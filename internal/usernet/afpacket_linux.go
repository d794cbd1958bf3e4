//go:build linux

package usernet

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// afPacketDevice reads and writes raw Ethernet frames through an AF_PACKET
// socket bound to one interface.
type afPacketDevice struct {
	fd     int
	name   string
	hwaddr [6]byte
}

// OpenDevice opens a raw packet socket on the named interface. Requires
// CAP_NET_RAW.
func OpenDevice(name string) (Device, error) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("usernet: interface %s: %w", name, err)
	}
	if len(ifc.HardwareAddr) != 6 {
		return nil, fmt.Errorf("usernet: interface %s has no ethernet address", name)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("usernet: packet socket: %w", err)
	}
	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifc.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("usernet: bind %s: %w", name, err)
	}

	dev := &afPacketDevice{fd: fd, name: name}
	copy(dev.hwaddr[:], ifc.HardwareAddr)
	return dev, nil
}

func (d *afPacketDevice) ReadFrame(b []byte) (int, error) {
	n, err := unix.Read(d.fd, b)
	if err != nil {
		return 0, fmt.Errorf("usernet: read %s: %w", d.name, err)
	}
	return n, nil
}

func (d *afPacketDevice) WriteFrame(b []byte) (int, error) {
	n, err := unix.Write(d.fd, b)
	if err != nil {
		return 0, fmt.Errorf("usernet: write %s: %w", d.name, err)
	}
	return n, nil
}

func (d *afPacketDevice) HardwareAddr() [6]byte { return d.hwaddr }

func (d *afPacketDevice) Close() error { return unix.Close(d.fd) }

func htons(v uint16) uint16 { return v<<8 | v>>8 }

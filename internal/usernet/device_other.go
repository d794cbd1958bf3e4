//go:build !linux

package usernet

import "errors"

// OpenDevice needs AF_PACKET, which only Linux provides. Other platforms can
// still run the socket and noop backends.
func OpenDevice(name string) (Device, error) {
	return nil, errors.New("usernet: raw device access requires linux")
}

package usernet

// Device is a raw link-layer endpoint: whole Ethernet frames in, whole
// Ethernet frames out. The production implementation sits on an AF_PACKET
// socket; tests substitute an in-memory pair.
type Device interface {
	// ReadFrame blocks until one frame is available and copies it into b.
	ReadFrame(b []byte) (int, error)
	// WriteFrame transmits one complete frame.
	WriteFrame(b []byte) (int, error)
	// HardwareAddr returns the device's MAC address.
	HardwareAddr() [6]byte
	// Close releases the device and unblocks any in-flight ReadFrame.
	Close() error
}

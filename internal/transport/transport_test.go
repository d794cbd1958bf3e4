package transport_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/torosent/pingmill/internal/transport"
)

func TestNoopNeverFails(t *testing.T) {
	b := transport.NewNoop()
	for i := 0; i < 100; i++ {
		if err := b.SendAndReceive(context.Background(), netip.AddrPort{}); err != nil {
			t.Fatalf("noop exchange %d: %v", i, err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNoopHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := transport.NewNoop().SendAndReceive(ctx, netip.AddrPort{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// startEcho runs a loopback UDP echo server for the test's lifetime.
func startEcho(t *testing.T) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("echo listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, src, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteToUDPAddrPort(buf[:n], src)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func TestSocketRoundTrip(t *testing.T) {
	dst := startEcho(t)

	b, err := transport.NewSocket(netip.MustParseAddr("127.0.0.1"))
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer b.Close()

	done := make(chan error, 1)
	go func() { done <- b.SendAndReceive(context.Background(), dst) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("exchange: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not complete")
	}
}

func TestSocketCloseUnblocksReceive(t *testing.T) {
	// No echo server: the receive blocks until Close unblocks it.
	b, err := transport.NewSocket(netip.MustParseAddr("127.0.0.1"))
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.SendAndReceive(context.Background(), netip.MustParseAddrPort("127.0.0.1:9"))
	}()

	time.Sleep(50 * time.Millisecond)
	_ = b.Close()

	select {
	case err := <-done:
		var terr *transport.Error
		if !errors.As(err, &terr) {
			t.Fatalf("expected *transport.Error, got %v", err)
		}
		if terr.Op != "receive" {
			t.Fatalf("expected receive failure, got op %q", terr.Op)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not unblock the exchange")
	}
}

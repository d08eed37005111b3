package capture

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"edgeagent/internal/logger"
	"edgeagent/internal/model"
)

func sendDatagrams(t *testing.T, addr net.Addr, parts ...[]byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	for _, p := range parts {
		if _, err := conn.Write(p); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUDPSource_ReassemblesFrame(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", map[string]string{"127.0.0.1": "front_door"}, 4, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer src.Close()

	first := []byte{0xFF, 0xD8, 0x01, 0x02}
	middle := []byte{0x03, 0x04}
	last := []byte{0x05, 0xFF, 0xD9}
	sendDatagrams(t, src.Addr(), first, middle, last)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := src.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	want := bytes.Join([][]byte{first, middle, last}, nil)
	if !bytes.Equal(frame.Data, want) {
		t.Errorf("Expected %x, got %x", want, frame.Data)
	}
	if frame.Source != "front_door" {
		t.Errorf("Expected source front_door, got %s", frame.Source)
	}
	if frame.Format != model.FormatJPEG {
		t.Errorf("Expected JPEG frame, got %v", frame.Format)
	}
	if frame.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", frame.Seq)
	}
}

func TestUDPSource_NewHeaderRestartsFrame(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", nil, 4, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer src.Close()

	// The first frame loses its tail; the second header discards the partial data.
	sendDatagrams(t, src.Addr(),
		[]byte{0xFF, 0xD8, 0xAA},
		[]byte{0xFF, 0xD8, 0xBB, 0xFF, 0xD9},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := src.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	want := []byte{0xFF, 0xD8, 0xBB, 0xFF, 0xD9}
	if !bytes.Equal(frame.Data, want) {
		t.Errorf("Expected %x, got %x", want, frame.Data)
	}
	if frame.Source != "unknown_127.0.0.1" {
		t.Errorf("Expected unknown camera name, got %s", frame.Source)
	}
}

func TestUDPSource_CaptureHonoursContext(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", nil, 1, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Capture(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestUDPSource_CloseEndsCapture(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", nil, 1, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	if _, err := src.Capture(context.Background()); err != net.ErrClosed {
		t.Errorf("Expected net.ErrClosed, got %v", err)
	}
}

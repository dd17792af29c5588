package transport

import (
	"testing"
	"time"
)

func TestLoopbackFeedAndRead(t *testing.T) {
	local := [6]byte{1, 2, 3, 4, 5, 6}
	remote := [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	lb := NewLoopback(local, remote)

	lb.Feed([]byte{0xAA, 0xBB, 0xCC})

	buf := make([]byte, 16)
	n, from, err := lb.Read(buf, time.Second)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 3 || from != remote {
		t.Fatalf("Read() = (%d, %v), want (3, %v)", n, from, remote)
	}
}

func TestLoopbackReadTimesOut(t *testing.T) {
	lb := NewLoopback([6]byte{}, [6]byte{})
	buf := make([]byte, 4)
	_, _, err := lb.Read(buf, 5*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("Read() error = %v, want ErrTimeout", err)
	}
}

func TestLoopbackRecordsWrites(t *testing.T) {
	lb := NewLoopback([6]byte{}, [6]byte{})
	if _, err := lb.Write([]byte{1, 2, 3}, [6]byte{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	sent := lb.Sent()
	if len(sent) != 1 || len(sent[0]) != 3 {
		t.Fatalf("Sent() = %v, want one 3-byte frame", sent)
	}
}

func TestLoopbackCloseUnblocksRead(t *testing.T) {
	lb := NewLoopback([6]byte{}, [6]byte{})
	lb.Close()
	buf := make([]byte, 4)
	_, _, err := lb.Read(buf, time.Second)
	if err != ErrNotConnected {
		t.Fatalf("Read() after Close error = %v, want ErrNotConnected", err)
	}
}

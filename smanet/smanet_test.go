package smanet

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestStuffUnstuffRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(64)
		data := make([]byte, n)
		rng.Read(data)

		stuffed := Stuff(data)
		for _, b := range stuffed {
			if b == delimiter {
				t.Fatalf("stuffed output contains bare delimiter: %x", stuffed)
			}
		}

		got, err := Unstuff(stuffed)
		if err != nil {
			t.Fatalf("Unstuff() error = %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch: got %x, want %x", got, data)
		}
	}
}

func TestStuffEscapesKnownBytes(t *testing.T) {
	in := []byte{0x7E, 0x7D, 0x11, 0x12, 0x13, 0x00, 0xFF}
	out := Stuff(in)
	want := []byte{
		0x7D, 0x7E ^ 0x20,
		0x7D, 0x7D ^ 0x20,
		0x7D, 0x11 ^ 0x20,
		0x7D, 0x12 ^ 0x20,
		0x7D, 0x13 ^ 0x20,
		0x00,
		0xFF,
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("Stuff() = %x, want %x", out, want)
	}
}

func TestEncodeFragmentsAndReassembleSingleFragment(t *testing.T) {
	src := [6]byte{1, 2, 3, 4, 5, 6}
	dst := [6]byte{6, 5, 4, 3, 2, 1}
	userData := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	fragments, err := EncodeFragments(ProtocolSMADATA2Plus, userData, src, dst, 237)
	if err != nil {
		t.Fatalf("EncodeFragments() error = %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected a single fragment, got %d", len(fragments))
	}

	var reasm Reassembler
	msg, err := reasm.Feed(fragments[0])
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if msg == nil {
		t.Fatal("Feed() returned nil message after the only fragment")
	}
	if msg.Protocol != ProtocolSMADATA2Plus || msg.SrcMAC != src || msg.DstMAC != dst {
		t.Fatalf("decoded message = %+v", msg)
	}
	if !bytes.Equal(msg.UserData, userData) {
		t.Fatalf("UserData = %x, want %x", msg.UserData, userData)
	}
}

func TestEncodeFragmentsSplitsLargePayload(t *testing.T) {
	src := [6]byte{1, 2, 3, 4, 5, 6}
	dst := [6]byte{6, 5, 4, 3, 2, 1}
	userData := make([]byte, 600)
	for i := range userData {
		userData[i] = byte(i)
	}

	fragments, err := EncodeFragments(ProtocolSMADATA2Plus, userData, src, dst, 64)
	if err != nil {
		t.Fatalf("EncodeFragments() error = %v", err)
	}
	if len(fragments) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(fragments))
	}

	var reasm Reassembler
	var msg *Message
	for _, f := range fragments {
		m, err := reasm.Feed(f)
		if err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
		if m != nil {
			msg = m
		}
	}
	if msg == nil {
		t.Fatal("reassembly never completed")
	}
	if !bytes.Equal(msg.UserData, userData) {
		t.Fatalf("reassembled UserData mismatch (len got=%d want=%d)", len(msg.UserData), len(userData))
	}
}

func TestReassembleRejectsCorruptedFCS(t *testing.T) {
	src := [6]byte{1, 2, 3, 4, 5, 6}
	dst := [6]byte{6, 5, 4, 3, 2, 1}
	fragments, err := EncodeFragments(ProtocolSMADATA2Plus, []byte{0x01, 0x02}, src, dst, 237)
	if err != nil {
		t.Fatalf("EncodeFragments() error = %v", err)
	}
	frame := append([]byte(nil), fragments[0]...)
	frame[len(frame)-2] ^= 0xFF // invert the last stuffed-body byte (FCS tail), not the delimiter

	var reasm Reassembler
	if _, err := reasm.Feed(frame); err == nil {
		t.Fatal("Feed() with corrupted FCS succeeded, want error")
	}
}

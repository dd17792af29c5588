// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package transport

import (
	"sync"
	"time"
)

// Loopback is a ReadWriter test double moving raw, unframed byte slices
// through in-memory queues, standing in for a real RFCOMM socket in
// unit and scenario tests. It enforces no protocol structure of its
// own, the same role FreeFrameTransport plays for Modbus: a pass-through
// that lets the layer under test own all framing decisions.
type Loopback struct {
	mu      sync.Mutex
	inbox   [][]byte
	written [][]byte
	local   [6]byte
	remote  [6]byte
	closed  bool
}

// NewLoopback returns a Loopback whose LocalMAC is local and whose Read
// reports remote as the sender. Writes are never read back: Read only
// returns frames queued with Feed (single-reader use only, matching the
// synchronous single-session model this library targets).
func NewLoopback(local, remote [6]byte) *Loopback {
	return &Loopback{local: local, remote: remote}
}

// Feed injects a frame as if it had arrived from the peer, for seeding
// scenario fixtures before Connect/Read is called.
func (lb *Loopback) Feed(frame []byte) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	cp := append([]byte(nil), frame...)
	lb.inbox = append(lb.inbox, cp)
}

// pollInterval bounds how often Read re-checks the inbox while waiting;
// short enough that scenario tests with second-scale timeouts stay fast.
const pollInterval = time.Millisecond

// Read returns the next fed frame, polling up to timeout if the inbox
// is empty.
func (lb *Loopback) Read(buf []byte, timeout time.Duration) (int, [6]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		lb.mu.Lock()
		if lb.closed {
			lb.mu.Unlock()
			return 0, lb.remote, ErrNotConnected
		}
		if len(lb.inbox) > 0 {
			frame := lb.inbox[0]
			lb.inbox = lb.inbox[1:]
			n := copy(buf, frame)
			remote := lb.remote
			lb.mu.Unlock()
			return n, remote, nil
		}
		lb.mu.Unlock()

		if time.Now().After(deadline) {
			return 0, lb.remote, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Write records the written frame is available to assertions via Sent,
// and is a no-op against the inbox (tests call Feed to script replies).
func (lb *Loopback) Write(buf []byte, _ [6]byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.closed {
		return 0, ErrNotConnected
	}
	lb.written = append(lb.written, append([]byte(nil), buf...))
	return len(buf), nil
}

// Sent returns every frame passed to Write, in order, for scenario
// assertions ("ackAuth was sent unicast to 0x12345678").
func (lb *Loopback) Sent() [][]byte {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return append([][]byte(nil), lb.written...)
}

// LocalMAC returns the configured local address.
func (lb *Loopback) LocalMAC() [6]byte { return lb.local }

// Close marks the loopback closed; pending Read calls unblock with
// ErrNotConnected.
func (lb *Loopback) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.closed = true
	return nil
}

var _ ReadWriter = (*Loopback)(nil)

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

//go:build linux

package transport

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// RFCOMMChannel is the fixed SPP channel SMA inverters listen on.
const RFCOMMChannel = 1

// RFCOMM is a Bluetooth RFCOMM socket opened against one remote MAC on
// RFCOMMChannel. It implements ReadWriter with no framing knowledge of
// its own; everything above the byte stream is the concern of l2.
type RFCOMM struct {
	mu     sync.Mutex
	fd     int
	local  [6]byte
	remote [6]byte
	opened bool
}

// NewRFCOMM allocates an unopened RFCOMM transport. Call Connect before
// Read/Write.
func NewRFCOMM() *RFCOMM {
	return &RFCOMM{fd: -1}
}

// Connect opens an RFCOMM socket to remoteMAC ("XX:XX:XX:XX:XX:XX") on
// RFCOMMChannel and resolves the local adapter's address via getsockname.
func (r *RFCOMM) Connect(remoteMAC string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr, err := parseMAC(remoteMAC)
	if err != nil {
		return fmt.Errorf("transport: parse remote mac: %w", err)
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return fmt.Errorf("transport: open rfcomm socket: %w", err)
	}

	sa := &unix.SockaddrRFCOMM{Addr: addr, Channel: RFCOMMChannel}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("transport: connect to %s: %w", remoteMAC, err)
	}

	local, err := localRFCOMMAddr(fd)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("transport: resolve local adapter: %w", err)
	}

	r.fd = fd
	r.local = local
	r.remote = addr
	r.opened = true
	return nil
}

// Read waits up to timeout for data. SockaddrRFCOMM carries a single
// connected peer, so from always reports the remote MAC recorded at
// Connect time.
func (r *RFCOMM) Read(buf []byte, timeout time.Duration) (int, [6]byte, error) {
	r.mu.Lock()
	fd, opened, remote := r.fd, r.opened, r.remote
	r.mu.Unlock()

	if !opened {
		return 0, [6]byte{}, ErrNotConnected
	}

	if err := setReadTimeout(fd, timeout); err != nil {
		return 0, remote, fmt.Errorf("transport: set read timeout: %w", err)
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		if isTimeoutErrno(err) {
			return 0, remote, ErrTimeout
		}
		return 0, remote, fmt.Errorf("transport: read: %w", err)
	}
	if n == 0 {
		return 0, remote, ErrNotConnected
	}
	return n, remote, nil
}

// Write sends buf to the single connected peer. to is accepted for
// interface symmetry but ignored: RFCOMM is point-to-point.
func (r *RFCOMM) Write(buf []byte, _ [6]byte) (int, error) {
	r.mu.Lock()
	fd, opened := r.fd, r.opened
	r.mu.Unlock()

	if !opened {
		return 0, ErrNotConnected
	}
	n, err := unix.Write(fd, buf)
	if err != nil {
		return n, fmt.Errorf("transport: write: %w", err)
	}
	return n, nil
}

// LocalMAC returns the adapter address resolved at Connect.
func (r *RFCOMM) LocalMAC() [6]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// Close releases the socket. Safe to call more than once.
func (r *RFCOMM) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil
	}
	r.opened = false
	fd := r.fd
	r.fd = -1
	return unix.Close(fd)
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	var b [6]int
	n, err := fmt.Sscanf(s, "%02X:%02X:%02X:%02X:%02X:%02X", &b[0], &b[1], &b[2], &b[3], &b[4], &b[5])
	if err != nil || n != 6 {
		return mac, fmt.Errorf("malformed mac address %q", s)
	}
	for i, v := range b {
		mac[i] = byte(v)
	}
	return mac, nil
}

func localRFCOMMAddr(fd int) ([6]byte, error) {
	var mac [6]byte
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return mac, err
	}
	rf, ok := sa.(*unix.SockaddrRFCOMM)
	if !ok {
		return mac, fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return rf.Addr, nil
}

func setReadTimeout(fd int, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func isTimeoutErrno(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK)
}

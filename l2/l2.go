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

// Package l2 implements the SMA-Bluetooth physical framing layer: L2
// packet framing/deframing and the piconet bus-enumeration handshake.
package l2

import (
	"errors"
	"fmt"
	"time"

	"github.com/wwhai/pvlib-go/codec"
	"github.com/wwhai/pvlib-go/transport"
)

// ErrChecksum is returned when a received frame's header checksum does
// not match, per spec.md's L2-frame invariant.
var ErrChecksum = errors.New("l2: frame checksum mismatch")

// ErrEnumerationTimeout is returned when the piconet enumeration
// handshake never sees a terminator frame.
var ErrEnumerationTimeout = errors.New("l2: device enumeration timed out")

// Broadcast is the L2-layer broadcast destination.
var Broadcast = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

const (
	delimiter         byte = 0x7E
	headerReserved1   byte = 0xFF
	headerReserved2   byte = 0x00
	headerFixedLen         = 18 // everything before the payload
	maxPayload             = 0xFF - headerFixedLen

	cmdQueryNetwork  byte = 0x02
	cmdEnumDevices   byte = 0x0A
	cmdSMANETTunnel  byte = 0x01
)

// Frame is one deframed L2 packet.
type Frame struct {
	Cmd     byte
	SrcMAC  [6]byte
	DstMAC  [6]byte
	Payload []byte
}

// Device is one peer discovered on the piconet during enumeration.
type Device struct {
	MAC   [6]byte
	NetID uint16
}

// Conn wraps a transport.ReadWriter with L2 framing. It has no knowledge
// of SMANET or SMA-DATA2+; those are built on top via Send/Receive.
type Conn struct {
	rw      transport.ReadWriter
	timeout time.Duration
}

// NewConn builds an L2 connection over an already-open transport.
func NewConn(rw transport.ReadWriter, timeout time.Duration) *Conn {
	return &Conn{rw: rw, timeout: timeout}
}

// encode builds the 18-byte L2 header plus payload:
// 7E FF 00 <len_lo> <len_hi> <checksum> <src[6]> <dst[6]> <cmd> <payload...>
func encode(cmd byte, src, dst [6]byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("l2: payload too long (%d > %d)", len(payload), maxPayload)
	}
	length := uint16(len(payload) + headerFixedLen)
	lenLo := byte(length)
	lenHi := byte(length >> 8)
	checksum := delimiter ^ headerReserved1 ^ headerReserved2 ^ lenLo ^ lenHi

	w := codec.NewWriter(headerFixedLen + len(payload))
	w.PutU8(delimiter)
	w.PutU8(headerReserved1)
	w.PutU8(headerReserved2)
	w.PutU8(lenLo)
	w.PutU8(lenHi)
	w.PutU8(checksum)
	w.PutMac(src)
	w.PutMac(dst)
	w.PutU8(cmd)
	w.PutRaw(payload)
	return w.Bytes(), nil
}

// decode parses one complete L2 frame, validating the header checksum
// per spec.md's invariant.
func decode(buf []byte) (*Frame, error) {
	r := codec.NewReader(buf)
	delim, err := r.U8()
	if err != nil || delim != delimiter {
		return nil, fmt.Errorf("%w: bad delimiter", ErrChecksum)
	}
	h1, _ := r.U8()
	h2, _ := r.U8()
	lenLo, _ := r.U8()
	lenHi, _ := r.U8()
	checksum, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("l2: short header: %w", err)
	}
	want := delimiter ^ h1 ^ h2 ^ lenLo ^ lenHi
	if checksum != want {
		return nil, ErrChecksum
	}

	length := uint16(lenLo) | uint16(lenHi)<<8
	if int(length) < headerFixedLen {
		return nil, fmt.Errorf("l2: declared length %d shorter than header", length)
	}
	payloadLen := int(length) - headerFixedLen

	src, err := r.Mac()
	if err != nil {
		return nil, err
	}
	dst, err := r.Mac()
	if err != nil {
		return nil, err
	}
	cmd, err := r.U8()
	if err != nil {
		return nil, err
	}
	payload, err := r.Bytes(payloadLen)
	if err != nil {
		return nil, fmt.Errorf("l2: short payload: %w", err)
	}

	return &Frame{
		Cmd:     cmd,
		SrcMAC:  src,
		DstMAC:  dst,
		Payload: append([]byte(nil), payload...),
	}, nil
}

// Send frames (cmd, payload) with the local socket MAC as source and
// writes it to the transport.
func (c *Conn) Send(cmd byte, payload []byte, dst [6]byte) error {
	frame, err := encode(cmd, c.rw.LocalMAC(), dst, payload)
	if err != nil {
		return err
	}
	_, err = c.rw.Write(frame, dst)
	return err
}

// Receive reads and deframes one L2 packet within the connection's
// timeout.
func (c *Conn) Receive() (*Frame, error) {
	buf := make([]byte, 0xFF+1)
	n, _, err := c.rw.Read(buf, c.timeout)
	if err != nil {
		return nil, err
	}
	return decode(buf[:n])
}

// HandshakeResult reports what connect-time enumeration learned.
type HandshakeResult struct {
	InverterMAC [6]byte
	DeviceNum   int
	NetID       uint16
}

// Handshake runs spec.md §4.2's connect sequence: read the inverter's
// unsolicited announcement, query the network, then collect enumeration
// replies (cmd 0x0A) until a terminator frame arrives. The terminator is
// an enumeration frame carrying an empty payload.
func Handshake(conn *Conn) (*HandshakeResult, error) {
	announce, err := conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("l2: waiting for inverter announcement: %w", err)
	}

	if err := conn.Send(cmdQueryNetwork, []byte{0x00, 0x04, 0x70, 0x00}, announce.SrcMAC); err != nil {
		return nil, fmt.Errorf("l2: send query-network: %w", err)
	}

	result := &HandshakeResult{InverterMAC: announce.SrcMAC}
	for {
		frame, err := conn.Receive()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEnumerationTimeout, err)
		}
		if frame.Cmd != cmdEnumDevices {
			continue
		}
		if len(frame.Payload) == 0 {
			break // terminator frame
		}
		if len(frame.Payload) >= 2 {
			result.NetID = uint16(frame.Payload[0]) | uint16(frame.Payload[1])<<8
		}
		result.DeviceNum++
	}
	return result, nil
}

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

// Package smanet implements the PPP/HDLC-like SMANET transport carried
// over SMA-Bluetooth L2 command 0x01: byte stuffing, a CRC-16/X.25 frame
// check sequence, multi-fragment reassembly, and protocol-ID demux.
package smanet

import (
	"errors"
	"fmt"

	"github.com/wwhai/pvlib-go/codec"
	"github.com/wwhai/pvlib-go/l2"
)

// ProtocolSMADATA2Plus is the protocol identifier that demultiplexes to
// the SMA-DATA2+ application layer.
const ProtocolSMADATA2Plus uint16 = 0x6560

const (
	delimiter byte = 0x7E
	escape    byte = 0x7D
	escapeXor byte = 0x20

	headerByte      byte = 0xFF
	fragCtrlLowBits byte = 0x03

	// innerHeaderSize is header_byte+fragment_ctrl+protocol(2)+src(6)+00,00+dst(6)+00,00
	innerHeaderSize = 1 + 1 + 2 + 8 + 8
	fcsSize         = 2

	// l2MaxUserPayload is the largest chunk of the wrapped, stuffed byte
	// stream one L2 command-0x01 frame can carry.
	l2MaxUserPayload = 0xFF - 18
)

// ErrFCS is returned when the reassembled message's trailing FCS does
// not match the recomputed CRC-16/X.25 over the unstuffed payload.
var ErrFCS = errors.New("smanet: fcs mismatch")

// ErrStuffing is returned when an unescaped delimiter appears inside the
// body of a frame being unstuffed.
var ErrStuffing = errors.New("smanet: stray delimiter in stuffed body")

var stuffable = map[byte]bool{
	0x7D: true,
	0x7E: true,
	0x11: true,
	0x12: true,
	0x13: true,
}

// Stuff escapes every byte in the stuffable set as 0x7D followed by
// byte^0x20. The result never contains a literal 0x7E.
func Stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8+2)
	for _, b := range data {
		if stuffable[b] {
			out = append(out, escape, b^escapeXor)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// Unstuff reverses Stuff. It returns ErrStuffing if a bare 0x7E survives
// in the body, which would indicate a truncated or corrupted frame.
func Unstuff(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == delimiter {
			return nil, ErrStuffing
		}
		if b == escape {
			i++
			if i >= len(data) {
				return nil, fmt.Errorf("smanet: dangling escape byte")
			}
			out = append(out, data[i]^escapeXor)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Message is a fully reassembled, verified SMANET-layer message.
type Message struct {
	Protocol uint16
	SrcMAC   [6]byte
	DstMAC   [6]byte
	UserData []byte
}

// buildInner constructs the unstuffed header+userData+fcs payload for a
// given fragment count, so the fragment-control byte can be set before
// stuffing.
func buildInner(protocol uint16, userData []byte, src, dst [6]byte, remaining int) []byte {
	w := codec.NewWriter(innerHeaderSize + len(userData) + fcsSize)
	w.PutU8(headerByte)
	w.PutU8(byte(remaining<<4) | fragCtrlLowBits)
	w.PutU8(byte(protocol >> 8))
	w.PutU8(byte(protocol))
	w.PutMac(src)
	w.PutZero(2)
	w.PutMac(dst)
	w.PutZero(2)
	w.PutRaw(userData)

	fcs := CRC16X25(w.Bytes())
	w.PutU8(byte(fcs))
	w.PutU8(byte(fcs >> 8))
	return w.Bytes()
}

// EncodeFragments builds one logical SMANET message and splits it into
// physical fragments no larger than maxFragment bytes each, suitable for
// sending one-per-L2-command-0x01 frame. The fragment-control byte is
// itself subject to stuffing (0x13, one fragment remaining, is escaped),
// so it is recomputed for up to three passes until it matches the
// number of fragments the stuffed frame splits into; the frame from the
// last pass is the one that is split.
func EncodeFragments(protocol uint16, userData []byte, src, dst [6]byte, maxFragment int) ([][]byte, error) {
	if maxFragment <= innerHeaderSize {
		return nil, fmt.Errorf("smanet: maxFragment %d too small for header", maxFragment)
	}

	remaining := 0
	var wire []byte
	for pass := 0; pass < 3; pass++ {
		inner := buildInner(protocol, userData, src, dst, remaining)
		stuffed := Stuff(inner)
		wire = make([]byte, 0, len(stuffed)+2)
		wire = append(wire, delimiter)
		wire = append(wire, stuffed...)
		wire = append(wire, delimiter)

		need := (len(wire) + maxFragment - 1) / maxFragment
		if need < 1 {
			need = 1
		}
		if need-1 == remaining {
			break
		}
		remaining = need - 1
	}
	if remaining > 0x0F {
		return nil, fmt.Errorf("smanet: message needs %d fragments, exceeds 4-bit counter", remaining+1)
	}

	fragments := make([][]byte, 0, remaining+1)
	for len(wire) > 0 {
		n := len(wire)
		if n > maxFragment {
			n = maxFragment
		}
		fragments = append(fragments, wire[:n])
		wire = wire[n:]
	}
	return fragments, nil
}

// Reassembler accumulates raw L2 command-0x01 payloads until one
// complete delimited SMANET frame is available, then verifies and
// decodes it. Delimiters are never stuffed, so a bare 0x7E is always a
// genuine frame boundary.
type Reassembler struct {
	buf     []byte
	started bool
}

// Feed appends one physical fragment's raw bytes. It returns a decoded
// Message once a full 0x7E ... 0x7E frame has been accumulated, or nil
// while more fragments are still needed.
func (r *Reassembler) Feed(fragment []byte) (*Message, error) {
	r.buf = append(r.buf, fragment...)

	start := -1
	for i, b := range r.buf {
		if b == delimiter {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil
	}

	end := -1
	for i := start + 1; i < len(r.buf); i++ {
		if r.buf[i] == delimiter {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, nil
	}

	body := r.buf[start+1 : end]
	r.buf = r.buf[end+1:]

	unstuffed, err := Unstuff(body)
	if err != nil {
		return nil, err
	}
	if len(unstuffed) < innerHeaderSize+fcsSize {
		return nil, fmt.Errorf("smanet: frame too short (%d bytes)", len(unstuffed))
	}

	payload := unstuffed[:len(unstuffed)-fcsSize]
	fcsLo := unstuffed[len(unstuffed)-fcsSize]
	fcsHi := unstuffed[len(unstuffed)-fcsSize+1]
	wantFCS := uint16(fcsLo) | uint16(fcsHi)<<8
	if got := CRC16X25(payload); got != wantFCS {
		return nil, ErrFCS
	}

	rd := codec.NewReader(payload)
	if _, err := rd.U8(); err != nil { // header byte, ignored
		return nil, err
	}
	if _, err := rd.U8(); err != nil { // fragment control, ignored post-reassembly
		return nil, err
	}
	protoHi, err := rd.U8()
	if err != nil {
		return nil, err
	}
	protoLo, err := rd.U8()
	if err != nil {
		return nil, err
	}
	src, err := rd.Mac()
	if err != nil {
		return nil, err
	}
	if err := rd.Skip(2); err != nil {
		return nil, err
	}
	dst, err := rd.Mac()
	if err != nil {
		return nil, err
	}
	if err := rd.Skip(2); err != nil {
		return nil, err
	}
	userData, err := rd.Bytes(rd.Remaining())
	if err != nil {
		return nil, err
	}

	return &Message{
		Protocol: uint16(protoHi)<<8 | uint16(protoLo),
		SrcMAC:   src,
		DstMAC:   dst,
		UserData: append([]byte(nil), userData...),
	}, nil
}

// Conn drives SMANET messages over an l2.Conn, tunneling on L2 command
// 0x01 and demultiplexing by protocol ID. Messages for protocols other
// than the one this Conn was built for are silently discarded, since
// another protocol may be multiplexed on the same link.
type Conn struct {
	l2       *l2.Conn
	protocol uint16
}

const smanetCommand byte = 0x01

// NewConn builds a SMANET connection over l2Conn, demultiplexing only
// frames whose protocol ID equals protocol.
func NewConn(l2Conn *l2.Conn, protocol uint16) *Conn {
	return &Conn{l2: l2Conn, protocol: protocol}
}

// Send fragments and transmits userData to dst.
func (c *Conn) Send(userData []byte, src, dst [6]byte) error {
	fragments, err := EncodeFragments(c.protocol, userData, src, dst, l2MaxUserPayload)
	if err != nil {
		return err
	}
	for _, frag := range fragments {
		if err := c.l2.Send(smanetCommand, frag, dst); err != nil {
			return fmt.Errorf("smanet: send fragment: %w", err)
		}
	}
	return nil
}

// Receive blocks until a complete message for this Conn's protocol has
// been reassembled, discarding L2 traffic for other commands or SMANET
// messages tagged with a different protocol ID.
func (c *Conn) Receive() (*Message, error) {
	var reasm Reassembler
	for {
		frame, err := c.l2.Receive()
		if err != nil {
			return nil, err
		}
		if frame.Cmd != smanetCommand {
			continue
		}
		msg, err := reasm.Feed(frame.Payload)
		if err != nil {
			return nil, fmt.Errorf("smanet: reassembly: %w", err)
		}
		if msg == nil {
			continue
		}
		if msg.Protocol != c.protocol {
			reasm = Reassembler{}
			continue
		}
		return msg, nil
	}
}

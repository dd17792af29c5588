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

// Package data2plus implements the SMA-DATA2+ application layer:
// addressing, the transaction counter, the connect/authenticate/time-sync
// sequence, channel and archive queries, and decoding of the public
// measurement types.
package data2plus

import (
	"errors"
	"fmt"

	"github.com/wwhai/pvlib-go/codec"
	"github.com/wwhai/pvlib-go/pvlog"
)

var log = pvlog.New("data2plus")

// ProtocolID is the SMANET protocol identifier that demultiplexes to
// this layer.
const ProtocolID uint16 = 0x6560

const headerSize = 24

// ctrl flags.
const (
	CtrlMaster      byte = 1<<7 | 1<<5
	CtrlNoBroadcast byte = 1 << 6
	CtrlUnknown     byte = 1 << 3
	ctrlAckAuth     byte = 0xE8 // second flag byte suppressed for this ctrl value
)

// Broadcast address sentinels.
const (
	SerialBroadcast uint32 = 0xFFFFFFFF
	SysIDBroadcast  uint16 = 0xFFFF
)

// MACBroadcast is the L2 destination used for broadcast SMA-DATA2+ sends.
var MACBroadcast = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Local identity this library presents to inverters. Fixed values used
// by every SMA-DATA2+ client.
const (
	localSysID  uint16 = 0x0078
	localSerial uint32 = 0x3a8b74b6
)

// TransactionCounterStart is the initial and wrap-around value of the
// 16-bit transaction counter.
const TransactionCounterStart uint16 = 0x8000

// NumRetries is how many extra attempts the retry wrapper makes beyond
// the first.
const NumRetries = 3

// ErrProtocol wraps SMA-DATA2+ level violations: unexpected opcode or
// object, wrong transaction counter, malformed record.
var ErrProtocol = errors.New("data2plus: protocol error")

// ErrAuth is returned by authenticate when devices are known but none
// of the replies it reads comes from a device in the device table. A
// reply whose echoed password does not match is logged, not treated
// as a failure.
var ErrAuth = errors.New("data2plus: authentication failed")

// ErrUnknownDevice is returned when a unicast send targets a serial not
// present in the device table.
var ErrUnknownDevice = errors.New("data2plus: device not in device list")

// Packet is one SMA-DATA2+ application packet, header fields decoded.
type Packet struct {
	Ctrl             byte
	DstSysID         uint16
	DstSerial        uint32
	SrcSysID         uint16
	SrcSerial        uint32
	SrcMAC           [6]byte
	Flag             byte
	PacketNum        byte
	Start            bool
	TransactionCntr  uint16
	Data             []byte
}

// nextTransactionCntr implements the wrap rule: values below the start
// value, or the maximum uint16, reset to TransactionCounterStart;
// otherwise the counter simply increments.
func nextTransactionCntr(cur uint16) uint16 {
	if cur < TransactionCounterStart || cur == 0xFFFF {
		return TransactionCounterStart
	}
	return cur + 1
}

// encodeHeader builds the 24-byte SMA-DATA2+ header per spec.md §3. dst
// carries either a broadcast address or a resolved device; flag is the
// packet's own flag byte, echoed at offset 17 unless ctrl is the
// acknowledge-authentication value, in which case offset 17 is zero.
// packetNum is only written when start is true.
func encodeHeader(p *Packet, transactionCntr uint16, dstMAC [6]byte) ([]byte, error) {
	if len(p.Data)%4 != 0 {
		return nil, fmt.Errorf("data2plus: payload length %d not a multiple of 4", len(p.Data))
	}

	w := codec.NewWriter(headerSize + len(p.Data))
	w.PutU8(byte((len(p.Data) + headerSize) / 4))
	w.PutU8(p.Ctrl)
	w.PutU16(p.DstSysID)
	w.PutU32(p.DstSerial)
	w.PutU8(0x00)
	w.PutU8(p.Flag)
	w.PutU16(localSysID)
	w.PutU32(localSerial)
	w.PutU8(0x00)
	if p.Ctrl == ctrlAckAuth {
		w.PutU8(0x00)
	} else {
		w.PutU8(p.Flag)
	}
	w.PutU8(0x00)
	w.PutU8(0x00)
	if p.Start {
		w.PutU8(p.PacketNum)
	} else {
		w.PutU8(0x00)
	}
	w.PutU8(0x00)
	w.PutU16(transactionCntr)
	w.PutRaw(p.Data)

	return w.Bytes(), nil
}

// decodeHeader parses a received 24-byte SMA-DATA2+ header and the
// application payload that follows it.
func decodeHeader(buf []byte, srcMAC [6]byte) (*Packet, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: short packet (%d bytes)", ErrProtocol, len(buf))
	}
	r := codec.NewReader(buf)
	if _, err := r.U8(); err != nil { // length/4, not needed once framed
		return nil, err
	}
	ctrl, _ := r.U8()
	dstSysID, _ := r.U16()
	dstSerial, _ := r.U32()
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	flag, _ := r.U8()
	srcSysID, _ := r.U16()
	srcSerial, _ := r.U32()
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	if _, err := r.U8(); err != nil { // dst flag / ctrl==0xE8 zero, not needed
		return nil, err
	}
	if err := r.Skip(2); err != nil {
		return nil, err
	}
	packetNum, _ := r.U8()
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	transactionCntr, err := r.U16()
	if err != nil {
		return nil, err
	}
	data := append([]byte(nil), buf[headerSize:]...)

	// Start has no wire representation independent of the transaction
	// counter: offset 23 is the counter's high byte, not a dedicated
	// marker bit. It isn't reconstructed on decode; only outgoing
	// packets (built by this package) carry a meaningful Start.
	return &Packet{
		Ctrl:            ctrl,
		DstSysID:        dstSysID,
		DstSerial:       dstSerial,
		SrcSysID:        srcSysID,
		SrcSerial:       srcSerial,
		SrcMAC:          srcMAC,
		Flag:            flag,
		PacketNum:       packetNum,
		TransactionCntr: transactionCntr,
		Data:            data,
	}, nil
}

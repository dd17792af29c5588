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

package data2plus

import (
	"fmt"

	"github.com/wwhai/pvlib-go/smanet"
	"github.com/wwhai/pvlib-go/tagfile"
)

// Protocol drives the SMA-DATA2+ application layer over a SMANET
// connection: addressing, the transaction counter, device table, and
// tag table. It owns no transport or framing knowledge of its own.
type Protocol struct {
	net    *smanet.Conn
	local  [6]byte // this adapter's MAC, source of every SMANET frame
	devices []Device
	transactionCntr uint16
	tags   tagfile.Table

	transactionActive bool
}

// NewProtocol builds a Protocol over an already-framed SMANET
// connection. local is the RFCOMM adapter's own MAC address.
func NewProtocol(net *smanet.Conn, local [6]byte, tags tagfile.Table) *Protocol {
	return &Protocol{
		net:             net,
		local:           local,
		transactionCntr: TransactionCounterStart,
		tags:            tags,
	}
}

// Devices returns the discovered device table.
func (p *Protocol) Devices() []Device {
	return p.devices
}

// beginTransaction asserts single-flight use, matching spec.md §4.4.1's
// "no other transaction is active" invariant.
func (p *Protocol) beginTransaction() error {
	if p.transactionActive {
		return fmt.Errorf("%w: transaction already active", ErrProtocol)
	}
	p.transactionActive = true
	return nil
}

// endTransaction closes the in-flight transaction and advances the
// counter per §3's wrap rule.
func (p *Protocol) endTransaction() {
	p.transactionActive = false
	p.transactionCntr = nextTransactionCntr(p.transactionCntr)
}

// resolveDst picks the L2 destination MAC and header dst fields for a
// packet: broadcast sentinels, or a lookup in the device table by
// serial.
func (p *Protocol) resolveDst(serial uint32) (mac [6]byte, sysID uint16, err error) {
	if serial == SerialBroadcast {
		return MACBroadcast, SysIDBroadcast, nil
	}
	dev := findDevice(p.devices, serial)
	if dev == nil {
		return mac, 0, fmt.Errorf("%w: serial %08x", ErrUnknownDevice, serial)
	}
	return dev.MAC, dev.SysID, nil
}

// send builds the 24-byte header for pkt, using the current
// transaction counter, and tunnels it over SMANET to the resolved
// destination.
func (p *Protocol) send(pkt *Packet) error {
	dstMAC, dstSysID, err := p.resolveDst(pkt.DstSerial)
	if err != nil {
		return err
	}
	pkt.DstSysID = dstSysID

	buf, err := encodeHeader(pkt, p.transactionCntr, dstMAC)
	if err != nil {
		return err
	}
	log.Tracef("write data2plus packet len=%d ctrl=%02x dst=%08x", len(buf), pkt.Ctrl, pkt.DstSerial)
	return p.net.Send(buf, p.local, dstMAC)
}

// receive blocks for one SMA-DATA2+ reply and decodes its header.
func (p *Protocol) receive() (*Packet, error) {
	msg, err := p.net.Receive()
	if err != nil {
		return nil, fmt.Errorf("data2plus: receive: %w", err)
	}
	pkt, err := decodeHeader(msg.UserData, msg.SrcMAC)
	if err != nil {
		return nil, err
	}
	log.Tracef("read data2plus packet len=%d ctrl=%02x src=%08x", len(msg.UserData), pkt.Ctrl, pkt.SrcSerial)
	return pkt, nil
}

// requestChannel sends a channel-query request per spec.md §4.4.3 step
// 2: ctrl=MASTER, 12-byte payload 00 02 <object LE16> <from LE32> <to
// LE32>.
func (p *Protocol) requestChannel(serial uint32, object uint16, from, to uint32) error {
	payload := make([]byte, 12)
	payload[0] = 0x00
	payload[1] = 0x02
	payload[2] = byte(object)
	payload[3] = byte(object >> 8)
	putU32le(payload[4:8], from)
	putU32le(payload[8:12], to)

	return p.send(&Packet{
		Ctrl:      CtrlMaster,
		DstSerial: serial,
		Flag:      0x00,
		Data:      payload,
		Start:     true,
	})
}

// readRecords runs one channel-query transaction and returns its
// decoded records.
func (p *Protocol) readRecords(serial uint32, object uint16, from, to uint32, recType RecordType, maxRecords int) ([]Record, error) {
	if err := p.beginTransaction(); err != nil {
		return nil, err
	}
	defer p.endTransaction()

	if err := p.requestChannel(serial, object, from, to); err != nil {
		return nil, fmt.Errorf("data2plus: request channel %04x: %w", object, err)
	}
	pkt, err := p.receive()
	if err != nil {
		return nil, err
	}
	return parseChannelRecords(pkt.Data, object, recType, maxRecords)
}

func putU32le(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

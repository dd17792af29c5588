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
	"time"
)

// Connect runs spec.md §4.4.2's connect sequence over an already
// link-established SMANET connection: logout broadcast, device
// discovery, authentication, and time sync. deviceNum is the count of
// secondary devices the L2 handshake enumerated.
func (p *Protocol) Connect(deviceNum int, password string) error {
	if err := p.logout(); err != nil {
		return fmt.Errorf("data2plus: logout: %w", err)
	}

	if err := withRetry("discover devices", func() error {
		return p.discoverDevices(deviceNum)
	}); err != nil {
		return err
	}

	if err := withRetry("authenticate", func() error {
		return p.authenticate(password)
	}); err != nil {
		return err
	}

	if err := withRetry("sync time", func() error {
		return p.syncTime()
	}); err != nil {
		return err
	}

	log.Infof("connected, %d device(s)", len(p.devices))
	return nil
}

// logout broadcasts the session-reset packet. No reply is expected.
func (p *Protocol) logout() error {
	payload := make([]byte, 8)
	putU32le(payload[0:4], 0xfffd010e)
	putU32le(payload[4:8], 0xffffffff)

	if err := p.beginTransaction(); err != nil {
		return err
	}
	defer p.endTransaction()

	return p.send(&Packet{
		Ctrl:      CtrlMaster,
		DstSerial: SerialBroadcast,
		Flag:      0x03,
		Data:      payload,
		Start:     true,
	})
}

// discoverDevices broadcasts a zero-channel request and reads
// deviceNum replies, recording each responder's identity.
func (p *Protocol) discoverDevices(deviceNum int) error {
	if err := p.beginTransaction(); err != nil {
		return err
	}
	defer p.endTransaction()

	if err := p.requestChannel(SerialBroadcast, 0, 0, 0); err != nil {
		return err
	}

	devices := make([]Device, 0, deviceNum)
	for i := 0; i < deviceNum; i++ {
		pkt, err := p.receive()
		if err != nil {
			return err
		}
		devices = append(devices, Device{
			SysID:  pkt.SrcSysID,
			Serial: pkt.SrcSerial,
			MAC:    pkt.SrcMAC,
		})
	}
	p.devices = devices
	return nil
}

// sendPassword broadcasts the password challenge. The password is
// XOR-0x88 encoded into a fixed 12-byte slot, right-padded with 0x88.
func (p *Protocol) sendPassword(password string) error {
	payload := make([]byte, 32)
	putU32le(payload[0:4], 0xfffd040c)
	payload[4] = 0x07
	// bytes 5..7 reserved, left zero
	putU32le(payload[8:12], 40*365*24*60*60)
	putU32le(payload[12:16], uint32(time.Now().Unix()))
	for i := 16; i < 28; i++ {
		payload[i] = 0x88
	}
	for i := 0; i < 12 && i < len(password); i++ {
		payload[16+i] = password[i] ^ 0x88
	}

	return p.send(&Packet{
		Ctrl:      CtrlMaster,
		DstSerial: SerialBroadcast,
		Flag:      0x01,
		Data:      payload,
		Start:     true,
	})
}

// ackAuth is required for single-inverter (net-ID 1) connections,
// which don't otherwise see their own authentication echoed back.
func (p *Protocol) ackAuth(serial uint32) error {
	payload := make([]byte, 8)
	putU32le(payload[0:4], 0xfffd040d)
	payload[4] = 0x01

	return p.send(&Packet{
		Ctrl:      CtrlMaster | CtrlNoBroadcast | CtrlUnknown,
		DstSerial: serial,
		Flag:      0x01,
		Data:      payload,
		Start:     true,
	})
}

// authenticate sends the password challenge and pulls one reply per
// known device, per spec.md §9's resolution of the degenerate C loop:
// "pull one reply per device, mark the responder authenticated" rather
// than reproducing the original's always-false per-byte comparison.
func (p *Protocol) authenticate(password string) error {
	if err := p.beginTransaction(); err != nil {
		return err
	}
	defer p.endTransaction()

	if err := p.sendPassword(password); err != nil {
		return err
	}

	authenticated := 0
	for range p.devices {
		pkt, err := p.receive()
		if err != nil {
			return err
		}
		dev := findDevice(p.devices, pkt.SrcSerial)
		if dev == nil {
			log.Warningf("authentication answer from unregistered device: %08x", pkt.SrcSerial)
			continue
		}
		if len(pkt.Data) >= 16+len(password) {
			for i := 0; i < len(password); i++ {
				if (pkt.Data[16+i] ^ 0x88) != password[i] {
					log.Infof("plant authentication error, serial: %08x", pkt.SrcSerial)
					break
				}
			}
		}
		dev.Authenticated = true
		authenticated++
	}
	if authenticated == 0 && len(p.devices) > 0 {
		return ErrAuth
	}

	if len(p.devices) == 1 {
		if err := p.ackAuth(p.devices[0].Serial); err != nil {
			return err
		}
	}
	return nil
}

// TimeInfo is what the inverter's half of the time-sync ritual
// reports about its own clock.
type TimeInfo struct {
	InverterTime1 uint32
	LastAdjusted  uint32
	InverterTime2 uint32
	TZOffset      int32
	DST           bool
	Unknown       uint32
}

// syncTime runs the two-step ritual of spec.md §4.4.4. The opaque
// 0x00236d00 word (wire bytes 00 6d 23 00), written three times in the
// outgoing request, is reproduced
// byte-for-byte per spec.md §9; its semantics are undocumented upstream.
func (p *Protocol) syncTime() error {
	if len(p.devices) == 0 {
		return fmt.Errorf("%w: no devices to sync time with", ErrProtocol)
	}

	req := make([]byte, 40)
	putU32le(req[0:4], 0xf000020a)
	putU32le(req[4:8], 0x00236d00)
	putU32le(req[8:12], 0x00236d00)
	putU32le(req[12:16], 0x00236d00)
	putU32le(req[36:40], 1)

	if err := p.beginTransaction(); err != nil {
		return err
	}
	if err := p.send(&Packet{
		Ctrl:      CtrlMaster,
		DstSerial: SerialBroadcast,
		Flag:      0x00,
		Data:      req,
		Start:     true,
	}); err != nil {
		p.endTransaction()
		return err
	}
	p.endTransaction()

	// This reply is not a transaction response: its transaction counter
	// is unrelated to ours, and the reply flag is not set.
	pkt, err := p.receive()
	if err != nil {
		return err
	}
	if len(pkt.Data) != 40 {
		return fmt.Errorf("%w: unexpected time-sync reply length %d", ErrProtocol, len(pkt.Data))
	}

	info := TimeInfo{
		InverterTime1: leU32(pkt.Data[16:20]),
		LastAdjusted:  leU32(pkt.Data[20:24]),
		InverterTime2: leU32(pkt.Data[24:28]),
	}
	tzDst := leU32(pkt.Data[28:32])
	info.TZOffset = int32(tzDst &^ 1)
	info.DST = tzDst&1 != 0
	info.Unknown = leU32(pkt.Data[32:36])
	replyTransactionCntr := pkt.TransactionCntr

	// Acknowledge, using the reply's own transaction counter rather than
	// ours — this packet correlates with the inverter's exchange, not
	// a transaction this client opened.
	ack := make([]byte, 8)
	putU32le(ack[0:4], 0xf000010a)
	putU32le(ack[4:8], 1)
	if err := p.sendWithCounter(&Packet{
		Ctrl:      CtrlMaster | CtrlUnknown | CtrlNoBroadcast,
		DstSerial: p.devices[0].Serial,
		Flag:      0x00,
		Data:      ack,
	}, replyTransactionCntr); err != nil {
		return fmt.Errorf("data2plus: time ack: %w", err)
	}

	echo := make([]byte, 40)
	putU32le(echo[0:4], 0xf000020a)
	putU32le(echo[4:8], 0x00236d00)
	putU32le(echo[8:12], 0x00236d00)
	putU32le(echo[12:16], 0x00236d00)
	putU32le(echo[16:20], info.InverterTime1)
	putU32le(echo[20:24], info.LastAdjusted)
	putU32le(echo[24:28], info.InverterTime2)
	putU32le(echo[28:32], tzDst)
	putU32le(echo[32:36], info.Unknown)
	putU32le(echo[36:40], 1)

	if err := p.beginTransaction(); err != nil {
		return err
	}
	err = p.send(&Packet{
		Ctrl:      CtrlMaster,
		DstSerial: SerialBroadcast,
		Flag:      0x00,
		Data:      echo,
		Start:     true,
	})
	p.endTransaction()
	if err != nil {
		return fmt.Errorf("data2plus: time echo: %w", err)
	}

	now := uint32(time.Now().Unix())
	var deviation uint32
	if now > info.InverterTime1 {
		deviation = now - info.InverterTime1
	} else {
		deviation = info.InverterTime1 - now
	}

	switch {
	case deviation > 15 && deviation < 300:
		log.Infof("time deviation %ds, setting inverter time", deviation)
		set := make([]byte, 40)
		putU32le(set[0:4], 0xf000020a)
		putU32le(set[4:8], 0x00236d00)
		putU32le(set[8:12], 0x00236d00)
		putU32le(set[12:16], 0x00236d00)
		putU32le(set[16:20], now)
		putU32le(set[20:24], now)
		putU32le(set[24:28], now)
		putU32le(set[28:32], tzDst)
		putU32le(set[32:36], info.Unknown+1)
		putU32le(set[36:40], 1)

		if err := p.beginTransaction(); err != nil {
			return err
		}
		err = p.send(&Packet{
			Ctrl:      CtrlMaster,
			DstSerial: SerialBroadcast,
			Flag:      0x00,
			Data:      set,
			Start:     true,
		})
		p.endTransaction()
		if err != nil {
			return fmt.Errorf("data2plus: set time: %w", err)
		}
	case deviation >= 300:
		log.Warningf("time deviation %ds too high, not syncing (avoiding archive discontinuity)", deviation)
	}

	return nil
}

// sendWithCounter bypasses the protocol's own transaction counter,
// stamping the header with an explicit value instead. Used only by the
// time-sync acknowledgment, which correlates with the inverter's own
// exchange rather than a transaction this client opened.
func (p *Protocol) sendWithCounter(pkt *Packet, transactionCntr uint16) error {
	dstMAC, dstSysID, err := p.resolveDst(pkt.DstSerial)
	if err != nil {
		return err
	}
	pkt.DstSysID = dstSysID

	buf, err := encodeHeader(pkt, transactionCntr, dstMAC)
	if err != nil {
		return err
	}
	return p.net.Send(buf, p.local, dstMAC)
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

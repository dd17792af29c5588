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

	"github.com/wwhai/pvlib-go/codec"
)

// Archive objects, per spec.md §4.4.5.
const (
	objEventLogUser      uint16 = 0x7010
	objEventLogInstaller uint16 = 0x7012
	objTotalYield        uint16 = 0x7020
)

const (
	eventEntrySize = 48
	dayEntrySize   = 12
)

// requestArchiveData sends a paged archive request.
func (p *Protocol) requestArchiveData(serial uint32, obj uint16, from, to time.Time) error {
	payload := make([]byte, 12)
	payload[0] = 0x02
	payload[1] = 0x00
	payload[2] = byte(obj)
	payload[3] = byte(obj >> 8)
	putU32le(payload[4:8], uint32(from.Unix()))
	putU32le(payload[8:12], uint32(to.Unix()))

	return p.send(&Packet{
		Ctrl:      CtrlMaster | CtrlNoBroadcast,
		DstSerial: serial,
		Flag:      0x00,
		Data:      payload,
		Start:     true,
	})
}

// readArchivePages runs one paged-archive transaction, validating each
// reply's echoed object and declared entry count, and handing each
// reply's raw entry bytes to decodeEntry until packet_num reaches
// zero.
func (p *Protocol) readArchivePages(serial uint32, obj uint16, from, to time.Time, entrySize int, decodeEntry func(buf []byte)) error {
	if err := p.beginTransaction(); err != nil {
		return err
	}
	defer p.endTransaction()

	if err := p.requestArchiveData(serial, obj, from, to); err != nil {
		return err
	}

	for {
		pkt, err := p.receive()
		if err != nil {
			return err
		}
		if len(pkt.Data) < 12 {
			return fmt.Errorf("%w: archive reply too short (%d bytes)", ErrProtocol, len(pkt.Data))
		}
		r := codec.NewReader(pkt.Data)
		if err := r.Skip(2); err != nil {
			return err
		}
		gotObj, err := r.U16()
		if err != nil {
			return err
		}
		if gotObj != obj {
			return fmt.Errorf("%w: unexpected archive object %04x, want %04x", ErrProtocol, gotObj, obj)
		}
		dataFrom, _ := r.U32()
		dataTo, _ := r.U32()
		entries := int(dataTo) - int(dataFrom) + 1
		if entries <= 0 {
			return fmt.Errorf("%w: unexpected archive entry count %d", ErrProtocol, entries)
		}

		body := pkt.Data[12:]
		for i := 0; i+entrySize <= len(body) && (i/entrySize) < entries; i += entrySize {
			decodeEntry(body[i : i+entrySize])
		}

		if pkt.PacketNum == 0 {
			break
		}
	}
	return nil
}

func parseEventEntry(buf []byte) Event {
	r := codec.NewReader(buf)
	t, _ := r.I32()
	r.Skip(2)  // entryId
	r.Skip(2)  // sysId
	r.Skip(4)  // serial
	eventCode, _ := r.U16()
	return Event{
		Time:  time.Unix(int64(t), 0),
		Value: eventCode,
	}
}

// eventTag pulls the tag field out of a 48-byte event entry without
// redecoding the whole struct, since it lives past the fields Event
// needs.
func eventTag(buf []byte) uint32 {
	if len(buf) < 32 {
		return 0
	}
	// time(4) entryId(2) sysId(2) serial(4) eventCode(2) eventFlags(2)
	// group(4) unknown(4) tag(4) -> offset 24
	return leU32(buf[24:28])
}

// ReadEvents reads the user-level event log in [from, to] and resolves
// messages from the tag table.
func (p *Protocol) ReadEvents(serial uint32, from, to time.Time) ([]Event, error) {
	var events []Event
	err := withRetry("read events", func() error {
		events = nil
		return p.readArchivePages(serial, objEventLogUser, from, to, eventEntrySize, func(buf []byte) {
			ev := parseEventEntry(buf)
			if ev.Time.Before(from) || ev.Time.After(to) {
				return
			}
			if p.tags != nil {
				ev.Message = p.tags.Lookup(eventTag(buf))
			}
			events = append(events, ev)
		})
	})
	return events, err
}

type totalDaySample struct {
	time       time.Time
	totalYield uint64
}

func parseTotalDayEntry(buf []byte) totalDaySample {
	r := codec.NewReader(buf)
	t, _ := r.U32()
	v, _ := r.U64()
	return totalDaySample{time: time.Unix(int64(t), 0), totalYield: v}
}

func (p *Protocol) readTotalDayData(serial uint32, from, to time.Time) ([]totalDaySample, error) {
	var samples []totalDaySample
	err := p.readArchivePages(serial, objTotalYield, from, to, dayEntrySize, func(buf []byte) {
		s := parseTotalDayEntry(buf)
		if s.time.Before(from) || s.time.After(to) || s.totalYield == InvalidU64 {
			return
		}
		samples = append(samples, s)
	})
	return samples, err
}

// ReadDayYield derives daily energy production by differencing
// consecutive total-yield samples, skipping any gap of 48h or more,
// per spec.md §4.4.5.
func (p *Protocol) ReadDayYield(serial uint32, from, to time.Time) ([]DayYield, error) {
	var samples []totalDaySample
	err := withRetry("read total day data", func() error {
		s, err := p.readTotalDayData(serial, from, to)
		if err != nil {
			return err
		}
		samples = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deriveDayYield(samples), nil
}

const dayYieldGapThreshold = 48 * time.Hour

// deriveDayYield differences consecutive samples, skipping any gap of
// 48h or more. Pulled out of ReadDayYield so the derivation itself is
// testable without a transport.
func deriveDayYield(samples []totalDaySample) []DayYield {
	if len(samples) < 2 {
		return nil
	}
	result := make([]DayYield, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if cur.time.Sub(prev.time) >= dayYieldGapThreshold {
			log.Errorf("gap between day-yield samples, skipping")
			continue
		}
		result = append(result, DayYield{
			Date:     cur.time,
			DayYield: int64(cur.totalYield) - int64(prev.totalYield),
		})
	}
	return result
}

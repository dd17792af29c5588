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

	"github.com/wwhai/pvlib-go/codec"
)

// RecordType selects which of the three record body shapes a channel
// query parses.
type RecordType int

const (
	Record1 RecordType = iota // five u32le values, full record 28 bytes
	Record2                   // one u64le value, full record 16 bytes
	Record3                   // 32-byte opaque blob, full record 40 bytes
)

// recordStride is the full per-record size including the 8-byte
// header, confirmed against the original record_length constants
// (28/16/40), not the body size alone.
func recordStride(t RecordType) int {
	switch t {
	case Record1:
		return 28
	case Record2:
		return 16
	case Record3:
		return 40
	default:
		return 0
	}
}

// RecordHeader is the 8-byte header prefixing every record.
type RecordHeader struct {
	Cnt  uint8
	Idx  uint16
	Type uint8
	Time uint32
}

// Record is one decoded channel record.
type Record struct {
	Header RecordHeader
	Type   RecordType
	R1     [5]uint32
	R2     uint64
	R3     [32]byte
}

func parseRecordHeader(buf []byte) (RecordHeader, error) {
	r := codec.NewReader(buf)
	cnt, err := r.U8()
	if err != nil {
		return RecordHeader{}, err
	}
	idx, err := r.U16()
	if err != nil {
		return RecordHeader{}, err
	}
	typ, err := r.U8()
	if err != nil {
		return RecordHeader{}, err
	}
	t, err := r.U32()
	if err != nil {
		return RecordHeader{}, err
	}
	return RecordHeader{Cnt: cnt, Idx: idx, Type: typ, Time: t}, nil
}

// parseChannelRecords validates a channel-query reply and decodes
// records of the declared type, per spec.md §4.4.3 step 3. The reply
// must start with 01 02, its object field must match requestedObject,
// and two 32-bit "unknown" fields (the echoed from/to range) are
// skipped before records begin at offset 12.
func parseChannelRecords(buf []byte, requestedObject uint16, recType RecordType, maxRecords int) ([]Record, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("%w: record reply too short (%d bytes)", ErrProtocol, len(buf))
	}
	r := codec.NewReader(buf)
	b0, _ := r.U8()
	b1, _ := r.U8()
	if b0 != 0x01 || b1 != 0x02 {
		return nil, fmt.Errorf("%w: unexpected record reply preamble %02x %02x", ErrProtocol, b0, b1)
	}
	object, err := r.U16()
	if err != nil {
		return nil, err
	}
	if object != requestedObject {
		return nil, fmt.Errorf("%w: object mismatch, requested %04x got %04x", ErrProtocol, requestedObject, object)
	}
	if err := r.Skip(8); err != nil { // two echoed u32 range fields
		return nil, err
	}

	stride := recordStride(recType)
	var records []Record
	for i := 12; i+8 <= len(buf) && (maxRecords <= 0 || len(records) < maxRecords); i += stride {
		header, err := parseRecordHeader(buf[i:])
		if err != nil {
			break
		}
		rec := Record{Header: header, Type: recType}
		body := buf[i+8:]
		switch recType {
		case Record1:
			if len(body) < 20 {
				break
			}
			br := codec.NewReader(body)
			for k := 0; k < 5; k++ {
				rec.R1[k], _ = br.U32()
			}
		case Record2:
			if len(body) < 8 {
				break
			}
			br := codec.NewReader(body)
			rec.R2, _ = br.U64()
		case Record3:
			if len(body) < 32 {
				break
			}
			copy(rec.R3[:], body[:32])
		}
		records = append(records, rec)
	}
	return records, nil
}

// Attribute is one entry of a record-3 attribute list.
type Attribute struct {
	Code     uint32
	Selected bool
}

const attributeTerminator uint32 = 0xFFFFFE

// parseAttributes decodes a 32-byte attribute-list body into up to
// maxAttrs entries, stopping at the terminator value.
func parseAttributes(data []byte, maxAttrs int) []Attribute {
	var attrs []Attribute
	for idx := 0; idx+4 <= len(data) && len(attrs) < maxAttrs; idx += 4 {
		code := uint32(data[idx]) | uint32(data[idx+1])<<8 | uint32(data[idx+2])<<16
		selected := data[idx+3] != 0
		if code == attributeTerminator {
			break
		}
		attrs = append(attrs, Attribute{Code: code, Selected: selected})
	}
	return attrs
}

func selectedAttribute(attrs []Attribute) (uint32, bool) {
	for _, a := range attrs {
		if a.Selected {
			return a.Code, true
		}
	}
	return 0, false
}

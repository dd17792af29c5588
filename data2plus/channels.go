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
	"bytes"
	"fmt"
	"time"
)

// Channel idx codes, per spec.md §4.4.3's fixed channel map.
const (
	idxTotalPower  = 0x263F
	idxPowerPhase1 = 0x4640
	idxVoltagePhase1 = 0x4648
	idxCurrentPhase1 = 0x4650
	idxFrequency   = 0x4657

	idxDCPower   = 0x251E
	idxDCVoltage = 0x451F
	idxDCCurrent = 0x4521

	idxStatTotalYield    = 0x2601
	idxStatDayYield      = 0x2622
	idxStatOperationTime = 0x462E
	idxStatFeedInTime    = 0x462F

	idxDeviceStatus = 0x2148

	idxDeviceName  = 0x821E
	idxDeviceClass = 0x821F
	idxDeviceType  = 0x8220
	idxDeviceSwVer = 0x8234
)

// channelSpec is the fixed query shape for one channel family: the
// requestChannel object and index range and the record type, so
// ReadAC/ReadDC/etc. differ only in which spec they pass to the one
// generic transaction helper.
type channelSpec struct {
	object   uint16
	from, to uint32
	recType  RecordType
	maxRecs  int
}

var (
	specAC     = channelSpec{object: 0x5100, from: 0x200000, to: 0x50FFFF, recType: Record1, maxRecs: 20}
	specDC     = channelSpec{object: 0x5380, from: 0x200000, to: 0x5000FF, recType: Record1, maxRecs: 9}
	specStats  = channelSpec{object: 0x5400, from: 0x020000, to: 0x50FFFF, recType: Record2, maxRecs: 4}
	specStatus = channelSpec{object: 0x5180, from: 0x214800, to: 0x2148FF, recType: Record3, maxRecs: 1}
	specInfo   = channelSpec{object: 0x5800, from: 0x821E00, to: 0x8234FF, recType: Record3, maxRecs: 10}
)

// readChannel runs one retried channel-query transaction against
// serial and returns the decoded records.
func (p *Protocol) readChannel(serial uint32, spec channelSpec) ([]Record, error) {
	var records []Record
	err := withRetry(fmt.Sprintf("read channel %04x", spec.object), func() error {
		recs, err := p.readRecords(serial, spec.object, spec.from, spec.to, spec.recType, spec.maxRecs)
		if err != nil {
			return err
		}
		records = recs
		return nil
	})
	return records, err
}

func convertS32Passthrough(v uint32) int32 {
	if v != InvalidU32 {
		return int32(v)
	}
	return InvalidS32
}

func convertScaled(v uint32, divisor int64) int32 {
	if v == InvalidU32 {
		return InvalidS32
	}
	return int32(int64(int32(v)) * 1000 / divisor)
}

// ReadAC reads AC spot values for serial, per spec.md §4.4.3.
func (p *Protocol) ReadAC(serial uint32) (AC, error) {
	records, err := p.readChannel(serial, specAC)
	if err != nil {
		return AC{}, err
	}
	return decodeAC(records), nil
}

// decodeAC turns one channel query's records into an AC reading.
// Pulled out of ReadAC so the decode logic is testable without a
// transport, the same pattern deriveDayYield uses for archive data.
func decodeAC(records []Record) AC {
	ac := AC{
		Time:       time.Now(),
		TotalPower: InvalidS32,
		Frequency:  InvalidS32,
		PhaseNum:   3,
		Power:      [3]int32{InvalidS32, InvalidS32, InvalidS32},
		Voltage:    [3]int32{InvalidS32, InvalidS32, InvalidS32},
		Current:    [3]int32{InvalidS32, InvalidS32, InvalidS32},
	}
	for _, r := range records {
		v := r.R1[1] // value2 is the canonical measurement
		switch r.Header.Idx {
		case idxTotalPower:
			ac.TotalPower = convertS32Passthrough(v)
		case idxPowerPhase1, idxPowerPhase1 + 1, idxPowerPhase1 + 2:
			ac.Power[r.Header.Idx-idxPowerPhase1] = convertS32Passthrough(v)
		case idxVoltagePhase1, idxVoltagePhase1 + 1, idxVoltagePhase1 + 2:
			ac.Voltage[r.Header.Idx-idxVoltagePhase1] = convertScaled(v, 100)
		case idxCurrentPhase1, idxCurrentPhase1 + 1, idxCurrentPhase1 + 2:
			ac.Current[r.Header.Idx-idxCurrentPhase1] = convertScaled(v, 1000)
		case idxFrequency:
			if v == InvalidU32 {
				ac.Frequency = InvalidS32
			} else {
				ac.Frequency = int32(int64(v) * 1000 / 100)
			}
		}
	}
	return ac
}

// ReadDC reads DC tracker spot values for serial.
func (p *Protocol) ReadDC(serial uint32) (DC, error) {
	records, err := p.readChannel(serial, specDC)
	if err != nil {
		return DC{}, err
	}
	return decodeDC(records), nil
}

// decodeDC turns one channel query's records into a DC reading.
func decodeDC(records []Record) DC {
	dc := DC{Time: time.Now(), TotalPower: InvalidS32}
	for _, r := range records {
		tracker := int(r.Header.Cnt)
		if tracker < 1 {
			log.Errorf("invalid tracker number: %d", tracker)
			continue
		}
		for tracker > dc.TrackerNum {
			dc.Power = append(dc.Power, InvalidS32)
			dc.Voltage = append(dc.Voltage, InvalidS32)
			dc.Current = append(dc.Current, InvalidS32)
			dc.TrackerNum++
		}
		v := r.R1[1]
		switch r.Header.Idx {
		case idxDCPower:
			dc.Power[tracker-1] = convertS32Passthrough(v)
		case idxDCVoltage:
			dc.Voltage[tracker-1] = convertScaled(v, 100)
		case idxDCCurrent:
			dc.Current[tracker-1] = convertScaled(v, 1000)
		}
	}

	var validPower bool
	for _, pw := range dc.Power {
		if pw != InvalidS32 {
			validPower = true
			break
		}
	}
	if validPower {
		dc.TotalPower = 0
		for _, pw := range dc.Power {
			if pw != InvalidS32 {
				dc.TotalPower += pw
			}
		}
	}
	return dc
}

func convertStatsValue(v uint64) int64 {
	if v != InvalidU64 {
		return int64(v)
	}
	return InvalidS64
}

// ReadStats reads cumulative yield/uptime counters for serial.
func (p *Protocol) ReadStats(serial uint32) (Stats, error) {
	records, err := p.readChannel(serial, specStats)
	if err != nil {
		return Stats{}, err
	}
	return decodeStats(records), nil
}

// decodeStats turns one channel query's records into a Stats reading.
func decodeStats(records []Record) Stats {
	stats := Stats{
		Time:          time.Now(),
		TotalYield:    InvalidS64,
		DayYield:      InvalidS64,
		OperationTime: InvalidS64,
		FeedInTime:    InvalidS64,
	}
	for _, r := range records {
		v := convertStatsValue(r.R2)
		switch r.Header.Idx {
		case idxStatTotalYield:
			stats.TotalYield = v
		case idxStatDayYield:
			stats.DayYield = v
		case idxStatOperationTime:
			stats.OperationTime = v
		case idxStatFeedInTime:
			stats.FeedInTime = v
		}
	}
	return stats
}

// ReadStatus reads the inverter's device status, queried broadcast
// per the original's SERIAL_BROADCAST call on this channel.
func (p *Protocol) ReadStatus() (Status, error) {
	records, err := p.readChannel(SerialBroadcast, specStatus)
	if err != nil {
		return Status{}, err
	}
	return decodeStatus(records), nil
}

// decodeStatus turns one channel query's records into a Status reading.
func decodeStatus(records []Record) Status {
	status := Status{Status: StatusUnknown}
	for _, r := range records {
		if r.Header.Idx != idxDeviceStatus {
			log.Errorf("unexpected idx in status reply: %04x", r.Header.Idx)
			continue
		}
		status.Time = time.Unix(int64(r.Header.Time), 0)
		attrs := parseAttributes(r.R3[:], 8)
		if code, ok := selectedAttribute(attrs); ok {
			status.Number = code
			status.Status = statusFromCode(code)
		}
	}
	return status
}

// parseFirmwareVersion decodes the last four bytes of the DEVICE_SWVER
// body into "d.dd.dd.X". Bytes 18/19 above 9 are rejected.
func parseFirmwareVersion(data []byte) (string, error) {
	if len(data) < 20 {
		return "", fmt.Errorf("%w: firmware body too short", ErrProtocol)
	}
	if data[18] > 9 || data[19] > 9 {
		return "", fmt.Errorf("%w: invalid firmware version bytes %02x%02x%02x%02x",
			ErrProtocol, data[16], data[17], data[18], data[19])
	}

	var releaseType string
	switch data[16] {
	case 0:
		releaseType = "N"
	case 1:
		releaseType = "E"
	case 2:
		releaseType = "A"
	case 3:
		releaseType = "B"
	case 4:
		releaseType = "R"
	case 5:
		releaseType = "S"
	default:
		releaseType = fmt.Sprintf("%02d", data[16])
	}

	return fmt.Sprintf("%d.%02d.%02d.%s", data[19], data[18], data[17], releaseType), nil
}

// ReadInverterInfo reads device identity for serial.
func (p *Protocol) ReadInverterInfo(serial uint32) (InverterInfo, error) {
	records, err := p.readChannel(serial, specInfo)
	if err != nil {
		return InverterInfo{}, err
	}
	return decodeInverterInfo(records), nil
}

// decodeInverterInfo turns one channel query's records into an
// InverterInfo reading.
func decodeInverterInfo(records []Record) InverterInfo {
	info := InverterInfo{Manufacturer: "SMA"}
	for _, r := range records {
		d := r.R3[:]
		switch r.Header.Idx {
		case idxDeviceName:
			if !bytes.HasPrefix(d, []byte("SN: ")) {
				log.Warningf("unexpected device name format")
			}
			info.Name = trimNullPadded(d)
		case idxDeviceClass:
			attrs := parseAttributes(d, 8)
			if code, ok := selectedAttribute(attrs); ok {
				log.Debugf("device class: %d", code)
			}
		case idxDeviceType:
			attrs := parseAttributes(d, 8)
			if code, ok := selectedAttribute(attrs); ok {
				info.Type = fmt.Sprintf("%d", code)
			}
		case idxDeviceSwVer:
			if version, err := parseFirmwareVersion(d); err != nil {
				log.Warningf("invalid firmware format, ignoring: %v", err)
			} else {
				info.FirmwareVersion = version
			}
		}
	}
	return info
}

func trimNullPadded(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

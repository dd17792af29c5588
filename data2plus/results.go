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
	"math"
	"time"
)

// Sentinel values meaning "unknown" for each numeric kind, per
// spec.md §3.
const (
	InvalidS32 int32  = math.MinInt32
	InvalidS64 int64  = math.MinInt64
	InvalidU32 uint32 = 0xFFFFFFFF
	InvalidU64 uint64 = 0xFFFFFFFFFFFFFFFF
)

// AC is a spot reading of the AC side of the inverter.
type AC struct {
	Time       time.Time
	TotalPower int32
	Frequency  int32 // mHz
	PhaseNum   int
	Power      [3]int32
	Voltage    [3]int32 // mV
	Current    [3]int32 // mA
}

func (ac AC) String() string {
	return fmt.Sprintf("AC{totalPower=%d phases=%d}", ac.TotalPower, ac.PhaseNum)
}

// DC is a spot reading of the DC (tracker) side of the inverter.
type DC struct {
	Time       time.Time
	TotalPower int32
	TrackerNum int
	Power      []int32
	Voltage    []int32 // mV
	Current    []int32 // mA
}

func (dc DC) String() string {
	return fmt.Sprintf("DC{totalPower=%d trackers=%d}", dc.TotalPower, dc.TrackerNum)
}

// Stats holds the cumulative yield and uptime counters.
type Stats struct {
	Time          time.Time
	TotalYield    int64 // Wh
	DayYield      int64 // Wh
	OperationTime int64 // s
	FeedInTime    int64 // s
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats{totalYield=%d dayYield=%d}", s.TotalYield, s.DayYield)
}

// StatusCode is the inverter's decoded operating state.
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusOK
	StatusError
	StatusOff
	StatusWarning
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusOff:
		return "OFF"
	case StatusWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// statusFromCode maps spec.md §4.4.3's raw attribute code to a
// StatusCode, total over all five outcomes.
func statusFromCode(code uint32) StatusCode {
	switch code {
	case 307:
		return StatusOK
	case 35:
		return StatusError
	case 303:
		return StatusOff
	case 455:
		return StatusWarning
	default:
		return StatusUnknown
	}
}

// Status is the inverter's decoded operating status.
type Status struct {
	Time   time.Time
	Status StatusCode
	Number uint32 // raw attribute code
}

func (s Status) String() string {
	return fmt.Sprintf("Status{%s number=%d}", s.Status, s.Number)
}

// InverterInfo is device identity: manufacturer, name, type and
// firmware version.
type InverterInfo struct {
	Manufacturer string
	Name         string
	Type         string
	FirmwareVersion string
}

func (i InverterInfo) String() string {
	return fmt.Sprintf("InverterInfo{%s %s fw=%s}", i.Manufacturer, i.Name, i.FirmwareVersion)
}

// DayYield is one day's energy production, derived by differencing
// consecutive total-yield archive samples.
type DayYield struct {
	Date     time.Time
	DayYield int64 // Wh
}

// Event is one decoded event-log entry.
type Event struct {
	Time    time.Time
	Value   uint16 // event code
	Message string // resolved from the tag table, empty if unknown
}

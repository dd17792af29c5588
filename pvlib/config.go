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

// Package pvlib is the public façade for talking to an SMA string
// inverter over Bluetooth RFCOMM: open a transport, Connect a Plant,
// then read AC/DC/status/yield data through its methods.
package pvlib

import "time"

// Config holds the tunables a host may want to override when opening a
// Plant, in the same flavor as the teacher's RTUConfig/DefaultRTUConfig:
// a concrete struct with a Default constructor rather than an options
// bag.
type Config struct {
	// ReadTimeout bounds each single transport read.
	ReadTimeout time.Duration
	// NumRetries records the retry budget for callers that want to know
	// it up front. Plant does not read it: the budget actually applied
	// is the fixed data2plus.NumRetries.
	NumRetries int
	// DeviceNum is the number of secondary devices expected on the
	// piconet. Connect uses it as the number of discovery replies to
	// collect only when the L2 handshake enumerates no devices;
	// otherwise the handshake's count is used.
	DeviceNum int
	// Password is the plant's authentication password, XOR-0x88
	// encoded during the connect sequence.
	Password string
	// ResourceDir is passed to tagfile.Resolve to locate the tag file
	// used for event-log message lookup. Empty means events are
	// returned without resolved messages.
	ResourceDir string
}

// DefaultConfig returns sane defaults: a 5s read timeout, 3 extra
// retries (matching data2plus.NumRetries), one device, no password,
// and no resource directory.
func DefaultConfig() Config {
	return Config{
		ReadTimeout: 5 * time.Second,
		NumRetries:  3,
		DeviceNum:   1,
	}
}

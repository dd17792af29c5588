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

package pvlib

import (
	"errors"
	"fmt"

	"github.com/wwhai/pvlib-go/data2plus"
	"github.com/wwhai/pvlib-go/l2"
	"github.com/wwhai/pvlib-go/smanet"
	"github.com/wwhai/pvlib-go/transport"
)

// Sentinel error kinds per spec.md §7. Every lower-layer error a Plant
// method returns is wrapped in one of these with %w, so
// errors.Is(err, pvlib.ErrFrame) etc. works across layers the way
// hootrhino/gomodbus's ModbusError lets callers test typed failures
// without a getter.
var (
	// ErrTransport covers socket open/read/write failure, including
	// timeout.
	ErrTransport = errors.New("pvlib: transport error")
	// ErrFrame covers L2 or SMANET framing violations: bad length,
	// bad checksum, bad FCS, stuffing violation.
	ErrFrame = errors.New("pvlib: frame error")
	// ErrProtocolViolation covers unexpected opcode/object, wrong
	// transaction counter, or a malformed record.
	ErrProtocolViolation = errors.New("pvlib: protocol error")
	// ErrAuth is returned when authentication during Connect gets no
	// reply from any known device (see data2plus.ErrAuth).
	ErrAuth = errors.New("pvlib: authentication failed")
	// ErrUnsupported covers protocol versions, firmware quirks, or a
	// multi-inverter plant beyond the current single-device limit.
	ErrUnsupported = errors.New("pvlib: unsupported")
	// ErrNotConnected is returned by any read method called before
	// Connect succeeds, or after Close.
	ErrNotConnected = errors.New("pvlib: not connected")
)

// wrapErr classifies a lower-layer error into one of the sentinel
// kinds above and wraps it with %w, so the original error survives
// errors.Is/errors.As while callers get a stable, small error surface
// to switch on.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, transport.ErrNotConnected):
		return fmt.Errorf("%w: %w", ErrTransport, err)
	case errors.Is(err, l2.ErrChecksum), errors.Is(err, l2.ErrEnumerationTimeout),
		errors.Is(err, smanet.ErrFCS), errors.Is(err, smanet.ErrStuffing):
		return fmt.Errorf("%w: %w", ErrFrame, err)
	case errors.Is(err, data2plus.ErrAuth):
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case errors.Is(err, data2plus.ErrProtocol), errors.Is(err, data2plus.ErrUnknownDevice):
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	default:
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
}

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

// Device is one inverter discovered on the piconet: its SMA-DATA2+
// address, its L2 MAC, and whether authentication has succeeded.
type Device struct {
	SysID         uint16
	Serial        uint32
	MAC           [6]byte
	Authenticated bool
}

func findDevice(devices []Device, serial uint32) *Device {
	for i := range devices {
		if devices[i].Serial == serial {
			return &devices[i]
		}
	}
	return nil
}

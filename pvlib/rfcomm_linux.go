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

//go:build linux

package pvlib

import (
	"time"

	"github.com/wwhai/pvlib-go/transport"
)

func init() {
	RegisterConnection("rfcomm", func(addr string, _ time.Duration) (transport.ReadWriter, error) {
		r := transport.NewRFCOMM()
		if err := r.Connect(addr); err != nil {
			return nil, err
		}
		return r, nil
	})
}

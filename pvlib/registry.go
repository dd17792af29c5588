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
	"fmt"
	"sync"
	"time"

	"github.com/wwhai/pvlib-go/data2plus"
	"github.com/wwhai/pvlib-go/smanet"
	"github.com/wwhai/pvlib-go/tagfile"
	"github.com/wwhai/pvlib-go/transport"
)

// ConnectionHandle names a registered transport kind ("rfcomm" on
// Linux is the only one registered here). Generalized from hootrhino/gomodbus's GetMode()
// string + 2-way switch (enhancement-modbus.go) into a map-based
// registry, per spec.md §9's call for tagged variants over virtual
// dispatch: adding a transport kind means one RegisterConnection call,
// not a new case in every switch that dispatches on mode.
type ConnectionHandle string

// ProtocolHandle names a registered application-layer kind. Only
// "data2plus" ships today; the registry exists so a second SMA wire
// protocol could be added without touching Plant.
type ProtocolHandle string

// ConnectionFactory opens a transport.ReadWriter given a connection
// string (e.g. a Bluetooth address) and a timeout.
type ConnectionFactory func(addr string, timeout time.Duration) (transport.ReadWriter, error)

// ProtocolFactory builds an application-layer protocol over an
// already-framed SMANET connection.
type ProtocolFactory func(net *smanet.Conn, local [6]byte, tags tagfile.Table) protocolAPI

var (
	registryMu  sync.RWMutex
	connections = map[ConnectionHandle]ConnectionFactory{}
	protocols   = map[ProtocolHandle]ProtocolFactory{}
)

func init() {
	RegisterProtocol("data2plus", func(net *smanet.Conn, local [6]byte, tags tagfile.Table) protocolAPI {
		return data2plus.NewProtocol(net, local, tags)
	})
}

// RegisterProtocol adds a named application-layer factory. Panics on a
// duplicate handle, matching RegisterConnection's fail-fast behavior.
func RegisterProtocol(handle ProtocolHandle, factory ProtocolFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := protocols[handle]; exists {
		panic(fmt.Sprintf("pvlib: protocol handle %q already registered", handle))
	}
	protocols[handle] = factory
}

// openProtocol resolves a registered protocol factory.
func openProtocol(handle ProtocolHandle, net *smanet.Conn, local [6]byte, tags tagfile.Table) (protocolAPI, error) {
	registryMu.RLock()
	factory, ok := protocols[handle]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: protocol kind %q not registered", ErrUnsupported, handle)
	}
	return factory(net, local, tags), nil
}

// RegisterConnection adds a named transport factory. Safe to call from
// an init() function; panics on a duplicate handle, the same
// fail-fast-at-startup behavior as a duplicate flag or route
// registration.
func RegisterConnection(handle ConnectionHandle, factory ConnectionFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := connections[handle]; exists {
		panic(fmt.Sprintf("pvlib: connection handle %q already registered", handle))
	}
	connections[handle] = factory
}

// openConnection resolves a registered connection factory.
func openConnection(handle ConnectionHandle, addr string, timeout time.Duration) (transport.ReadWriter, error) {
	registryMu.RLock()
	factory, ok := connections[handle]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: connection kind %q not registered", ErrUnsupported, handle)
	}
	return factory(addr, timeout)
}

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
	"sync"
	"time"

	"github.com/wwhai/pvlib-go/data2plus"
	"github.com/wwhai/pvlib-go/l2"
	"github.com/wwhai/pvlib-go/smanet"
	"github.com/wwhai/pvlib-go/tagfile"
	"github.com/wwhai/pvlib-go/transport"
)

// protocolAPI is what Plant needs from an application-layer protocol.
// data2plus.Protocol satisfies it; the interface exists so a second
// protocol registered via RegisterProtocol could stand in without
// touching Plant.
type protocolAPI interface {
	Connect(deviceNum int, password string) error
	Devices() []data2plus.Device
	ReadAC(serial uint32) (data2plus.AC, error)
	ReadDC(serial uint32) (data2plus.DC, error)
	ReadStats(serial uint32) (data2plus.Stats, error)
	ReadStatus() (data2plus.Status, error)
	ReadInverterInfo(serial uint32) (data2plus.InverterInfo, error)
	ReadEvents(serial uint32, from, to time.Time) ([]data2plus.Event, error)
	ReadDayYield(serial uint32, from, to time.Time) ([]data2plus.DayYield, error)
}

// Plant is the public façade for one inverter (or small piconet of
// inverters) reachable over a single RFCOMM link. It composes a
// transport.ReadWriter (via l2.Conn and smanet.Conn) and an
// application-layer protocol, grounded on the teacher's ModbusHandler
// (handler.go), which likewise composes a transporter and a packager
// behind one façade type implementing a single capability interface.
//
// Plant is not safe for concurrent use from multiple goroutines: the
// wire protocol allows only one in-flight transaction, so a mutex
// guards against accidental concurrent calls the way RTUTransporter's
// sync.RWMutex guards its port, even though neither protocol is
// designed to serve concurrent transactions.
type Plant struct {
	mu       sync.Mutex
	rw       transport.ReadWriter
	l2conn   *l2.Conn
	protocol protocolAPI
	config   Config
	connected bool
}

// Open establishes the transport and wraps it in an L2 connection. It
// runs neither the piconet handshake nor the SMA-DATA2+ connect
// sequence; Connect does both.
// connHandle selects a registered transport kind ("rfcomm" on Linux),
// addr is that transport's connection string (a Bluetooth MAC for
// rfcomm).
func Open(connHandle ConnectionHandle, addr string, cfg Config) (*Plant, error) {
	rw, err := openConnection(connHandle, addr, cfg.ReadTimeout)
	if err != nil {
		return nil, wrapErr(err)
	}

	l2conn := l2.NewConn(rw, cfg.ReadTimeout)
	return &Plant{rw: rw, l2conn: l2conn, config: cfg}, nil
}

// Connect runs the piconet enumeration handshake, builds the
// application-layer protocol, and runs its connect sequence
// (logout/discover/authenticate/time-sync).
func (p *Plant) Connect(protoHandle ProtocolHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := l2.Handshake(p.l2conn)
	if err != nil {
		return wrapErr(err)
	}

	deviceNum := p.config.DeviceNum
	if result.DeviceNum > 0 {
		deviceNum = result.DeviceNum
	}

	var tags tagfile.Table
	if p.config.ResourceDir != "" {
		loaded, err := tagfile.Load(tagfile.Resolve(p.config.ResourceDir))
		if err != nil {
			return wrapErr(err)
		}
		tags = loaded
	}

	smanetConn := smanet.NewConn(p.l2conn, smanet.ProtocolSMADATA2Plus)
	protocol, err := openProtocol(protoHandle, smanetConn, p.rw.LocalMAC(), tags)
	if err != nil {
		return err
	}
	p.protocol = protocol

	if err := protocol.Connect(deviceNum, p.config.Password); err != nil {
		return wrapErr(err)
	}
	p.connected = true
	return nil
}

// Devices returns the device table populated during Connect.
func (p *Plant) Devices() ([]data2plus.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	return p.protocol.Devices(), nil
}

// primarySerial returns the first (and, for the supported single-device
// case, only) known device's serial.
func (p *Plant) primarySerial() (uint32, error) {
	devices := p.protocol.Devices()
	if len(devices) == 0 {
		return 0, ErrNotConnected
	}
	return devices[0].Serial, nil
}

// ReadAC reads AC spot values for the primary device.
func (p *Plant) ReadAC() (data2plus.AC, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return data2plus.AC{}, ErrNotConnected
	}
	serial, err := p.primarySerial()
	if err != nil {
		return data2plus.AC{}, err
	}
	ac, err := p.protocol.ReadAC(serial)
	return ac, wrapErr(err)
}

// ReadDC reads DC tracker spot values for the primary device.
func (p *Plant) ReadDC() (data2plus.DC, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return data2plus.DC{}, ErrNotConnected
	}
	serial, err := p.primarySerial()
	if err != nil {
		return data2plus.DC{}, err
	}
	dc, err := p.protocol.ReadDC(serial)
	return dc, wrapErr(err)
}

// ReadStats reads cumulative yield/uptime counters for the primary
// device.
func (p *Plant) ReadStats() (data2plus.Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return data2plus.Stats{}, ErrNotConnected
	}
	serial, err := p.primarySerial()
	if err != nil {
		return data2plus.Stats{}, err
	}
	stats, err := p.protocol.ReadStats(serial)
	return stats, wrapErr(err)
}

// ReadStatus reads the plant's broadcast device status.
func (p *Plant) ReadStatus() (data2plus.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return data2plus.Status{}, ErrNotConnected
	}
	status, err := p.protocol.ReadStatus()
	return status, wrapErr(err)
}

// ReadInverterInfo reads device identity for the primary device.
func (p *Plant) ReadInverterInfo() (data2plus.InverterInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return data2plus.InverterInfo{}, ErrNotConnected
	}
	serial, err := p.primarySerial()
	if err != nil {
		return data2plus.InverterInfo{}, err
	}
	info, err := p.protocol.ReadInverterInfo(serial)
	return info, wrapErr(err)
}

// ReadEvents reads the event log in [from, to] for the primary device.
func (p *Plant) ReadEvents(from, to time.Time) ([]data2plus.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	serial, err := p.primarySerial()
	if err != nil {
		return nil, err
	}
	events, err := p.protocol.ReadEvents(serial, from, to)
	return events, wrapErr(err)
}

// ReadDayYield reads derived daily energy production in [from, to] for
// the primary device.
func (p *Plant) ReadDayYield(from, to time.Time) ([]data2plus.DayYield, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	serial, err := p.primarySerial()
	if err != nil {
		return nil, err
	}
	yields, err := p.protocol.ReadDayYield(serial, from, to)
	return yields, wrapErr(err)
}

// Close releases the underlying transport. Idempotent.
func (p *Plant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return p.rw.Close()
}

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

// Package pvlog is the level-gated logger shared by every layer of
// pvlib. The host owns formatting and the destination; this package
// only decides whether a message clears the configured level and
// attaches the emitting module's name.
package pvlog

import (
	"fmt"
	"strings"
	"sync"
)

// Level is the severity of a log message, ordered low to high.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warning
	Error
	None // Disables logging entirely.
)

var levelToString = map[Level]string{
	Trace:   "TRACE",
	Debug:   "DEBUG",
	Info:    "INFO",
	Warning: "WARNING",
	Error:   "ERROR",
	None:    "NONE",
}

var stringToLevel = map[string]Level{
	"TRACE":   Trace,
	"DEBUG":   Debug,
	"INFO":    Info,
	"WARNING": Warning,
	"ERROR":   Error,
	"NONE":    None,
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := stringToLevel[strings.ToUpper(s)]; ok {
		return lvl, nil
	}
	return None, fmt.Errorf("pvlog: unknown level %q", s)
}

func (l Level) String() string {
	if s, ok := levelToString[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// Callback receives one formatted log line. The host supplies it at
// Init time and owns destination and on-disk formatting; it must be
// safe to call from a single goroutine (the library never calls it
// concurrently with itself, but a caller running several Plants from
// separate goroutines is responsible for making the callback
// reentrant).
type Callback func(module string, level Level, message string)

type logger struct {
	mu       sync.Mutex
	level    Level
	modules  map[string]bool // nil/empty means "all modules enabled"
	callback Callback
}

var global = &logger{level: Info}

// Init installs the process-wide log callback, the set of enabled
// modules (empty means every module), and the minimum level that
// reaches the callback. Matches the teacher's single mutable
// SimpleLogger instance, but here the sink is a plain callback rather
// than an io.WriteCloser since the host, not this library, owns
// formatting.
func Init(cb Callback, modules []string, level Level) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.callback = cb
	global.level = level
	if len(modules) == 0 {
		global.modules = nil
		return
	}
	global.modules = make(map[string]bool, len(modules))
	for _, m := range modules {
		global.modules[m] = true
	}
}

// SetLevel adjusts the minimum level without touching the callback or
// module filter.
func SetLevel(level Level) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.level = level
}

func emit(module string, level Level, format string, args ...interface{}) {
	global.mu.Lock()
	cb := global.callback
	min := global.level
	enabled := global.modules == nil || global.modules[module]
	global.mu.Unlock()

	if cb == nil || min == None || level < min || !enabled {
		return
	}
	cb(module, level, fmt.Sprintf(format, args...))
}

// Logger is a per-package handle that stamps every message with a
// fixed module name, mirroring the teacher's NewSimpleLogger(output,
// level, prefix) constructor.
type Logger struct {
	module string
}

// New returns a Logger tagged with module, the name surfaced to the
// host callback (e.g. "l2", "smanet", "data2plus").
func New(module string) *Logger {
	return &Logger{module: module}
}

func (l *Logger) Tracef(format string, args ...interface{})   { emit(l.module, Trace, format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})   { emit(l.module, Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})    { emit(l.module, Info, format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { emit(l.module, Warning, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { emit(l.module, Error, format, args...) }

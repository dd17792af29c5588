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

// Package tagfile loads the event-tag table used to render event
// messages: a text file of "code=short;long" lines. Malformed lines
// are skipped, not fatal, matching how event descriptions are a
// best-effort enrichment rather than load-bearing data.
package tagfile

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/wwhai/pvlib-go/pvlog"
)

var log = pvlog.New("tagfile")

// Tag is one entry's short and long descriptions.
type Tag struct {
	ShortDesc string
	LongDesc  string
}

// Table maps a 32-bit tag code to its description.
type Table map[uint32]Tag

// Resolve builds the path to the tag file from a resource directory,
// honoring the library's fixed filename convention.
func Resolve(resourceDir string) string {
	return strings.TrimRight(resourceDir, "/") + "/en_US_tags.txt"
}

// Load reads path and returns a Table. Lines missing the '=' or ';'
// separators, or whose code is not an integer, are logged and
// skipped; the file as a whole only fails to load if it cannot be
// opened.
func Load(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table := make(Table)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 || eq+1 >= len(line) {
			log.Warningf("invalid line: %s", line)
			continue
		}
		codeStr := line[:eq]
		rest := line[eq+1:]

		semi := strings.IndexByte(rest, ';')
		if semi < 0 || semi+1 >= len(rest) {
			log.Warningf("invalid line: %s", line)
			continue
		}

		code, err := strconv.ParseUint(codeStr, 10, 32)
		if err != nil {
			log.Warningf("invalid tag code %q: %v", codeStr, err)
			continue
		}

		table[uint32(code)] = Tag{
			ShortDesc: rest[:semi],
			LongDesc:  rest[semi+1:],
		}
	}
	return table, scanner.Err()
}

// Lookup returns the short description for code, or "" if absent.
func (t Table) Lookup(code uint32) string {
	if tag, ok := t[code]; ok {
		return tag.ShortDesc
	}
	return ""
}

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

import "time"

// Sleep is overridable by tests so the retry backoff doesn't slow the
// suite down.
var Sleep = time.Sleep

// withRetry runs fn up to NumRetries+1 times, sleeping attempt seconds
// (1, 2, 3, ...) between failures, per spec.md §4.4.6.
func withRetry(what string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= NumRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == NumRetries {
			log.Errorf("%s failed permanently: %v", what, err)
			return err
		}
		log.Warningf("%s failed, retrying (%d/%d): %v", what, attempt+1, NumRetries, err)
		Sleep(time.Duration(attempt+1) * time.Second)
	}
	return err
}

/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package worker

import (
	"strings"
	"time"
)

// knownFileDateLayouts are the filename date prefixes observed across the
// ingested workbook directories, tried in order before falling back to the
// file's own modification time.
var knownFileDateLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"01-02-2006",
}

// parseFileDate extracts the calendar date a spreadsheet file names itself
// after (its leading token, before the first space or underscore), falling
// back to the file's modification date when the name carries none.
func parseFileDate(name string, modTime time.Time) time.Time {
	token := name
	if i := strings.IndexAny(name, " _"); i >= 0 {
		token = name[:i]
	}
	for _, layout := range knownFileDateLayouts {
		if d, err := time.Parse(layout, token); err == nil {
			return dateOnly(d)
		}
	}
	return dateOnly(modTime)
}

// dateOnly truncates t to its UTC calendar date, discarding time-of-day, so
// date comparisons ignore intraday scheduling.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rescanDecision is the canonical re-scan policy for a live-written "today"
// workbook: an ordered rule chain, the first matching rule wins.
//
//  1. never checked before: process.
//  2. file dated today, and it has been at least fileCheckInterval since
//     last checked: process (the routine poll).
//  3. file dated today, its mtime is newer than the destination's current
//     watermark, and at least 5 minutes have passed since last checked:
//     process (a faster re-check while the file is visibly still moving).
//  4. file dated after the watermark's date: process (first sighting of a
//     new day's file).
//  5. file dated the same day as the watermark, and its mtime is within
//     the last 2 hours: process (a late edit to an already-synced day).
//  6. otherwise: skip.
func rescanDecision(now, fileDate, mtime, watermark, lastChecked time.Time, hasLastChecked bool, fileCheckInterval time.Duration) bool {
	today := dateOnly(now)
	watermarkDate := dateOnly(watermark)

	if !hasLastChecked {
		return true
	}
	if fileDate.Equal(today) && now.Sub(lastChecked) >= fileCheckInterval {
		return true
	}
	if fileDate.Equal(today) && mtime.After(watermark) && now.Sub(lastChecked) >= 5*time.Minute {
		return true
	}
	if fileDate.After(watermarkDate) {
		return true
	}
	if fileDate.Equal(watermarkDate) && now.Sub(mtime) <= 2*time.Hour {
		return true
	}
	return false
}

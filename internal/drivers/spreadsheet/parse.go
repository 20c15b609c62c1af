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

// Package spreadsheet parses the TC-2 workbook format: a single header row
// of possibly multi-line, localized column names, a body of timestamped
// numeric readings, and a footer of summary rows to be skipped.
package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
)

// ParsedRow is one normalized body row: a parsed timestamp plus the ten
// numeric slots the collector fills from a spreadsheet source (T1-T3,
// V1-V3, P1-P2, H1-H2; see sourceColumnOrder).
type ParsedRow struct {
	Timestamp time.Time
	T1, T2, T3 *float64
	V1, V2, V3 *float64
	P1, P2     *float64
	H1, H2     *float64
}

// canonical column identifiers, in the fixed order the collector maps
// spreadsheet columns onto destination fields.
const (
	colT1 = "t1"
	colT2 = "t2"
	colT3 = "t3"
	colV1 = "v1"
	colV2 = "v2"
	colV3 = "v3"
	colP1 = "p1"
	colP2 = "p2"
	colH1 = "h1"
	colH2 = "h2"
)

var sourceColumnOrder = []string{colT1, colT2, colT3, colV1, colV2, colV3, colP1, colP2, colH1, colH2}

// headerAliases maps a normalized (lowercased, whitespace-collapsed) header
// fragment to its canonical column. Headers in the source workbooks carry
// embedded newlines and unit annotations ("Т1,\nºC", "Напряжение V1,\nВ"),
// so matching is substring-based against the normalized form.
var headerAliases = map[string]string{
	"т1":           colT1,
	"t1":           colT1,
	"т2":           colT2,
	"t2":           colT2,
	"т3":           colT3,
	"t3":           colT3,
	"напряжение v1": colV1,
	"v1":            colV1,
	"напряжение v2": colV2,
	"v2":            colV2,
	"напряжение v3": colV3,
	"v3":            colV3,
	"давление p1": colP1,
	"p1":          colP1,
	"давление p2": colP2,
	"p2":          colP2,
	"влажность h1": colH1,
	"h1":           colH1,
	"влажность h2": colH2,
	"h2":           colH2,
}

var timestampNameHints = []string{"дата", "время", "date", "time"}

// normalizeHeader collapses embedded newlines/tabs to single spaces, trims,
// and lowercases, so "Т1,\nºC" and "т1, ºc" compare equal.
func normalizeHeader(raw string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range raw {
		if r == '\n' || r == '\r' || r == '\t' || unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

// resolveColumn maps a normalized header to a canonical column id, or ""
// if unrecognized.
func resolveColumn(normalized string) string {
	if canon, ok := headerAliases[normalized]; ok {
		return canon
	}
	for fragment, canon := range headerAliases {
		if strings.Contains(normalized, fragment) {
			return canon
		}
	}
	return ""
}

// looksLikeTimestampHeader reports whether a normalized header names the
// date/time column by a known substring hint.
func looksLikeTimestampHeader(normalized string) bool {
	for _, hint := range timestampNameHints {
		if strings.Contains(normalized, hint) {
			return true
		}
	}
	return false
}

// headerColumn describes one resolved worksheet column.
type headerColumn struct {
	index     int
	canonical string // "" if unmapped
	isTime    bool
}

// Result is the outcome of parsing one workbook.
type Result struct {
	Rows              []ParsedRow
	DroppedRows       int // rows whose timestamp failed to parse
	TimestampColFound bool
}

// Parse reads path (an already-snapshotted local file) and returns
// normalized body rows, dropping the last skipFooterRows rows and any body
// row whose timestamp does not parse.
func Parse(path string, skipFooterRows int) (Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("spreadsheet: open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("spreadsheet: read sheet: %w", err)
	}
	if len(rows) == 0 {
		return Result{}, nil
	}

	headers := resolveHeaders(rows[0])
	timeCol := -1
	for _, h := range headers {
		if h.isTime {
			timeCol = h.index
			break
		}
	}
	if timeCol == -1 && len(rows[0]) > 0 {
		// Heuristic fallback: no header matched a date/time hint: try the
		// first column, since every observed source file places the
		// timestamp first.
		timeCol = 0
	}

	body := rows[1:]
	if skipFooterRows > 0 && skipFooterRows < len(body) {
		body = body[:len(body)-skipFooterRows]
	} else if skipFooterRows >= len(body) {
		body = nil
	}

	result := Result{TimestampColFound: timeCol >= 0}
	for _, raw := range body {
		ts, ok := parseTimestamp(cellAt(raw, timeCol))
		if !ok {
			result.DroppedRows++
			continue
		}
		pr := ParsedRow{Timestamp: ts}
		for _, h := range headers {
			if h.canonical == "" || h.isTime {
				continue
			}
			val := parseLocalizedFloat(cellAt(raw, h.index))
			assignColumn(&pr, h.canonical, val)
		}
		result.Rows = append(result.Rows, pr)
	}
	return result, nil
}

func resolveHeaders(headerRow []string) []headerColumn {
	out := make([]headerColumn, 0, len(headerRow))
	for i, raw := range headerRow {
		norm := normalizeHeader(raw)
		out = append(out, headerColumn{
			index:     i,
			canonical: resolveColumn(norm),
			isTime:    looksLikeTimestampHeader(norm),
		})
	}
	return out
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// knownTimestampLayouts covers the localized date/time formats observed in
// source workbooks, tried in order.
var knownTimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range knownTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseLocalizedFloat normalizes a comma decimal separator to a period
// before parsing; an unparseable value becomes nil (null), per spec.
func parseLocalizedFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	normalized := strings.Replace(raw, ",", ".", 1)
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return nil
	}
	return &v
}

func assignColumn(pr *ParsedRow, canonical string, val *float64) {
	switch canonical {
	case colT1:
		pr.T1 = val
	case colT2:
		pr.T2 = val
	case colT3:
		pr.T3 = val
	case colV1:
		pr.V1 = val
	case colV2:
		pr.V2 = val
	case colV3:
		pr.V3 = val
	case colP1:
		pr.P1 = val
	case colP2:
		pr.P2 = val
	case colH1:
		pr.H1 = val
	case colH2:
		pr.H2 = val
	}
}

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

package firebird

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maerty1/scada/internal/syncmodel"
)

// floatColumns lists the optional numeric columns a foreign result set may
// carry, matched case-insensitively since the foreign schema's casing isn't
// fixed.
var floatColumns = []string{
	"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8",
	"V1", "V2", "V3", "V4", "V5",
	"P1", "P2", "P3", "P4",
	"H1", "H2", "H3", "H4",
}

// ToRecord maps a dynamically-columned foreign row into the collector's
// fixed Record shape. The foreign OBJID column is renamed onto the
// destination's ObjectId, per the column-rename rule for this sync
// direction; objectFilter (the query's own filter id) is used only as a
// fallback when the result set carries no OBJID column or the row's OBJID
// is NULL. RECTIME is
// required, every other column is optional and defaults to null when
// absent or unparseable.
func (r Row) ToRecord(objectFilter string) (syncmodel.Record, error) {
	rectime, ok := r.getTime("RECTIME")
	if !ok {
		return syncmodel.Record{}, fmt.Errorf("firebird: row missing RECTIME")
	}

	rec := syncmodel.Record{RecTime: rectime}
	if v, ok := r.getString("OBJID"); ok {
		rec.ObjectID = v
	} else {
		rec.ObjectID = objectFilter
	}
	if v, ok := r.getString("ID"); ok {
		rec.ID = v
	}

	for _, name := range floatColumns {
		val := r.getFloatPtr(name)
		assignFloatColumn(&rec, name, val)
	}
	return rec, nil
}

func (r Row) getCaseInsensitive(name string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Row) getString(name string) (string, bool) {
	v, ok := r.getCaseInsensitive(name)
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func (r Row) getTime(name string) (time.Time, bool) {
	v, ok := r.getCaseInsensitive(name)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseAnyTime(t)
	case []byte:
		return parseAnyTime(string(t))
	default:
		return time.Time{}, false
	}
}

var foreignTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseAnyTime(s string) (time.Time, bool) {
	for _, layout := range foreignTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (r Row) getFloatPtr(name string) *float64 {
	v, ok := r.getCaseInsensitive(name)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case float32:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case int32:
		f := float64(t)
		return &f
	case string:
		return parseAnyFloat(t)
	case []byte:
		return parseAnyFloat(string(t))
	default:
		return nil
	}
}

func parseAnyFloat(s string) *float64 {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func assignFloatColumn(rec *syncmodel.Record, name string, val *float64) {
	switch name {
	case "T1":
		rec.T1 = val
	case "T2":
		rec.T2 = val
	case "T3":
		rec.T3 = val
	case "T4":
		rec.T4 = val
	case "T5":
		rec.T5 = val
	case "T6":
		rec.T6 = val
	case "T7":
		rec.T7 = val
	case "T8":
		rec.T8 = val
	case "V1":
		rec.V1 = val
	case "V2":
		rec.V2 = val
	case "V3":
		rec.V3 = val
	case "V4":
		rec.V4 = val
	case "V5":
		rec.V5 = val
	case "P1":
		rec.P1 = val
	case "P2":
		rec.P2 = val
	case "P3":
		rec.P3 = val
	case "P4":
		rec.P4 = val
	case "H1":
		rec.H1 = val
	case "H2":
		rec.H2 = val
	case "H3":
		rec.H3 = val
	case "H4":
		rec.H4 = val
	}
}

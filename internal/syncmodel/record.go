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

// Package syncmodel holds the data types and shared in-memory structures
// used by the collector's sync engine: the fixed record shape, job
// descriptors, the watermark cache, the notification gate, and the task
// status registry.
package syncmodel

import "time"

// Record is the fixed 25-column row shape shared by every Dynamic_* destination
// table. Numeric fields are nullable; RecTime is required.
type Record struct {
	ObjectID string
	ID       string
	OBJID    string
	RecTime  time.Time

	T1, T2, T3, T4, T5, T6, T7, T8 *float64
	V1, V2, V3, V4, V5             *float64
	P1, P2, P3, P4                 *float64
	H1, H2, H3, H4                 *float64
}

// Columns returns the fixed 25-column name list in insert order, matching
// the destination table's physical layout.
func Columns() []string {
	return []string{
		"ObjectId", "ID", "OBJID", "RECTIME",
		"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8",
		"V1", "V2", "V3", "V4", "V5",
		"P1", "P2", "P3", "P4",
		"H1", "H2", "H3", "H4",
	}
}

// Values returns the Record's fields in the same order as Columns, ready to
// be passed as driver arguments.
func (r Record) Values() []any {
	return []any{
		r.ObjectID, r.ID, r.OBJID, r.RecTime,
		r.T1, r.T2, r.T3, r.T4, r.T5, r.T6, r.T7, r.T8,
		r.V1, r.V2, r.V3, r.V4, r.V5,
		r.P1, r.P2, r.P3, r.P4,
		r.H1, r.H2, r.H3, r.H4,
	}
}

// EpochWatermark is the sentinel "far in the past" timestamp used when a
// destination table has never received a row.
var EpochWatermark = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

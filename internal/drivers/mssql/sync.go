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

package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/maerty1/scada/internal/syncmodel"
)

// Source reads delta rows from a SQL-Server-to-SQL-Server sync job's
// source table. It implements worker.SyncSource.
type Source struct {
	DB    *sql.DB
	Table string
}

// FetchSince returns every row with RECTIME strictly after since, in
// ascending RECTIME order.
func (s *Source) FetchSince(ctx context.Context, since time.Time) ([]syncmodel.Record, error) {
	cols := syncmodel.Columns()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE RECTIME > @p1 ORDER BY RECTIME",
		strings.Join(cols, ", "), s.Table)

	rows, err := s.DB.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("mssql: fetch delta %s: %w", s.Table, err)
	}
	defer rows.Close()

	var out []syncmodel.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("mssql: scan %s: %w", s.Table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: iterate %s: %w", s.Table, err)
	}
	return out, nil
}

// Dest is the shared destination side for every worker kind: batch insert
// with duplicate-key fallback, watermark resolution, and the dashboard's
// latest-row lookup. It implements worker.SyncDest and
// dashboard.LatestRowProvider.
type Dest struct {
	DB    *sql.DB
	Table string
}

// Insert batch-inserts rows into Table.
func (d *Dest) Insert(ctx context.Context, rows []syncmodel.Record) (BatchResult, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	return BatchInsert(ctx, d.DB, d.Table, syncmodel.Columns(), values)
}

// MaxTimestamp returns the greatest RECTIME currently in Table, or
// ok=false if the table has never received a row.
func (d *Dest) MaxTimestamp(ctx context.Context) (time.Time, bool, error) {
	query := fmt.Sprintf("SELECT MAX(RECTIME) FROM %s", d.Table)
	var ts sql.NullTime
	if err := d.DB.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("mssql: max timestamp %s: %w", d.Table, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
}

// LatestRow returns the most recently timestamped row in Table, for the
// dashboard's /data snapshot.
func (d *Dest) LatestRow(ctx context.Context, table string) (syncmodel.Record, bool, error) {
	cols := syncmodel.Columns()
	query := fmt.Sprintf("SELECT TOP 1 %s FROM %s ORDER BY RECTIME DESC", strings.Join(cols, ", "), table)

	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return syncmodel.Record{}, false, fmt.Errorf("mssql: latest row %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return syncmodel.Record{}, false, rows.Err()
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return syncmodel.Record{}, false, fmt.Errorf("mssql: scan latest row %s: %w", table, err)
	}
	return rec, true, nil
}

// scanRecord scans one row into a Record, in the fixed Columns() order.
// Numeric columns are nullable; everything else is required.
func scanRecord(rows *sql.Rows) (syncmodel.Record, error) {
	var rec syncmodel.Record
	var floats [21]sql.NullFloat64

	dest := []any{
		&rec.ObjectID, &rec.ID, &rec.OBJID, &rec.RecTime,
	}
	for i := range floats {
		dest = append(dest, &floats[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return syncmodel.Record{}, err
	}

	ptrs := []**float64{
		&rec.T1, &rec.T2, &rec.T3, &rec.T4, &rec.T5, &rec.T6, &rec.T7, &rec.T8,
		&rec.V1, &rec.V2, &rec.V3, &rec.V4, &rec.V5,
		&rec.P1, &rec.P2, &rec.P3, &rec.P4,
		&rec.H1, &rec.H2, &rec.H3, &rec.H4,
	}
	for i, p := range ptrs {
		if floats[i].Valid {
			v := floats[i].Float64
			*p = &v
		}
	}
	return rec, nil
}

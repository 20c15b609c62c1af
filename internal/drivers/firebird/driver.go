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

// Package firebird holds the "foreign database" specifics of the
// collector: a pure-Go Firebird driver DSN builder and dynamic-column row
// reading for the Foreign->DB sync worker.
package firebird

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/nakagami/firebirdsql"

	"github.com/maerty1/scada/internal/syncmodel"
)

// DriverName is the database/sql driver name registered by firebirdsql.
const DriverName = "firebirdsql"

// DSN builds a Firebird connection string for e.
func DSN(e syncmodel.Endpoint) string {
	port := e.Port
	if port == 0 {
		port = 3050
	}
	return fmt.Sprintf("%s:%s@%s:%d/%s", e.User, e.Password, e.Host, port, e.Database)
}

// Row is an ordered (column name, value) pair, used because the foreign
// branch's column list is discovered dynamically from the result set
// rather than declared statically.
type Row struct {
	Columns []string
	Values  []any
}

// Get looks up a named column's value, returning (nil, false) if absent;
// any field not present in the result set defaults to empty.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// QueryRows executes query against db and returns each result row as an
// ordered (column, value) pair list, preserving the foreign result set's
// own column metadata rather than a hard-coded column set.
func QueryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("firebird: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("firebird: columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		scanDest := make([]any, len(cols))
		holders := make([]any, len(cols))
		for i := range scanDest {
			holders[i] = &scanDest[i]
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, fmt.Errorf("firebird: scan: %w", err)
		}
		values := make([]any, len(cols))
		copy(values, scanDest)
		out = append(out, Row{Columns: append([]string(nil), cols...), Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("firebird: iterate: %w", err)
	}
	return out, nil
}

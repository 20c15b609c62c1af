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
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncFakeRows replays a fixed set of rows for a single query.
type syncFakeRows struct {
	cols []string
	data [][]driver.Value
	pos  int
}

func (r *syncFakeRows) Columns() []string { return r.cols }
func (r *syncFakeRows) Close() error      { return nil }
func (r *syncFakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}

type syncFakeConn struct {
	queryFunc func(query string) (driver.Rows, error)
}

func (c syncFakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c syncFakeConn) Close() error                              { return nil }
func (c syncFakeConn) Begin() (driver.Tx, error)                 { return nil, errors.New("not implemented") }

func (c syncFakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.queryFunc(query)
}

type syncFakeDriver struct {
	queryFunc func(query string) (driver.Rows, error)
}

func (d syncFakeDriver) Open(name string) (driver.Conn, error) {
	return syncFakeConn{queryFunc: d.queryFunc}, nil
}

// emptyRow returns a 25-column row (4 identity + 21 nullable floats) with
// every float nil, ready for selective override.
func emptyRow(objectID, id, objid string, rectime time.Time) []driver.Value {
	row := make([]driver.Value, 25)
	row[0], row[1], row[2], row[3] = objectID, id, objid, rectime
	for i := 4; i < 25; i++ {
		row[i] = nil
	}
	return row
}

func TestSource_FetchSince(t *testing.T) {
	ts := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	row := emptyRow("obj1", "id1", "objid1", ts)
	row[4] = float64(21.5) // T1

	sql.Register("mssql-source-test", syncFakeDriver{queryFunc: func(query string) (driver.Rows, error) {
		if !strings.Contains(query, "srctable") {
			return nil, errors.New("unexpected table")
		}
		return &syncFakeRows{cols: make([]string, 25), data: [][]driver.Value{row}}, nil
	}})

	db, err := sql.Open("mssql-source-test", "dsn")
	require.NoError(t, err)

	src := &Source{DB: db, Table: "srctable"}
	rows, err := src.FetchSince(context.Background(), ts.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "obj1", rows[0].ObjectID)
	assert.Equal(t, ts, rows[0].RecTime)
	require.NotNil(t, rows[0].T1)
	assert.InDelta(t, 21.5, *rows[0].T1, 0.0001)
	assert.Nil(t, rows[0].T2)
}

func TestDest_MaxTimestamp(t *testing.T) {
	ts := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	sql.Register("mssql-dest-maxts-test", syncFakeDriver{queryFunc: func(query string) (driver.Rows, error) {
		return &syncFakeRows{cols: []string{"max"}, data: [][]driver.Value{{ts}}}, nil
	}})

	db, err := sql.Open("mssql-dest-maxts-test", "dsn")
	require.NoError(t, err)

	dest := &Dest{DB: db, Table: "Dynamic_TC1"}
	got, ok, err := dest.MaxTimestamp(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ts, got)
}

func TestDest_MaxTimestamp_EmptyTable(t *testing.T) {
	sql.Register("mssql-dest-maxts-empty-test", syncFakeDriver{queryFunc: func(query string) (driver.Rows, error) {
		return &syncFakeRows{cols: []string{"max"}, data: [][]driver.Value{{nil}}}, nil
	}})

	db, err := sql.Open("mssql-dest-maxts-empty-test", "dsn")
	require.NoError(t, err)

	dest := &Dest{DB: db, Table: "Dynamic_TC1"}
	_, ok, err := dest.MaxTimestamp(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDest_LatestRow(t *testing.T) {
	ts := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	row := emptyRow("obj1", "id1", "objid1", ts)

	sql.Register("mssql-dest-latest-test", syncFakeDriver{queryFunc: func(query string) (driver.Rows, error) {
		return &syncFakeRows{cols: make([]string, 25), data: [][]driver.Value{row}}, nil
	}})

	db, err := sql.Open("mssql-dest-latest-test", "dsn")
	require.NoError(t, err)

	dest := &Dest{DB: db, Table: "Dynamic_TC1"}
	rec, ok, err := dest.LatestRow(context.Background(), "Dynamic_TC1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "obj1", rec.ObjectID)
}

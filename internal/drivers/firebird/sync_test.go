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
	queryFunc func(query string, args []driver.NamedValue) (driver.Rows, error)
}

func (c syncFakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c syncFakeConn) Close() error                              { return nil }
func (c syncFakeConn) Begin() (driver.Tx, error)                 { return nil, errors.New("not implemented") }

func (c syncFakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.queryFunc(query, args)
}

type syncFakeDriver struct {
	queryFunc func(query string, args []driver.NamedValue) (driver.Rows, error)
}

func (d syncFakeDriver) Open(name string) (driver.Conn, error) {
	return syncFakeConn{queryFunc: d.queryFunc}, nil
}

func TestSource_FetchSince(t *testing.T) {
	since := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	sql.Register("firebird-source-test", syncFakeDriver{queryFunc: func(query string, args []driver.NamedValue) (driver.Rows, error) {
		if !strings.Contains(query, "TC2") {
			return nil, errors.New("unexpected table")
		}
		require.Len(t, args, 2)
		assert.Equal(t, "unit-7", args[0].Value)
		return &syncFakeRows{
			cols: []string{"RECTIME", "T1"},
			data: [][]driver.Value{{"2026-07-30 00:00:05", float64(21.5)}},
		}, nil
	}})

	db, err := sql.Open("firebird-source-test", "dsn")
	require.NoError(t, err)

	src := &Source{DB: db, Table: "TC2"}
	rows, err := src.FetchSince(context.Background(), since, "unit-7")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	v, ok := rows[0].Get("T1")
	require.True(t, ok)
	assert.Equal(t, float64(21.5), v)
}

func TestSource_FetchSince_QueryError(t *testing.T) {
	sql.Register("firebird-source-err-test", syncFakeDriver{queryFunc: func(query string, args []driver.NamedValue) (driver.Rows, error) {
		return nil, errors.New("connection refused")
	}})

	db, err := sql.Open("firebird-source-err-test", "dsn")
	require.NoError(t, err)

	src := &Source{DB: db, Table: "TC2"}
	_, err = src.FetchSince(context.Background(), time.Now(), "unit-7")
	assert.Error(t, err)
}

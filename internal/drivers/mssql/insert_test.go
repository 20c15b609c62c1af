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
	"testing"

	mssqldriver "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insertFakeConn simulates a batch insert that always fails with a
// duplicate-key error, forcing the per-row fallback path. Individual rows
// whose first placeholder arg is "dup" also fail with a duplicate-key
// error; everything else succeeds.
type insertFakeConn struct{}

func (insertFakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (insertFakeConn) Close() error                              { return nil }
func (insertFakeConn) Begin() (driver.Tx, error)                 { return insertFakeTx{}, nil }

func (insertFakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > len(columnsUnderTest) {
		// Multi-row batch statement: always reports a duplicate key.
		return nil, mssqldriver.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint"}
	}
	if len(args) > 0 {
		if s, ok := args[0].Value.(string); ok && s == "dup" {
			return nil, mssqldriver.Error{Number: 2601, Message: "Cannot insert duplicate key row"}
		}
	}
	return driver.RowsAffected(1), nil
}

type insertFakeTx struct{}

func (insertFakeTx) Commit() error   { return nil }
func (insertFakeTx) Rollback() error { return nil }

type insertFakeDriver struct{}

func (insertFakeDriver) Open(name string) (driver.Conn, error) { return insertFakeConn{}, nil }

var columnsUnderTest = []string{"ObjectId", "RECTIME"}

func init() {
	sql.Register("mssql-insert-test", insertFakeDriver{})
}

func TestBatchInsert_EmptyRows(t *testing.T) {
	db, err := sql.Open("mssql-insert-test", "dsn")
	require.NoError(t, err)

	result, err := BatchInsert(context.Background(), db, "Dynamic_TC2", columnsUnderTest, nil)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, result)
}

func TestBatchInsert_FallsBackOnDuplicateAndDropsDupRows(t *testing.T) {
	db, err := sql.Open("mssql-insert-test", "dsn")
	require.NoError(t, err)

	rows := [][]any{
		{"obj-1", "2025-01-01T00:00:05Z"},
		{"dup", "2025-01-01T00:00:10Z"},
		{"obj-3", "2025-01-01T00:00:15Z"},
	}

	result, err := BatchInsert(context.Background(), db, "Dynamic_TC2", columnsUnderTest, rows)
	require.NoError(t, err)
	assert.True(t, result.FellBackToPerRow)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Dropped)
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(mssqldriver.Error{Number: 2627}))
	assert.True(t, IsDuplicateKeyError(mssqldriver.Error{Number: 2601}))
	assert.False(t, IsDuplicateKeyError(mssqldriver.Error{Number: 4060}))
	assert.False(t, IsDuplicateKeyError(assertAnyError{}))
}

type assertAnyError struct{}

func (assertAnyError) Error() string { return "some other error" }

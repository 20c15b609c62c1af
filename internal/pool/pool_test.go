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

package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is a minimal database/sql/driver.Driver used to exercise the
// registry without a real network dependency.
type fakeDriver struct {
	failOpen bool
}

type fakeConn struct{}

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (fakeConn) Close() error                               { return nil }
func (fakeConn) Begin() (driver.Tx, error)                  { return nil, errors.New("not implemented") }

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	if d.failOpen {
		return nil, errors.New("fake: connection refused")
	}
	return fakeConn{}, nil
}

func init() {
	sql.Register("pooltest-ok", &fakeDriver{})
	sql.Register("pooltest-fail", &fakeDriver{failOpen: true})
}

func TestRegistry_BorrowReusesSamePool(t *testing.T) {
	r := NewRegistry(DefaultConfig(), sql.Open)

	db1, err := r.Borrow(context.Background(), "host/db/user", "pooltest-ok", "dsn")
	require.NoError(t, err)

	db2, err := r.Borrow(context.Background(), "host/db/user", "pooltest-ok", "dsn")
	require.NoError(t, err)

	assert.Same(t, db1, db2)
	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistry_BorrowPropagatesPingFailure(t *testing.T) {
	r := NewRegistry(DefaultConfig(), sql.Open)

	_, err := r.Borrow(context.Background(), "bad", "pooltest-fail", "dsn")
	assert.Error(t, err)
}

func TestRegistry_DiscardForcesReconnect(t *testing.T) {
	r := NewRegistry(DefaultConfig(), sql.Open)

	db1, err := r.Borrow(context.Background(), "host/db/user", "pooltest-ok", "dsn")
	require.NoError(t, err)

	r.Discard("host/db/user")
	assert.Empty(t, r.Snapshot())

	db2, err := r.Borrow(context.Background(), "host/db/user", "pooltest-ok", "dsn")
	require.NoError(t, err)
	assert.NotSame(t, db1, db2)
}

func TestRegistry_BorrowTripsBreakerAfterRepeatedFailures(t *testing.T) {
	r := NewRegistry(DefaultConfig(), sql.Open)

	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = r.Borrow(context.Background(), "bad", "pooltest-fail", "dsn")
		assert.Error(t, lastErr)
	}
	// The 6th failure should come from the now-open breaker rather than a
	// fresh ping attempt, but either way the borrow must still fail.
	assert.Error(t, lastErr)
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(DefaultConfig(), sql.Open)
	_, err := r.Borrow(context.Background(), "a", "pooltest-ok", "dsn")
	require.NoError(t, err)
	_, err = r.Borrow(context.Background(), "b", "pooltest-ok", "dsn")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Empty(t, r.Snapshot())
}

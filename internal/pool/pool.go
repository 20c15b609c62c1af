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

// Package pool provides a keyed registry of database/sql connection pools,
// one per (server, database, user) triple, with pre-ping borrowing,
// recycling, a per-key circuit breaker guarding the ping, and a snapshot
// API for the dashboard's health endpoint.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config tunes a single pool's sizing and recycling behaviour.
type Config struct {
	// BaseSize is the number of connections kept open even when idle.
	// Default: 5.
	BaseSize int
	// Overflow is the number of additional connections allowed beyond
	// BaseSize under load. Default: 10.
	Overflow int
	// MaxLifetime recycles a connection once it has been open this long.
	// Default: 1h.
	MaxLifetime time.Duration
	// BorrowTimeout bounds how long a caller waits for a free connection.
	// Default: 30s.
	BorrowTimeout time.Duration
}

// DefaultConfig returns the default pool sizing: 5 base, 10
// overflow, 1h recycling, 30s borrow timeout.
func DefaultConfig() Config {
	return Config{
		BaseSize:      5,
		Overflow:      10,
		MaxLifetime:   time.Hour,
		BorrowTimeout: 30 * time.Second,
	}
}

// Snapshot reports one pool's occupancy for the health endpoint.
type Snapshot struct {
	Key     string
	Size    int
	Idle    int
	InUse   int
	Invalid bool
}

// Registry is a concurrency-safe keyed pool-of-pools. Each key maps to one
// *sql.DB, which is itself an internally-pooled, concurrency-safe handle;
// the registry's job is keying, sizing policy, and the snapshot API.
type Registry struct {
	mu    sync.Mutex
	cfg   Config
	open  func(driverName, dsn string) (*sql.DB, error)
	pools map[string]*entry
}

type entry struct {
	db         *sql.DB
	driverName string
	dsn        string
	breaker    *gobreaker.CircuitBreaker[struct{}]
}

// newPingBreaker trips after 5 consecutive ping failures for a key, so a
// dead endpoint fails borrows immediately instead of waiting out the full
// BorrowTimeout on every worker cycle. It resets after a single successful
// probe once half-open.
func newPingBreaker(key string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// NewRegistry creates an empty registry. openFunc is normally sql.Open;
// tests substitute a fake to avoid a real driver dependency.
func NewRegistry(cfg Config, openFunc func(driverName, dsn string) (*sql.DB, error)) *Registry {
	if openFunc == nil {
		openFunc = sql.Open
	}
	return &Registry{
		cfg:   cfg,
		open:  openFunc,
		pools: make(map[string]*entry),
	}
}

// Borrow returns the *sql.DB for key, opening and pre-pinging it on first
// use, and configuring it per the registry's Config. A borrow timeout
// bounds the ping.
func (r *Registry) Borrow(ctx context.Context, key, driverName, dsn string) (*sql.DB, error) {
	r.mu.Lock()
	e, ok := r.pools[key]
	if !ok {
		db, err := r.open(driverName, dsn)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("pool: open %s: %w", key, err)
		}
		db.SetMaxOpenConns(r.cfg.BaseSize + r.cfg.Overflow)
		db.SetMaxIdleConns(r.cfg.BaseSize)
		db.SetConnMaxLifetime(r.cfg.MaxLifetime)
		e = &entry{db: db, driverName: driverName, dsn: dsn, breaker: newPingBreaker(key)}
		r.pools[key] = e
	}
	r.mu.Unlock()

	_, err := e.breaker.Execute(func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, r.cfg.BorrowTimeout)
		defer cancel()
		return struct{}{}, e.db.PingContext(pingCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("pool: ping %s: %w", key, err)
	}
	return e.db, nil
}

// Discard closes and removes the pool for key, forcing the next Borrow to
// reconnect. The sync workers do not call it: each keeps the *sql.DB it
// was given at startup across failed cycles.
func (r *Registry) Discard(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pools[key]
	if !ok {
		return
	}
	_ = e.db.Close()
	delete(r.pools, key)
}

// Snapshot reports occupancy for every open pool.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.pools))
	for key, e := range r.pools {
		stats := e.db.Stats()
		out = append(out, Snapshot{
			Key:     key,
			Size:    stats.OpenConnections,
			Idle:    stats.Idle,
			InUse:   stats.InUse,
			Invalid: false,
		})
	}
	return out
}

// Close disposes every pool in the registry. Call on shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, e := range r.pools {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pool: close %s: %w", key, err)
		}
		delete(r.pools, key)
	}
	return firstErr
}

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

package syncmodel

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultHotCacheKeyPrefix = "scada:watermark:"

// RedisMirror is an optional write-through mirror of the WatermarkCache,
// used to share watermarks across multiple collector replicas. A nil
// *RedisMirror is valid and every method becomes a no-op, so callers can
// embed it unconditionally.
//
// It never participates in correctness: a miss or error here only costs a
// redundant MAX(timestamp) read against the destination, exactly like a
// local cache miss.
type RedisMirror struct {
	client    goredis.UniversalClient
	keyPrefix string
}

// NewRedisMirror wraps an existing Redis client. A nil client is accepted
// and yields a no-op mirror.
func NewRedisMirror(client goredis.UniversalClient, keyPrefix string) *RedisMirror {
	if keyPrefix == "" {
		keyPrefix = defaultHotCacheKeyPrefix
	}
	return &RedisMirror{client: client, keyPrefix: keyPrefix}
}

func (m *RedisMirror) key(table string) string {
	return m.keyPrefix + table
}

// Set best-effort writes the watermark to Redis. Errors are returned to the
// caller, who is expected to log and continue (the local cache remains the
// source of truth within a process).
func (m *RedisMirror) Set(ctx context.Context, table string, ts time.Time) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Set(ctx, m.key(table), ts.Format(time.RFC3339Nano), 0).Err()
}

// Get returns the mirrored watermark for table, if any.
func (m *RedisMirror) Get(ctx context.Context, table string) (time.Time, bool, error) {
	if m == nil || m.client == nil {
		return time.Time{}, false, nil
	}
	raw, err := m.client.Get(ctx, m.key(table)).Result()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis mirror: get %s: %w", table, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis mirror: parse %s: %w", table, err)
	}
	return ts, true, nil
}

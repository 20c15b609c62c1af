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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermarkCache_GetMiss(t *testing.T) {
	c := NewWatermarkCache()
	_, ok := c.Get("Dynamic_TC2")
	assert.False(t, ok)
}

func TestWatermarkCache_SetGet(t *testing.T) {
	c := NewWatermarkCache()
	ts := time.Date(2025, 1, 1, 0, 0, 15, 0, time.UTC)

	c.Set("Dynamic_TC2", ts)

	got, ok := c.Get("Dynamic_TC2")
	require.True(t, ok)
	assert.True(t, got.Equal(ts))
	assert.Equal(t, 1, c.Len())
}

func TestWatermarkCache_SetOverwrites(t *testing.T) {
	c := NewWatermarkCache()
	first := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)
	second := time.Date(2025, 1, 1, 0, 0, 15, 0, time.UTC)

	c.Set("Dynamic_TC2", first)
	c.Set("Dynamic_TC2", second)

	got, ok := c.Get("Dynamic_TC2")
	require.True(t, ok)
	assert.True(t, got.Equal(second))
}

// TestWatermarkCache_ConcurrentAccess exercises the mutex under contention;
// it does not assert monotonicity (callers own that), only the absence of a
// data race (run with -race).
func TestWatermarkCache_ConcurrentAccess(t *testing.T) {
	c := NewWatermarkCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Set("Dynamic_TC2", time.Unix(int64(n), 0))
			c.Get("Dynamic_TC2")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestWatermarkCache_Snapshot(t *testing.T) {
	c := NewWatermarkCache()
	c.Set("Dynamic_TC2", time.Unix(100, 0))
	c.Set("Dynamic_TC3", time.Unix(200, 0))

	snap := c.Snapshot()
	assert.Len(t, snap, 2)
	assert.True(t, snap["Dynamic_TC2"].Equal(time.Unix(100, 0)))
}

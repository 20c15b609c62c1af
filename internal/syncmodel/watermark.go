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
	"time"
)

// watermarkEntry pairs a cached timestamp with the instant it was set.
type watermarkEntry struct {
	ts        time.Time
	updatedAt time.Time
}

// WatermarkCache is a concurrency-safe mapping from destination table id to
// the greatest timestamp known to be persisted there. It is an optimization:
// callers must re-read the destination directly when the cache misses, and
// are responsible for only ever advancing the stored value monotonically.
type WatermarkCache struct {
	mu      sync.Mutex
	entries map[string]watermarkEntry
}

// NewWatermarkCache creates an empty cache.
func NewWatermarkCache() *WatermarkCache {
	return &WatermarkCache{entries: make(map[string]watermarkEntry)}
}

// Get returns the cached watermark for the given destination table id and
// whether an entry exists.
func (c *WatermarkCache) Get(table string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[table]
	if !ok {
		return time.Time{}, false
	}
	return e.ts, true
}

// Set stores ts for table unconditionally. Callers are responsible for
// monotonicity.
func (c *WatermarkCache) Set(table string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[table] = watermarkEntry{ts: ts, updatedAt: time.Now()}
}

// Len returns the number of cached entries, for the dashboard's /health
// snapshot.
func (c *WatermarkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cache's current contents keyed by table.
func (c *WatermarkCache) Snapshot() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.entries))
	for k, v := range c.entries {
		out[k] = v.ts
	}
	return out
}

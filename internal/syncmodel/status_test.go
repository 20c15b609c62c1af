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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusRegistry_Overall(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *TaskStatusRegistry)
		want    OverallStatus
	}{
		{
			name:    "empty registry is starting",
			prepare: func(r *TaskStatusRegistry) {},
			want:    StatusStarting,
		},
		{
			name: "all healthy",
			prepare: func(r *TaskStatusRegistry) {
				r.MarkHealthy("db-sync-a", time.Now())
				r.MarkHealthy("db-sync-b", time.Now())
			},
			want: StatusHealthy,
		},
		{
			name: "mixed is degraded",
			prepare: func(r *TaskStatusRegistry) {
				r.MarkHealthy("db-sync-a", time.Now())
				r.MarkUnhealthy("db-sync-b", "connect timeout", time.Now())
			},
			want: StatusDegraded,
		},
		{
			name: "none healthy is unhealthy",
			prepare: func(r *TaskStatusRegistry) {
				r.MarkUnhealthy("db-sync-a", "boom", time.Now())
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewTaskStatusRegistry()
			tt.prepare(r)
			assert.Equal(t, tt.want, r.Overall())
		})
	}
}

func TestTaskStatusRegistry_MarkUnhealthyPreservesLastSuccess(t *testing.T) {
	r := NewTaskStatusRegistry()
	t1 := time.Now().Add(-time.Hour)
	r.MarkHealthy("w", t1)

	r.MarkUnhealthy("w", "connection reset", time.Now())

	st, ok := r.Get("w")
	assert.True(t, ok)
	assert.False(t, st.Healthy)
	assert.Equal(t, "connection reset", st.LastError)
	assert.True(t, st.LastSuccessful.Equal(t1))
}

func TestTaskStatusRegistry_Snapshot(t *testing.T) {
	r := NewTaskStatusRegistry()
	r.MarkHealthy("a", time.Now())
	r.MarkUnhealthy("b", "err", time.Now())

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.True(t, snap["a"].Healthy)
	assert.False(t, snap["b"].Healthy)
}

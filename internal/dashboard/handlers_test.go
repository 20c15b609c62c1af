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

package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maerty1/scada/internal/syncmodel"
)

type fakeRowProvider struct {
	rows map[string]syncmodel.Record
}

func (f *fakeRowProvider) LatestRow(ctx context.Context, table string) (syncmodel.Record, bool, error) {
	rec, ok := f.rows[table]
	return rec, ok, nil
}

func TestHandleData_ReportsOutdatedAndEmptyTables(t *testing.T) {
	now := time.Now()
	v := 12.5
	rows := &fakeRowProvider{rows: map[string]syncmodel.Record{
		"Dynamic_Fresh": {RecTime: now.Add(-time.Minute), T1: &v},
		"Dynamic_Stale": {RecTime: now.Add(-time.Hour)},
	}}

	displayNames := map[string]string{"Dynamic_Fresh": "Boiler Room"}
	srv := NewServer(logr.Discard(), []string{"Dynamic_Fresh", "Dynamic_Stale", "Dynamic_Never"}, displayNames, rows,
		syncmodel.NewTaskStatusRegistry(), syncmodel.NewWatermarkCache(), nil)
	srv.StalenessThreshold = 5 * time.Minute

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	srv.handleData(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var out map[string]tableSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	assert.False(t, out["Dynamic_Fresh"].Outdated)
	require.NotNil(t, out["Dynamic_Fresh"].T1)
	assert.InDelta(t, 12.5, *out["Dynamic_Fresh"].T1, 0.0001)
	assert.Equal(t, "Boiler Room", out["Dynamic_Fresh"].DisplayName)
	assert.Equal(t, "Dynamic_Stale", out["Dynamic_Stale"].DisplayName, "falls back to the physical table name when unconfigured")

	assert.True(t, out["Dynamic_Stale"].Outdated)
	assert.True(t, out["Dynamic_Never"].Empty)
	assert.True(t, out["Dynamic_Never"].Outdated)
}

func TestHandleHealth_ReturnsUnavailableWhenUnhealthy(t *testing.T) {
	status := syncmodel.NewTaskStatusRegistry()
	status.MarkUnhealthy("job1", "boom", time.Now())

	srv := NewServer(logr.Discard(), nil, nil, &fakeRowProvider{}, status, syncmodel.NewWatermarkCache(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealth_ReturnsOKWhenDegraded(t *testing.T) {
	status := syncmodel.NewTaskStatusRegistry()
	status.MarkHealthy("job1", time.Now())
	status.MarkUnhealthy("job2", "boom", time.Now())

	srv := NewServer(logr.Discard(), nil, nil, &fakeRowProvider{}, status, syncmodel.NewWatermarkCache(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, syncmodel.StatusDegraded, body.Status)
}

func TestHandleHealth_ReturnsUnavailableWhenShuttingDown(t *testing.T) {
	status := syncmodel.NewTaskStatusRegistry()
	status.MarkHealthy("job1", time.Now())

	srv := NewServer(logr.Discard(), nil, nil, &fakeRowProvider{}, status, syncmodel.NewWatermarkCache(), nil)
	srv.MarkShuttingDown()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleIndex_ServesHTML(t *testing.T) {
	srv := NewServer(logr.Discard(), nil, nil, &fakeRowProvider{}, syncmodel.NewTaskStatusRegistry(), syncmodel.NewWatermarkCache(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.handleIndex(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html>")
}

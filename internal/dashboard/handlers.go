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
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/maerty1/scada/internal/httputil"
	"github.com/maerty1/scada/internal/syncmodel"
)

// tableSnapshot is one Dynamic_* table's most recent row, with the
// identifying admin columns (ObjectId, ID, OBJID) left out: the dashboard
// shows readings, not row identity.
type tableSnapshot struct {
	Table       string     `json:"table"`
	DisplayName string     `json:"displayName"`
	Empty       bool       `json:"empty"`
	RecTime     *time.Time `json:"recTime,omitempty"`
	Outdated    bool       `json:"outdated"`

	T1 *float64 `json:"t1,omitempty"`
	T2 *float64 `json:"t2,omitempty"`
	T3 *float64 `json:"t3,omitempty"`
	T4 *float64 `json:"t4,omitempty"`
	T5 *float64 `json:"t5,omitempty"`
	T6 *float64 `json:"t6,omitempty"`
	T7 *float64 `json:"t7,omitempty"`
	T8 *float64 `json:"t8,omitempty"`
	V1 *float64 `json:"v1,omitempty"`
	V2 *float64 `json:"v2,omitempty"`
	V3 *float64 `json:"v3,omitempty"`
	V4 *float64 `json:"v4,omitempty"`
	V5 *float64 `json:"v5,omitempty"`
	P1 *float64 `json:"p1,omitempty"`
	P2 *float64 `json:"p2,omitempty"`
	P3 *float64 `json:"p3,omitempty"`
	P4 *float64 `json:"p4,omitempty"`
	H1 *float64 `json:"h1,omitempty"`
	H2 *float64 `json:"h2,omitempty"`
	H3 *float64 `json:"h3,omitempty"`
	H4 *float64 `json:"h4,omitempty"`
}

func snapshotFromRecord(table, displayName string, rec syncmodel.Record, found bool, now time.Time, staleAfter time.Duration) tableSnapshot {
	if !found {
		return tableSnapshot{Table: table, DisplayName: displayName, Empty: true, Outdated: true}
	}
	recTime := rec.RecTime
	outdated := staleAfter > 0 && now.Sub(recTime) > staleAfter
	return tableSnapshot{
		Table: table, DisplayName: displayName, RecTime: &recTime, Outdated: outdated,
		T1: rec.T1, T2: rec.T2, T3: rec.T3, T4: rec.T4, T5: rec.T5, T6: rec.T6, T7: rec.T7, T8: rec.T8,
		V1: rec.V1, V2: rec.V2, V3: rec.V3, V4: rec.V4, V5: rec.V5,
		P1: rec.P1, P2: rec.P2, P3: rec.P3, P4: rec.P4,
		H1: rec.H1, H2: rec.H2, H3: rec.H3, H4: rec.H4,
	}
}

// displayNameFor returns the configured label for table, falling back to
// the physical table name when none is configured.
func (s *Server) displayNameFor(table string) string {
	if name, ok := s.displayNames[table]; ok && name != "" {
		return name
	}
	return table
}

// handleData returns the most recent row of every configured destination
// table, keyed by table name.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requestID := uuid.NewString()
	now := time.Now()
	out := make(map[string]tableSnapshot, len(s.tables))
	for _, table := range s.tables {
		displayName := s.displayNameFor(table)
		rec, ok, err := s.rows.LatestRow(r.Context(), table)
		if err != nil {
			s.log.Error(err, "failed to read latest row", "table", table, "requestId", requestID)
			out[table] = tableSnapshot{Table: table, DisplayName: displayName, Empty: true, Outdated: true}
			continue
		}
		out[table] = snapshotFromRecord(table, displayName, rec, ok, now, s.StalenessThreshold)
	}

	w.Header().Set("Cache-Control", "no-store")
	if err := httputil.WriteJSON(w, http.StatusOK, out); err != nil {
		s.log.Error(err, "failed to encode /data response", "requestId", requestID)
	}
}

// healthResponse is the /health endpoint's body.
type healthResponse struct {
	Status             syncmodel.OverallStatus         `json:"status"`
	UptimeSeconds      float64                         `json:"uptimeSeconds"`
	Workers            map[string]syncmodel.TaskStatus `json:"workers"`
	WatermarkCacheSize int                             `json:"watermarkCacheSize"`
	Pools              []poolSnapshotView              `json:"pools"`
	ShuttingDown       bool                            `json:"shuttingDown"`
	Timestamp          time.Time                       `json:"timestamp"`
}

type poolSnapshotView struct {
	Key   string `json:"key"`
	Size  int    `json:"size"`
	Idle  int    `json:"idle"`
	InUse int    `json:"inUse"`
}

// handleHealth reports aggregate collector health: 200 while at least
// starting-or-better and not draining for shutdown, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	overall := s.status.Overall()
	shuttingDown := s.stopping.Load()

	var pools []poolSnapshotView
	if s.pools != nil {
		for _, p := range s.pools.Snapshot() {
			pools = append(pools, poolSnapshotView{Key: p.Key, Size: p.Size, Idle: p.Idle, InUse: p.InUse})
		}
	}

	resp := healthResponse{
		Status:             overall,
		UptimeSeconds:      now.Sub(s.startAt).Seconds(),
		Workers:            s.status.Snapshot(),
		WatermarkCacheSize: s.cache.Len(),
		Pools:              pools,
		ShuttingDown:       shuttingDown,
		Timestamp:          now,
	}

	statusCode := http.StatusOK
	if shuttingDown || overall == syncmodel.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	if err := httputil.WriteJSON(w, statusCode, resp); err != nil {
		s.log.Error(err, "failed to encode /health response")
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>scada collector</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
    .outdated { color: #b00; }
  </style>
</head>
<body>
  <h1>scada collector</h1>
  <div id="status">loading...</div>
  <table id="tables"><thead><tr><th>table</th><th>rec time</th><th>t1</th><th>v1</th><th>p1</th><th>h1</th></tr></thead><tbody></tbody></table>
  <script>
    async function poll() {
      try {
        const [health, data] = await Promise.all([
          fetch('/health').then(r => r.json()),
          fetch('/data').then(r => r.json()),
        ]);
        document.getElementById('status').textContent = 'status: ' + health.status + ' (uptime ' + Math.round(health.uptimeSeconds) + 's)';
        const body = document.querySelector('#tables tbody');
        body.innerHTML = '';
        for (const table of Object.keys(data).sort()) {
          const row = data[table];
          const tr = document.createElement('tr');
          if (row.outdated) tr.className = 'outdated';
          tr.innerHTML = '<td>' + table + '</td><td>' + (row.recTime || '-') + '</td><td>' +
            (row.t1 ?? '-') + '</td><td>' + (row.v1 ?? '-') + '</td><td>' + (row.p1 ?? '-') + '</td><td>' + (row.h1 ?? '-') + '</td>';
          body.appendChild(tr);
        }
      } catch (e) {
        document.getElementById('status').textContent = 'status: unreachable';
      }
    }
    poll();
    setInterval(poll, 5000);
  </script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

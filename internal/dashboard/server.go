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

// Package dashboard serves the collector's small operator-facing HTTP
// surface: a polling status page, a JSON snapshot of each destination
// table's most recent row, an aggregate health check, and Prometheus
// metrics.
package dashboard

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maerty1/scada/internal/httputil"
	"github.com/maerty1/scada/internal/pool"
	"github.com/maerty1/scada/internal/syncmodel"
)

// LatestRowProvider resolves the most recently inserted row for a
// destination table, used by the /data snapshot.
type LatestRowProvider interface {
	LatestRow(ctx context.Context, table string) (syncmodel.Record, bool, error)
}

// Server hosts the collector's dashboard endpoints.
type Server struct {
	log logr.Logger

	tables       []string
	displayNames map[string]string
	rows         LatestRowProvider
	status       *syncmodel.TaskStatusRegistry
	cache        *syncmodel.WatermarkCache
	pools        *pool.Registry
	startAt      time.Time
	stopping     atomic.Bool

	// StalenessThreshold marks a table's snapshot row "outdated" in /data
	// when it is older than this relative to the request time. NewServer
	// sets it to one hour.
	StalenessThreshold time.Duration
}

// NewServer creates a dashboard server over the given destination tables.
// displayNames maps a physical table name to the label shown in / and
// /data; a table absent from the map falls back to its physical name.
func NewServer(log logr.Logger, tables []string, displayNames map[string]string, rows LatestRowProvider, status *syncmodel.TaskStatusRegistry, cache *syncmodel.WatermarkCache, pools *pool.Registry) *Server {
	return &Server{
		log:                log.WithName("dashboard"),
		tables:             tables,
		displayNames:       displayNames,
		rows:               rows,
		status:             status,
		cache:              cache,
		pools:              pools,
		startAt:            time.Now(),
		StalenessThreshold: time.Hour,
	}
}

// MarkShuttingDown flips the /health endpoint to report unavailable, used
// while main drains in-flight cycles before exiting.
func (s *Server) MarkShuttingDown() {
	s.stopping.Store(true)
}

// Handler returns the dashboard's http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	corsHandler := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("/", corsHandler(s.handleIndex))
	mux.HandleFunc("/data", corsHandler(s.handleData))
	mux.HandleFunc("/health", corsHandler(s.handleHealth))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run starts the dashboard HTTP server and blocks until ctx is cancelled,
// then shuts it down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down dashboard server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error(err, "error shutting down dashboard server")
		}
	}()

	s.log.Info("starting dashboard server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	if err := httputil.WriteJSON(w, status, map[string]string{"error": message}); err != nil {
		s.log.Error(err, "failed to encode error response")
	}
}

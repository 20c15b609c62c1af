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

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/maerty1/scada/internal/drivers/mssql"
	"github.com/maerty1/scada/internal/syncmodel"
	"github.com/maerty1/scada/pkg/metrics"
)

// Notifier sends a single outbound alert message. Rate limiting is the
// caller's responsibility (via syncmodel.NotificationGate); Notifier itself
// just delivers.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// SyncSource fetches rows committed strictly after since, in any order.
type SyncSource interface {
	FetchSince(ctx context.Context, since time.Time) ([]syncmodel.Record, error)
}

// SyncDest is the destination side shared by every worker kind: it inserts
// rows with duplicate-key fallback and can resolve the current watermark
// directly from the table when the cache has never seen it.
type SyncDest interface {
	Insert(ctx context.Context, rows []syncmodel.Record) (mssql.BatchResult, error)
	MaxTimestamp(ctx context.Context) (time.Time, bool, error)
}

// DBWorker runs one SQL-Server-to-SQL-Server incremental sync job: read
// watermark, fetch delta, insert, advance watermark, sleep; on failure,
// back off and retry instead of advancing.
type DBWorker struct {
	Job    syncmodel.DBSyncJob
	Source SyncSource
	Dest   SyncDest

	Cache    *syncmodel.WatermarkCache
	HotCache *syncmodel.RedisMirror
	Status   *syncmodel.TaskStatusRegistry

	Gate               *syncmodel.NotificationGate
	Staleness          *syncmodel.StalenessState
	StalenessThreshold time.Duration
	Notifier           Notifier

	// Metrics is optional; when nil, cycle instrumentation is skipped.
	Metrics *metrics.SyncMetrics

	Log logr.Logger
	Now func() time.Time
}

func (w *DBWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run loops until ctx is cancelled, sleeping Job.SyncInterval between
// successful cycles and an exponentially growing backoff between failed
// ones.
func (w *DBWorker) Run(ctx context.Context) {
	backoff := time.Duration(0)
	for {
		if ctx.Err() != nil {
			return
		}

		start := w.now()
		rowsCopied, err := w.runCycle(ctx)
		if w.Metrics != nil {
			w.Metrics.RecordCycle(w.Job.Name, w.now().Sub(start), rowsCopied, err)
		}
		if err != nil {
			w.Status.MarkUnhealthy(w.Job.Name, err.Error(), w.now())
			w.Log.Error(err, "db sync cycle failed", "job", w.Job.Name)
			backoff = NextBackoff(backoff)
			if sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}

		backoff = 0
		w.Status.MarkHealthy(w.Job.Name, w.now())
		if sleepOrDone(ctx, w.Job.SyncInterval) {
			return
		}
	}
}

func (w *DBWorker) runCycle(ctx context.Context) (int, error) {
	since, err := w.resolveWatermark(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve watermark: %w", err)
	}

	rows, err := w.Source.FetchSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("fetch delta: %w", err)
	}

	newWatermark := since
	for _, r := range rows {
		if r.RecTime.After(newWatermark) {
			newWatermark = r.RecTime
		}
	}

	inserted := 0
	if len(rows) > 0 {
		result, err := w.Dest.Insert(ctx, rows)
		if err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		inserted = result.Inserted
		w.Log.Info("db sync cycle inserted rows", "job", w.Job.Name,
			"inserted", result.Inserted, "dropped", result.Dropped, "fellBack", result.FellBackToPerRow)
	}

	w.advanceWatermark(ctx, newWatermark)
	if w.Metrics != nil {
		w.Metrics.RecordWatermarkLag(w.Job.DestTable, w.now(), newWatermark)
	}
	w.maybeNotifyStale(ctx, newWatermark)
	return inserted, nil
}

func (w *DBWorker) resolveWatermark(ctx context.Context) (time.Time, error) {
	return resolveWatermark(ctx, w.Job.DestTable, w.Cache, w.HotCache, w.Dest)
}

func (w *DBWorker) advanceWatermark(ctx context.Context, ts time.Time) {
	advanceWatermark(ctx, w.Job.DestTable, ts, w.Cache, w.HotCache, w.Log)
}

func (w *DBWorker) maybeNotifyStale(ctx context.Context, watermark time.Time) {
	notifyIfStale(ctx, staleCheck{
		table:     w.Job.DestTable,
		watermark: watermark,
		now:       w.now(),
		threshold: w.StalenessThreshold,
		jobName:   w.Job.Name,
		staleness: w.Staleness,
		gate:      w.Gate,
		notifier:  w.Notifier,
		metrics:   w.Metrics,
		log:       w.Log,
	})
}

// resolveWatermark is shared by every worker kind: check the in-memory
// cache, then the optional Redis mirror, then fall back to reading the
// destination table directly (the only path that can observe a table that
// has never been synced, in which case EpochWatermark is adopted).
func resolveWatermark(ctx context.Context, table string, cache *syncmodel.WatermarkCache, hot *syncmodel.RedisMirror, dest SyncDest) (time.Time, error) {
	if ts, ok := cache.Get(table); ok {
		return ts, nil
	}
	if hot != nil {
		if ts, ok, err := hot.Get(ctx, table); err == nil && ok {
			cache.Set(table, ts)
			return ts, nil
		}
	}
	ts, ok, err := dest.MaxTimestamp(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		ts = syncmodel.EpochWatermark
	}
	cache.Set(table, ts)
	return ts, nil
}

func advanceWatermark(ctx context.Context, table string, ts time.Time, cache *syncmodel.WatermarkCache, hot *syncmodel.RedisMirror, log logr.Logger) {
	cache.Set(table, ts)
	if hot == nil {
		return
	}
	if err := hot.Set(ctx, table, ts); err != nil {
		log.Error(err, "hot cache mirror write failed (best-effort)", "table", table)
	}
}

// staleCheck bundles the arguments shared by every worker's staleness
// notification step.
type staleCheck struct {
	table     string
	watermark time.Time
	now       time.Time
	threshold time.Duration
	jobName   string

	staleness *syncmodel.StalenessState
	gate      *syncmodel.NotificationGate
	notifier  Notifier
	metrics   *metrics.SyncMetrics
	log       logr.Logger
}

func notifyIfStale(ctx context.Context, c staleCheck) {
	if c.staleness == nil || c.threshold <= 0 {
		return
	}
	if !c.staleness.Observe(c.table, c.watermark, c.now, c.threshold) {
		return
	}
	if c.gate == nil || c.notifier == nil {
		return
	}
	if !c.gate.CanSend(c.now, false) {
		if c.metrics != nil {
			c.metrics.RecordNotificationSuppressed()
		}
		return
	}
	msg := fmt.Sprintf("sync job %q: destination table %q has not advanced in over %s",
		c.jobName, c.table, c.threshold)
	if err := c.notifier.Notify(ctx, msg); err != nil {
		c.log.Error(err, "staleness notification failed", "job", c.jobName)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordNotificationSent()
	}
}

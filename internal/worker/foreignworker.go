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

	"github.com/maerty1/scada/internal/drivers/firebird"
	"github.com/maerty1/scada/internal/syncmodel"
	"github.com/maerty1/scada/pkg/metrics"
)

// ForeignSource fetches rows from the foreign (Firebird) database committed
// after since, restricted to objectFilter, as dynamically-columned rows.
type ForeignSource interface {
	FetchSince(ctx context.Context, since time.Time, objectFilter string) ([]firebird.Row, error)
}

// ForeignWorker runs one Firebird-to-SQL-Server incremental sync job. Its
// shape mirrors DBWorker; the differences are the dynamic-column source
// and dispatch through a shared semaphore, since foreign queries and network
// shares are the collector's only genuinely blocking I/O.
type ForeignWorker struct {
	Job    syncmodel.ForeignSyncJob
	Source ForeignSource
	Dest   SyncDest
	Sem    *Semaphore

	Cache    *syncmodel.WatermarkCache
	HotCache *syncmodel.RedisMirror
	Status   *syncmodel.TaskStatusRegistry

	Gate               *syncmodel.NotificationGate
	Staleness          *syncmodel.StalenessState
	StalenessThreshold time.Duration
	Notifier           Notifier

	Metrics *metrics.SyncMetrics

	Log logr.Logger
	Now func() time.Time
}

func (w *ForeignWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run loops until ctx is cancelled, identically to DBWorker.Run.
func (w *ForeignWorker) Run(ctx context.Context) {
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
			w.Log.Error(err, "foreign sync cycle failed", "job", w.Job.Name)
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

func (w *ForeignWorker) runCycle(ctx context.Context) (int, error) {
	since, err := resolveWatermark(ctx, w.Job.DestTable, w.Cache, w.HotCache, w.Dest)
	if err != nil {
		return 0, fmt.Errorf("resolve watermark: %w", err)
	}

	if err := w.Sem.Acquire(ctx); err != nil {
		return 0, fmt.Errorf("acquire semaphore: %w", err)
	}
	foreignRows, err := w.Source.FetchSince(ctx, since, w.Job.ObjectFilter)
	w.Sem.Release()
	if err != nil {
		return 0, fmt.Errorf("fetch delta: %w", err)
	}

	newWatermark := since
	rows := make([]syncmodel.Record, 0, len(foreignRows))
	for _, fr := range foreignRows {
		rec, err := fr.ToRecord(w.Job.ObjectFilter)
		if err != nil {
			w.Log.Error(err, "skipping malformed foreign row", "job", w.Job.Name)
			continue
		}
		rows = append(rows, rec)
		if rec.RecTime.After(newWatermark) {
			newWatermark = rec.RecTime
		}
	}

	inserted := 0
	if len(rows) > 0 {
		result, err := w.Dest.Insert(ctx, rows)
		if err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		inserted = result.Inserted
		w.Log.Info("foreign sync cycle inserted rows", "job", w.Job.Name,
			"inserted", result.Inserted, "dropped", result.Dropped, "fellBack", result.FellBackToPerRow)
	}

	advanceWatermark(ctx, w.Job.DestTable, newWatermark, w.Cache, w.HotCache, w.Log)
	if w.Metrics != nil {
		w.Metrics.RecordWatermarkLag(w.Job.DestTable, w.now(), newWatermark)
	}
	notifyIfStale(ctx, staleCheck{
		table:     w.Job.DestTable,
		watermark: newWatermark,
		now:       w.now(),
		threshold: w.StalenessThreshold,
		jobName:   w.Job.Name,
		staleness: w.Staleness,
		gate:      w.Gate,
		notifier:  w.Notifier,
		metrics:   w.Metrics,
		log:       w.Log,
	})
	return inserted, nil
}

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
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/maerty1/scada/internal/drivers/spreadsheet"
	"github.com/maerty1/scada/internal/syncmodel"
	"github.com/maerty1/scada/pkg/metrics"
)

// FileInfo describes one candidate workbook in the monitored directory.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
}

// fileBookkeeping is the per-file re-scan state the policy in rescan.go
// consults: when the file was last checked.
type fileBookkeeping struct {
	lastChecked time.Time
}

// FileWorker runs the spreadsheet-directory ingest job: scan, decide which
// files warrant a (re-)read via the canonical re-scan policy, snapshot and
// parse them, insert the delta, and advance the watermark.
type FileWorker struct {
	Job  syncmodel.FileIngestJob
	Dest SyncDest
	Sem  *Semaphore

	Cache    *syncmodel.WatermarkCache
	HotCache *syncmodel.RedisMirror
	Status   *syncmodel.TaskStatusRegistry

	Gate               *syncmodel.NotificationGate
	Staleness          *syncmodel.StalenessState
	StalenessThreshold time.Duration
	Notifier           Notifier

	Metrics *metrics.SyncMetrics

	// ListFiles, Snapshot and ParseWorkbook default to filesystem-backed
	// implementations; tests override them to avoid touching disk.
	ListFiles     func(dir, suffix string) ([]FileInfo, error)
	Snapshot      func(path string) (snapshotPath string, cleanup func(), err error)
	ParseWorkbook func(path string, skipFooterRows int) (spreadsheet.Result, error)

	Log logr.Logger
	Now func() time.Time

	mu    sync.Mutex
	state map[string]*fileBookkeeping
}

func (w *FileWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *FileWorker) listFiles() func(dir, suffix string) ([]FileInfo, error) {
	if w.ListFiles != nil {
		return w.ListFiles
	}
	return listFilesystem
}

func (w *FileWorker) snapshot() func(path string) (string, func(), error) {
	if w.Snapshot != nil {
		return w.Snapshot
	}
	return snapshotFile
}

func (w *FileWorker) parseWorkbook() func(path string, skipFooterRows int) (spreadsheet.Result, error) {
	if w.ParseWorkbook != nil {
		return w.ParseWorkbook
	}
	return spreadsheet.Parse
}

// nextInterval returns the inter-cycle sleep duration. A configured
// ScanSchedule (standard 5-field cron) overrides the fixed MonitorInterval,
// letting an operator confine scans to e.g. business hours; an invalid
// expression is logged and falls back to MonitorInterval.
func (w *FileWorker) nextInterval(now time.Time) time.Duration {
	if w.Job.ScanSchedule == "" {
		return w.Job.MonitorInterval
	}
	sched, err := cron.ParseStandard(w.Job.ScanSchedule)
	if err != nil {
		w.Log.Error(err, "invalid scan schedule, falling back to monitor interval", "job", w.Job.Name, "schedule", w.Job.ScanSchedule)
		return w.Job.MonitorInterval
	}
	next := sched.Next(now)
	if d := next.Sub(now); d > 0 {
		return d
	}
	return w.Job.MonitorInterval
}

func (w *FileWorker) bookkeeping(name string) *fileBookkeeping {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == nil {
		w.state = make(map[string]*fileBookkeeping)
	}
	st, ok := w.state[name]
	if !ok {
		st = &fileBookkeeping{}
		w.state[name] = st
	}
	return st
}

// Run loops until ctx is cancelled. The inter-cycle sleep is nextInterval:
// the job's MonitorInterval (the directory scan cadence), or the time until
// the next ScanSchedule firing when one is configured, separate from
// FileCheckInterval (the per-file routine re-check cadence the rescan
// policy applies within a single scan).
func (w *FileWorker) Run(ctx context.Context) {
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
			w.Log.Error(err, "file ingest cycle failed", "job", w.Job.Name)
			backoff = NextBackoff(backoff)
			if sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}

		backoff = 0
		w.Status.MarkHealthy(w.Job.Name, w.now())
		if sleepOrDone(ctx, w.nextInterval(w.now())) {
			return
		}
	}
}

func (w *FileWorker) runCycle(ctx context.Context) (int, error) {
	watermark, err := resolveWatermark(ctx, w.Job.DestTable, w.Cache, w.HotCache, w.Dest)
	if err != nil {
		return 0, fmt.Errorf("resolve watermark: %w", err)
	}
	files, err := w.listFiles()(w.Job.FilesDirectory, w.Job.FilenamePattern)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	now := w.now()
	cutoff := now.AddDate(0, 0, -w.Job.LookbackDays)
	newWatermark := watermark
	processed, skipped, rowsCopied := 0, 0, 0

	for _, f := range files {
		if f.ModTime.Before(cutoff) {
			continue
		}

		fileDate := parseFileDate(f.Name, f.ModTime)
		st := w.bookkeeping(f.Name)
		hasLastChecked := !st.lastChecked.IsZero()

		if !rescanDecision(now, fileDate, f.ModTime, watermark, st.lastChecked, hasLastChecked, w.Job.FileCheckInterval) {
			skipped++
			continue
		}
		st.lastChecked = now

		ts, inserted, err := w.ingestFile(ctx, f, watermark)
		if err != nil {
			w.Log.Error(err, "file ingest failed", "job", w.Job.Name, "file", f.Name)
			continue
		}
		processed++
		rowsCopied += inserted
		if inserted == 0 && fileDate.Equal(dateOnly(now)) && f.ModTime.After(watermark) {
			w.logZeroRowDiagnostic(f, now)
		}
		if ts.After(newWatermark) {
			newWatermark = ts
		}
	}

	if destTS, ok, err := w.Dest.MaxTimestamp(ctx); err != nil {
		w.Log.Error(err, "re-read destination watermark failed", "job", w.Job.Name)
	} else if ok && destTS.After(newWatermark) {
		newWatermark = destTS
	}

	if newWatermark.After(watermark) {
		advanceWatermark(ctx, w.Job.DestTable, newWatermark, w.Cache, w.HotCache, w.Log)
	}
	if w.Metrics != nil {
		w.Metrics.RecordWatermarkLag(w.Job.DestTable, now, newWatermark)
	}
	w.Log.Info("file ingest cycle complete", "job", w.Job.Name, "processed", processed, "skipped", skipped)

	notifyIfStale(ctx, staleCheck{
		table:     w.Job.DestTable,
		watermark: newWatermark,
		now:       now,
		threshold: w.StalenessThreshold,
		jobName:   w.Job.Name,
		staleness: w.Staleness,
		gate:      w.Gate,
		notifier:  w.Notifier,
		metrics:   w.Metrics,
		log:       w.Log,
	})
	return rowsCopied, nil
}

// logZeroRowDiagnostic fires when today's file was modified after the
// watermark but contributed no new rows: it distinguishes a writer still
// actively appending (recent mtime, more rows likely coming) from a file
// that has simply stopped advancing (stale).
func (w *FileWorker) logZeroRowDiagnostic(f FileInfo, now time.Time) {
	if now.Sub(f.ModTime) < w.Job.FileCheckInterval {
		w.Log.Info("file still being written: modified after watermark but no new rows yet",
			"job", w.Job.Name, "file", f.Name, "modTime", f.ModTime)
		return
	}
	w.Log.Info("stale file: modified after watermark but no new rows found",
		"job", w.Job.Name, "file", f.Name, "modTime", f.ModTime)
}

func (w *FileWorker) ingestFile(ctx context.Context, f FileInfo, watermark time.Time) (time.Time, int, error) {
	if err := w.Sem.Acquire(ctx); err != nil {
		return time.Time{}, 0, fmt.Errorf("acquire semaphore: %w", err)
	}
	defer w.Sem.Release()

	snapshotPath, cleanup, err := w.snapshot()(f.Path)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("snapshot %s: %w", f.Name, err)
	}
	defer cleanup()

	result, err := w.parseWorkbook()(snapshotPath, w.Job.SkipFooterRows)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("parse %s: %w", f.Name, err)
	}

	var rows []syncmodel.Record
	newest := watermark
	for _, pr := range result.Rows {
		if !pr.Timestamp.After(watermark) {
			continue
		}
		rows = append(rows, toRecord(w.Job, pr))
		if pr.Timestamp.After(newest) {
			newest = pr.Timestamp
		}
	}
	if len(rows) == 0 {
		return watermark, 0, nil
	}

	insertResult, err := w.Dest.Insert(ctx, rows)
	if err != nil {
		return watermark, 0, fmt.Errorf("insert %s: %w", f.Name, err)
	}
	w.Log.Info("ingested spreadsheet rows", "job", w.Job.Name, "file", f.Name,
		"inserted", insertResult.Inserted, "dropped", insertResult.Dropped)
	return newest, insertResult.Inserted, nil
}

func toRecord(job syncmodel.FileIngestJob, pr spreadsheet.ParsedRow) syncmodel.Record {
	return syncmodel.Record{
		ObjectID: job.ObjectID,
		ID:       job.IDValue,
		OBJID:    job.ObjIDValue,
		RecTime:  pr.Timestamp,
		T1:       pr.T1, T2: pr.T2, T3: pr.T3,
		V1: pr.V1, V2: pr.V2, V3: pr.V3,
		P1: pr.P1, P2: pr.P2,
		H1: pr.H1, H2: pr.H2,
	}
}

func listFilesystem(dir, suffix string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, FileInfo{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// snapshotFile copies path to a temp file and returns it plus a cleanup
// func that removes the copy. This guards against reading a workbook while
// the upstream application still has it open for writing: excelize needs a
// stable byte stream, not a file that may change mid-read.
func snapshotFile(path string) (string, func(), error) {
	src, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "scada-ingest-*.xlsx")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}

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

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/maerty1/scada/internal/config"
	"github.com/maerty1/scada/internal/dashboard"
	"github.com/maerty1/scada/internal/drivers/firebird"
	"github.com/maerty1/scada/internal/drivers/mssql"
	"github.com/maerty1/scada/internal/notify"
	"github.com/maerty1/scada/internal/pool"
	"github.com/maerty1/scada/internal/syncmodel"
	"github.com/maerty1/scada/internal/worker"
	"github.com/maerty1/scada/pkg/logging"
	"github.com/maerty1/scada/pkg/metrics"
)

// foreignConcurrency bounds how many foreign-database queries and
// network-share reads can be in flight at once, shared across every
// ForeignWorker and the file-ingest worker.
const foreignConcurrency = 12

// flags groups the binary's CLI flags.
type flags struct {
	configPath string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configPath, "config", "/etc/scada/config.yaml", "Path to collector config YAML")
	flag.Parse()
	if f.configPath == "" {
		f.configPath = os.Getenv("SCADA_CONFIG_PATH")
	}
	return f
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	log, sync, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer sync()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sm := metrics.NewSyncMetrics()

	pools := pool.NewRegistry(pool.DefaultConfig(), sql.Open)
	defer func() {
		if closeErr := pools.Close(); closeErr != nil {
			log.Error(closeErr, "error closing pool registry")
		}
	}()

	cache := syncmodel.NewWatermarkCache()
	statusReg := syncmodel.NewTaskStatusRegistry()
	gate := syncmodel.NewNotificationGate(cfg.Chat.RateLimitMessages, cfg.Chat.RateLimitWindow, cfg.Chat.RateLimitCooldown)
	staleness := syncmodel.NewStalenessState()

	var hotCache *syncmodel.RedisMirror
	if cfg.RedisAddr != "" {
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		hotCache = syncmodel.NewRedisMirror(client, "scada:watermark:")
		defer func() { _ = client.Close() }()
	}

	var notifier worker.Notifier
	if cfg.Chat.Token != "" {
		notifier = notify.NewTelegramClient(cfg.Chat.Token, cfg.Chat.ChatID, log)
	}

	dests := &destIndex{byTable: map[string]*mssql.Dest{}}
	sem := worker.NewSemaphore(foreignConcurrency)

	var wg sync.WaitGroup
	var tables []string

	for _, job := range cfg.DBSyncJobs() {
		srcDB, err := pools.Borrow(ctx, job.Source.Key(), mssql.DriverName, mssql.DSN(job.Source))
		if err != nil {
			return fmt.Errorf("db job %s: borrow source pool: %w", job.Name, err)
		}
		dstDB, err := pools.Borrow(ctx, job.Dest.Key(), mssql.DriverName, mssql.DSN(job.Dest))
		if err != nil {
			return fmt.Errorf("db job %s: borrow dest pool: %w", job.Name, err)
		}
		dest := &mssql.Dest{DB: dstDB, Table: job.DestTable}
		dests.add(job.DestTable, dest)
		tables = append(tables, job.DestTable)

		w := &worker.DBWorker{
			Job:                job,
			Source:             &mssql.Source{DB: srcDB, Table: job.SourceTable},
			Dest:               dest,
			Cache:              cache,
			HotCache:           hotCache,
			Status:             statusReg,
			Gate:               gate,
			Staleness:          staleness,
			StalenessThreshold: cfg.NotificationTimeout,
			Notifier:           notifier,
			Metrics:            sm,
			Log:                log.WithName("worker.db").WithValues("job", job.Name),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	for _, job := range cfg.ForeignSyncJobs() {
		srcDB, err := pools.Borrow(ctx, job.Source.Key(), firebird.DriverName, firebird.DSN(job.Source))
		if err != nil {
			return fmt.Errorf("foreign job %s: borrow source pool: %w", job.Name, err)
		}
		dstDB, err := pools.Borrow(ctx, job.Dest.Key(), mssql.DriverName, mssql.DSN(job.Dest))
		if err != nil {
			return fmt.Errorf("foreign job %s: borrow dest pool: %w", job.Name, err)
		}
		dest := &mssql.Dest{DB: dstDB, Table: job.DestTable}
		dests.add(job.DestTable, dest)
		tables = append(tables, job.DestTable)

		w := &worker.ForeignWorker{
			Job:                job,
			Source:             &firebird.Source{DB: srcDB, Table: job.SourceTable},
			Dest:               dest,
			Sem:                sem,
			Cache:              cache,
			HotCache:           hotCache,
			Status:             statusReg,
			Gate:               gate,
			Staleness:          staleness,
			StalenessThreshold: cfg.NotificationTimeout,
			Notifier:           notifier,
			Metrics:            sm,
			Log:                log.WithName("worker.foreign").WithValues("job", job.Name),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	if job, ok := cfg.FileIngestJob(); ok {
		dstDB, err := pools.Borrow(ctx, job.Dest.Key(), mssql.DriverName, mssql.DSN(job.Dest))
		if err != nil {
			return fmt.Errorf("file ingest job: borrow dest pool: %w", err)
		}
		dest := &mssql.Dest{DB: dstDB, Table: job.DestTable}
		dests.add(job.DestTable, dest)
		tables = append(tables, job.DestTable)

		w := &worker.FileWorker{
			Job:                job,
			Dest:               dest,
			Sem:                sem,
			Cache:              cache,
			HotCache:           hotCache,
			Status:             statusReg,
			Gate:               gate,
			Staleness:          staleness,
			StalenessThreshold: cfg.NotificationTimeout,
			Notifier:           notifier,
			Metrics:            sm,
			Log:                log.WithName("worker.file").WithValues("job", job.Name),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	go reportPoolOccupancy(ctx, pools, sm)

	dash := dashboard.NewServer(log, tables, cfg.TableNames, dests, statusReg, cache, pools)
	dashErrCh := make(chan error, 1)
	go func() {
		dashErrCh <- dash.Run(ctx, cfg.WebBindAddr)
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining workers")
	dash.MarkShuttingDown()
	wg.Wait()

	if err := <-dashErrCh; err != nil {
		log.Error(err, "dashboard server error")
	}
	return nil
}

// destIndex fans LatestRow out to whichever *mssql.Dest owns table, so the
// dashboard can present a single LatestRowProvider across every job's
// destination connection.
type destIndex struct {
	mu      sync.RWMutex
	byTable map[string]*mssql.Dest
}

func (d *destIndex) add(table string, dest *mssql.Dest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byTable[table] = dest
}

func (d *destIndex) LatestRow(ctx context.Context, table string) (syncmodel.Record, bool, error) {
	d.mu.RLock()
	dest, ok := d.byTable[table]
	d.mu.RUnlock()
	if !ok {
		return syncmodel.Record{}, false, fmt.Errorf("dashboard: unknown table %q", table)
	}
	return dest.LatestRow(ctx, table)
}

// reportPoolOccupancy periodically mirrors the pool registry's snapshot
// into Prometheus gauges, until ctx is cancelled.
func reportPoolOccupancy(ctx context.Context, pools *pool.Registry, sm *metrics.SyncMetrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, snap := range pools.Snapshot() {
				sm.SetPoolConnectionsInUse(snap.Key, snap.InUse)
			}
		}
	}
}

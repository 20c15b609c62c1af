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

// Package config loads and validates the collector's YAML configuration:
// the destination database, chat-service credentials, the web bind
// address, and the three job arrays (DB-to-DB, Foreign-to-DB, and the
// single file-ingest block) that drive internal/worker.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maerty1/scada/internal/syncmodel"
)

// Endpoint is the YAML form of syncmodel.Endpoint.
type Endpoint struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

func (e Endpoint) toModel() syncmodel.Endpoint {
	return syncmodel.Endpoint{Host: e.Host, Port: e.Port, Database: e.Database, User: e.User, Password: e.Password}
}

// isZero reports whether e was left unset in YAML.
func (e Endpoint) isZero() bool {
	return e.Host == "" && e.Database == ""
}

// orDefault returns e, falling back to def when e is unset; used so a job or
// the file-ingest block can omit dest and inherit the top-level destination.
func (e Endpoint) orDefault(def Endpoint) Endpoint {
	if e.isZero() {
		return def
	}
	return e
}

// ChatConfig is the outbound alert channel's credentials and rate limiting.
type ChatConfig struct {
	Token             string        `yaml:"token"`
	ChatID            string        `yaml:"chat_id"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
}

// DBJobConfig is one DB-to-DB sync job entry.
type DBJobConfig struct {
	Name         string        `yaml:"name"`
	Source       Endpoint      `yaml:"source"`
	SourceTable  string        `yaml:"source_table"`
	Dest         Endpoint      `yaml:"dest"`
	DestTable    string        `yaml:"dest_table"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// ForeignJobConfig is one Firebird-to-DB sync job entry.
type ForeignJobConfig struct {
	Name         string        `yaml:"name"`
	Source       Endpoint      `yaml:"source"`
	SourceTable  string        `yaml:"source_table"`
	Dest         Endpoint      `yaml:"dest"`
	DestTable    string        `yaml:"dest_table"`
	ObjectFilter string        `yaml:"object_filter"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// ServiceCredentials is the network-share block's credential pair.
type ServiceCredentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// FileIngestConfig is the single file-ingest block.
type FileIngestConfig struct {
	Enabled              bool               `yaml:"enabled"`
	FilesDirectory       string             `yaml:"files_directory"`
	MonitorInterval      time.Duration      `yaml:"monitor_interval"`
	DaysToSearch         int                `yaml:"days_to_search"`
	SkipFooterRows       int                `yaml:"skip_footer_rows"`
	TargetTable          string             `yaml:"target_table"`
	NetworkCheckInterval time.Duration      `yaml:"network_check_interval"`
	FileCheckInterval    time.Duration      `yaml:"file_check_interval"`
	ObjectID             string             `yaml:"object_id"`
	IDValue              string             `yaml:"id_value"`
	ObjIDValue           string             `yaml:"objid_value"`
	ScanSchedule         string             `yaml:"scan_schedule"`
	Dest                 Endpoint           `yaml:"dest"`
	Service              ServiceCredentials `yaml:"service"`
}

// Config is the collector's top-level configuration, loaded from YAML.
type Config struct {
	Destination         Endpoint           `yaml:"destination"`
	Chat                ChatConfig         `yaml:"chat"`
	WebBindAddr         string             `yaml:"web_bind_addr"`
	SyncInterval        time.Duration      `yaml:"sync_interval"`
	NotificationTimeout time.Duration      `yaml:"notification_timeout"`
	TableNames          map[string]string  `yaml:"table_names"`
	DBJobs              []DBJobConfig      `yaml:"db_jobs"`
	ForeignJobs         []ForeignJobConfig `yaml:"foreign_jobs"`
	FileIngest          FileIngestConfig   `yaml:"file_ingest"`
	RedisAddr           string             `yaml:"redis_addr"`
}

// DefaultConfig returns a Config with the documented defaults: a 2-hour
// notification timeout and no jobs configured.
func DefaultConfig() Config {
	return Config{
		WebBindAddr:         ":8080",
		SyncInterval:        60 * time.Second,
		NotificationTimeout: 2 * time.Hour,
		TableNames:          map[string]string{},
	}
}

// Load reads and parses the YAML file at path, applies environment-variable
// overrides for secrets, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides fills credential fields from the environment when the
// file leaves them blank, following cmd/compaction/main.go's
// flag-then-os.Getenv fallback pattern for secrets that shouldn't be
// committed to a config file.
func applyEnvOverrides(cfg *Config) {
	if cfg.Destination.Password == "" {
		cfg.Destination.Password = os.Getenv("SCADA_DEST_PASSWORD")
	}
	if cfg.Chat.Token == "" {
		cfg.Chat.Token = os.Getenv("SCADA_CHAT_TOKEN")
	}
	if cfg.FileIngest.Service.Password == "" {
		cfg.FileIngest.Service.Password = os.Getenv("SCADA_NETWORK_PASSWORD")
	}
	for i := range cfg.DBJobs {
		if cfg.DBJobs[i].Source.Password == "" {
			cfg.DBJobs[i].Source.Password = os.Getenv("SCADA_DB_" + cfg.DBJobs[i].Name + "_SOURCE_PASSWORD")
		}
	}
	for i := range cfg.ForeignJobs {
		if cfg.ForeignJobs[i].Source.Password == "" {
			cfg.ForeignJobs[i].Source.Password = os.Getenv("SCADA_FOREIGN_" + cfg.ForeignJobs[i].Name + "_SOURCE_PASSWORD")
		}
	}
}

// Validate aggregates every configuration error into a single joined error,
// matching the ConfigInvalid taxonomy entry.
func (c *Config) Validate() error {
	var errs []error

	if c.Destination.Host == "" {
		errs = append(errs, errors.New("destination.host is required"))
	}
	if c.Destination.Database == "" {
		errs = append(errs, errors.New("destination.database is required"))
	}
	if c.WebBindAddr == "" {
		errs = append(errs, errors.New("web_bind_addr is required"))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("sync_interval must be positive"))
	}
	if c.NotificationTimeout <= 0 {
		errs = append(errs, errors.New("notification_timeout must be positive"))
	}

	for _, j := range c.DBJobs {
		if j.Name == "" {
			errs = append(errs, errors.New("db_jobs: name is required"))
		}
		if j.SourceTable == "" || j.DestTable == "" {
			errs = append(errs, fmt.Errorf("db_jobs[%s]: source_table and dest_table are required", j.Name))
		}
	}
	for _, j := range c.ForeignJobs {
		if j.Name == "" {
			errs = append(errs, errors.New("foreign_jobs: name is required"))
		}
		if j.SourceTable == "" || j.DestTable == "" {
			errs = append(errs, fmt.Errorf("foreign_jobs[%s]: source_table and dest_table are required", j.Name))
		}
	}
	if c.FileIngest.Enabled {
		if c.FileIngest.FilesDirectory == "" {
			errs = append(errs, errors.New("file_ingest.files_directory is required when enabled"))
		}
		if c.FileIngest.TargetTable == "" {
			errs = append(errs, errors.New("file_ingest.target_table is required when enabled"))
		}
	}

	return errors.Join(errs...)
}

// DBSyncJobs converts the configured DB-to-DB jobs into syncmodel form,
// defaulting each job's sync interval to the global SyncInterval when unset
// and its dest endpoint to the top-level destination when unset.
func (c *Config) DBSyncJobs() []syncmodel.DBSyncJob {
	out := make([]syncmodel.DBSyncJob, 0, len(c.DBJobs))
	for _, j := range c.DBJobs {
		interval := j.SyncInterval
		if interval <= 0 {
			interval = c.SyncInterval
		}
		out = append(out, syncmodel.DBSyncJob{
			Name: j.Name, Source: j.Source.toModel(), SourceTable: j.SourceTable,
			Dest: j.Dest.orDefault(c.Destination).toModel(), DestTable: j.DestTable, SyncInterval: interval,
		})
	}
	return out
}

// ForeignSyncJobs converts the configured Foreign-to-DB jobs into syncmodel
// form, using the same interval- and dest-defaulting rules as DBSyncJobs.
func (c *Config) ForeignSyncJobs() []syncmodel.ForeignSyncJob {
	out := make([]syncmodel.ForeignSyncJob, 0, len(c.ForeignJobs))
	for _, j := range c.ForeignJobs {
		interval := j.SyncInterval
		if interval <= 0 {
			interval = c.SyncInterval
		}
		out = append(out, syncmodel.ForeignSyncJob{
			Name: j.Name, Source: j.Source.toModel(), SourceTable: j.SourceTable,
			Dest: j.Dest.orDefault(c.Destination).toModel(), DestTable: j.DestTable,
			ObjectFilter: j.ObjectFilter, SyncInterval: interval,
		})
	}
	return out
}

// FileIngestJob converts the single configured file-ingest block into
// syncmodel form. ok is false when the block is disabled. The block's dest
// falls back to the top-level destination when unset.
func (c *Config) FileIngestJob() (job syncmodel.FileIngestJob, ok bool) {
	fi := c.FileIngest
	if !fi.Enabled {
		return syncmodel.FileIngestJob{}, false
	}
	return syncmodel.FileIngestJob{
		Name:                 "file-ingest",
		FilesDirectory:       fi.FilesDirectory,
		FilenamePattern:      "TC-2.xlsx",
		Dest:                 fi.Dest.orDefault(c.Destination).toModel(),
		DestTable:            fi.TargetTable,
		LookbackDays:         fi.DaysToSearch,
		SkipFooterRows:       fi.SkipFooterRows,
		FileCheckInterval:    fi.FileCheckInterval,
		MonitorInterval:      fi.MonitorInterval,
		NetworkCheckInterval: fi.NetworkCheckInterval,
		ObjectID:             fi.ObjectID,
		IDValue:              fi.IDValue,
		ObjIDValue:           fi.ObjIDValue,
		NetworkUser:          fi.Service.User,
		NetworkPassword:      fi.Service.Password,
		ScanSchedule:         fi.ScanSchedule,
	}, true
}

// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Monitor    MonitorConfig  `yaml:"monitor"`
	Thresholds Thresholds     `yaml:"thresholds"`
	Mail       MailConfig     `yaml:"mail"`
	Update     UpdateConfig   `yaml:"update"`
	Logs       LogsConfig     `yaml:"logs"`
	Report     ReportConfig   `yaml:"report"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Identity   IdentityConfig `yaml:"identity"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// MonitorConfig defines the watched log directory and where run state lives.
type MonitorConfig struct {
	Directory string `yaml:"directory"`
	StatePath string `yaml:"state_path"`
}

// Thresholds drive every alerting decision. A run reads them once and never
// mutates them.
type Thresholds struct {
	// MinRelativeChangePct is the growth percentage that must be exceeded
	// for a relative alert.
	MinRelativeChangePct float64 `yaml:"min_relative_change_pct"`

	// MinAbsoluteDiffBytes alerts on its own once growth reaches it.
	MinAbsoluteDiffBytes int64 `yaml:"min_absolute_diff_bytes"`

	// BigDirBytes gates the relative rule: the previous size must be at
	// least this large.
	BigDirBytes int64 `yaml:"big_dir_bytes"`

	// PartitionUsagePct is the utilization a partition must exceed to alert.
	PartitionUsagePct float64 `yaml:"partition_usage_pct"`
}

// MailConfig holds the delivery channel settings.
type MailConfig struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TLS is one of: mandatory, opportunistic, none.
	TLS     string        `yaml:"tls"`
	Timeout time.Duration `yaml:"timeout"`
}

// UpdateConfig controls the self-updater.
type UpdateConfig struct {
	// Enabled defaults to true when omitted.
	Enabled          *bool         `yaml:"enabled"`
	URL              string        `yaml:"url"`
	Timeout          time.Duration `yaml:"timeout"`
	BackupDir        string        `yaml:"backup_dir"`
	KeepBackups      int           `yaml:"keep_backups"`
	MaxArtifactBytes int64         `yaml:"max_artifact_bytes"`
}

// IsEnabled reports whether self-update should run.
func (u UpdateConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// LogsConfig describes the log files inside the monitored directory.
// Relative paths are resolved against Monitor.Directory.
type LogsConfig struct {
	StderrLog      string        `yaml:"stderr_log"`
	ErrorLog       string        `yaml:"error_log"`
	Retention      time.Duration `yaml:"retention"`
	ExcerptLines   int           `yaml:"excerpt_lines"`
	RotatedPattern string        `yaml:"rotated_pattern"`
	DropTags       []string      `yaml:"drop_tags"`
}

// ReportConfig shapes the daily report.
type ReportConfig struct {
	MaxLines int `yaml:"max_lines"`
}

// MetricsConfig enables the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// IdentityConfig tunes host identity resolution.
type IdentityConfig struct {
	ResolvConf string        `yaml:"resolv_conf"`
	DNSTimeout time.Duration `yaml:"dns_timeout"`
	// DisableDNS skips the FQDN lookup and uses the plain hostname.
	DisableDNS bool `yaml:"disable_dns"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

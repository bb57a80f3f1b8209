// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates LogWarden configuration.
//
// Values are layered: built-in defaults, then the config bundle embedded in
// the executable, then the YAML file, then environment overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loganrossus/logwarden/pkg/bundle"
)

// Default configuration values.
const (
	DefaultStatePath = "/var/lib/logwarden/state.db"

	// Threshold defaults
	DefaultMinRelativeChangePct = 25.0
	DefaultMinAbsoluteDiffBytes = 100 << 20 // 100 MiB
	DefaultBigDirBytes          = 1 << 30   // 1 GiB
	DefaultPartitionUsagePct    = 90.0

	// Mail defaults
	DefaultSMTPPort    = 587
	DefaultMailTLS     = "opportunistic"
	DefaultMailTimeout = 30 * time.Second

	// Update defaults
	DefaultUpdateTimeout    = 2 * time.Minute
	DefaultKeepBackups      = 2
	DefaultMaxArtifactBytes = 256 << 20

	// Log store defaults
	DefaultStderrLog      = "stderr.log"
	DefaultErrorLog       = "error.log"
	DefaultLogRetention   = 30 * 24 * time.Hour
	DefaultExcerptLines   = 75
	DefaultRotatedPattern = `\.log[-.](\d{8}|\d+)$`

	// Report defaults
	DefaultReportMaxLines = 25

	// Identity defaults
	DefaultResolvConf = "/etc/resolv.conf"
	DefaultDNSTimeout = 2 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultDropTags are the severity levels filtered out of log excerpts. A
// level matches both "[notice]" and module-qualified "[core:notice]" tags.
var DefaultDropTags = []string{"info", "notice"}

// Config bundle keys. These are the operator settings that survive a
// self-update.
const (
	KeyDirectory    = "monitor_directory"
	KeyMailFrom     = "mail_from"
	KeyMailTo       = "mail_to"
	KeySMTPHost     = "smtp_host"
	KeySMTPPort     = "smtp_port"
	KeySMTPUsername = "smtp_username"
	KeySMTPPassword = "smtp_password"
)

//go:embed bundle.conf
var embeddedBundle []byte

// Load reads configuration from path. A missing file is not an error: the
// embedded bundle and defaults may be all an installation needs.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	fields, err := bundle.ParseConfig(embeddedBundle)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded config bundle: %w", err)
	}
	cfg.ApplyBundle(fields)

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyDefaults(cfg)
	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// Parse parses configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// ApplyEnvOverrides lets secrets and per-host values come from the
// environment instead of the config file.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOGWARDEN_DIRECTORY"); v != "" {
		cfg.Monitor.Directory = v
	}
	if v := os.Getenv("LOGWARDEN_MAIL_TO"); v != "" {
		cfg.Mail.To = v
	}
	if v := os.Getenv("LOGWARDEN_SMTP_USERNAME"); v != "" {
		cfg.Mail.Username = v
	}
	if v := os.Getenv("LOGWARDEN_SMTP_PASSWORD"); v != "" {
		cfg.Mail.Password = v
	}
	if v := os.Getenv("LOGWARDEN_UPDATE_URL"); v != "" {
		cfg.Update.URL = v
	}
}

// Bundle returns the running instance's operator settings in bundle form.
// The self-updater writes exactly these into a fetched candidate.
func (c *Config) Bundle() []bundle.Field {
	port := ""
	if c.Mail.SMTPPort != 0 {
		port = strconv.Itoa(c.Mail.SMTPPort)
	}
	return []bundle.Field{
		{Key: KeyDirectory, Value: c.Monitor.Directory},
		{Key: KeyMailFrom, Value: c.Mail.From},
		{Key: KeyMailTo, Value: c.Mail.To},
		{Key: KeySMTPHost, Value: c.Mail.SMTPHost},
		{Key: KeySMTPPort, Value: port},
		{Key: KeySMTPUsername, Value: c.Mail.Username},
		{Key: KeySMTPPassword, Value: c.Mail.Password},
	}
}

// ApplyBundle copies non-empty bundle fields into the config. Unknown keys
// and unparseable ports are ignored.
func (c *Config) ApplyBundle(fields []bundle.Field) {
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		switch f.Key {
		case KeyDirectory:
			c.Monitor.Directory = f.Value
		case KeyMailFrom:
			c.Mail.From = f.Value
		case KeyMailTo:
			c.Mail.To = f.Value
		case KeySMTPHost:
			c.Mail.SMTPHost = f.Value
		case KeySMTPPort:
			if port, err := strconv.Atoi(f.Value); err == nil {
				c.Mail.SMTPPort = port
			}
		case KeySMTPUsername:
			c.Mail.Username = f.Value
		case KeySMTPPassword:
			c.Mail.Password = f.Value
		}
	}
}

// ResolveLogPath returns p joined to the monitored directory unless p is
// already absolute.
func (c *Config) ResolveLogPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Monitor.Directory, p)
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.StatePath == "" {
		cfg.Monitor.StatePath = DefaultStatePath
	}

	applyThresholdDefaults(&cfg.Thresholds)

	if cfg.Mail.SMTPPort == 0 {
		cfg.Mail.SMTPPort = DefaultSMTPPort
	}
	if cfg.Mail.TLS == "" {
		cfg.Mail.TLS = DefaultMailTLS
	}
	if cfg.Mail.Timeout == 0 {
		cfg.Mail.Timeout = DefaultMailTimeout
	}

	if cfg.Update.Timeout == 0 {
		cfg.Update.Timeout = DefaultUpdateTimeout
	}
	if cfg.Update.KeepBackups == 0 {
		cfg.Update.KeepBackups = DefaultKeepBackups
	}
	if cfg.Update.MaxArtifactBytes == 0 {
		cfg.Update.MaxArtifactBytes = DefaultMaxArtifactBytes
	}

	applyLogsDefaults(&cfg.Logs)

	if cfg.Report.MaxLines == 0 {
		cfg.Report.MaxLines = DefaultReportMaxLines
	}

	if cfg.Identity.ResolvConf == "" {
		cfg.Identity.ResolvConf = DefaultResolvConf
	}
	if cfg.Identity.DNSTimeout == 0 {
		cfg.Identity.DNSTimeout = DefaultDNSTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

func applyThresholdDefaults(t *Thresholds) {
	if t.MinRelativeChangePct == 0 {
		t.MinRelativeChangePct = DefaultMinRelativeChangePct
	}
	if t.MinAbsoluteDiffBytes == 0 {
		t.MinAbsoluteDiffBytes = DefaultMinAbsoluteDiffBytes
	}
	if t.BigDirBytes == 0 {
		t.BigDirBytes = DefaultBigDirBytes
	}
	if t.PartitionUsagePct == 0 {
		t.PartitionUsagePct = DefaultPartitionUsagePct
	}
}

func applyLogsDefaults(l *LogsConfig) {
	if l.StderrLog == "" {
		l.StderrLog = DefaultStderrLog
	}
	if l.ErrorLog == "" {
		l.ErrorLog = DefaultErrorLog
	}
	if l.Retention == 0 {
		l.Retention = DefaultLogRetention
	}
	if l.ExcerptLines == 0 {
		l.ExcerptLines = DefaultExcerptLines
	}
	if l.RotatedPattern == "" {
		l.RotatedPattern = DefaultRotatedPattern
	}
	if l.DropTags == nil {
		l.DropTags = append([]string(nil), DefaultDropTags...)
	}
}

// DefaultThresholds returns the stock alerting thresholds.
func DefaultThresholds() Thresholds {
	var t Thresholds
	applyThresholdDefaults(&t)
	return t
}

// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError contains details about a configuration validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Validate checks the configuration for errors and returns a combined error if any are found.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, validateMonitor(&c.Monitor)...)
	errs = append(errs, validateThresholds(&c.Thresholds)...)
	errs = append(errs, validateMail(&c.Mail)...)
	errs = append(errs, validateUpdate(&c.Update)...)
	errs = append(errs, validateLogs(&c.Logs)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if c.Report.MaxLines < 1 {
		errs = append(errs, &ValidationError{
			Field:   "report.max_lines",
			Value:   c.Report.MaxLines,
			Message: "must be at least 1",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate validates the configuration.
func Validate(cfg *Config) error {
	return cfg.Validate()
}

func validateMonitor(m *MonitorConfig) []error {
	var errs []error

	if m.Directory == "" {
		errs = append(errs, &ValidationError{
			Field:   "monitor.directory",
			Value:   m.Directory,
			Message: "cannot be empty",
		})
	} else if !filepath.IsAbs(m.Directory) {
		errs = append(errs, &ValidationError{
			Field:   "monitor.directory",
			Value:   m.Directory,
			Message: "must be an absolute path",
		})
	}

	if m.StatePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "monitor.state_path",
			Value:   m.StatePath,
			Message: "cannot be empty",
		})
	}

	return errs
}

func validateThresholds(t *Thresholds) []error {
	var errs []error

	if t.MinRelativeChangePct <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "thresholds.min_relative_change_pct",
			Value:   t.MinRelativeChangePct,
			Message: "must be positive",
		})
	}
	if t.MinAbsoluteDiffBytes <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "thresholds.min_absolute_diff_bytes",
			Value:   t.MinAbsoluteDiffBytes,
			Message: "must be positive",
		})
	}
	if t.BigDirBytes < 0 {
		errs = append(errs, &ValidationError{
			Field:   "thresholds.big_dir_bytes",
			Value:   t.BigDirBytes,
			Message: "cannot be negative",
		})
	}
	if t.PartitionUsagePct <= 0 || t.PartitionUsagePct > 100 {
		errs = append(errs, &ValidationError{
			Field:   "thresholds.partition_usage_pct",
			Value:   t.PartitionUsagePct,
			Message: "must be greater than 0 and at most 100",
		})
	}

	return errs
}

func validateMail(m *MailConfig) []error {
	var errs []error

	addrs := []struct{ field, addr string }{
		{"mail.from", m.From},
		{"mail.to", m.To},
	}
	for _, a := range addrs {
		if a.addr == "" {
			errs = append(errs, &ValidationError{Field: a.field, Value: a.addr, Message: "cannot be empty"})
		} else if _, err := mail.ParseAddress(a.addr); err != nil {
			errs = append(errs, &ValidationError{Field: a.field, Value: a.addr, Message: "invalid mail address"})
		}
	}

	if m.SMTPHost == "" {
		errs = append(errs, &ValidationError{
			Field:   "mail.smtp_host",
			Value:   m.SMTPHost,
			Message: "cannot be empty",
		})
	}
	if m.SMTPPort < 1 || m.SMTPPort > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "mail.smtp_port",
			Value:   m.SMTPPort,
			Message: "must be between 1 and 65535",
		})
	}

	validTLS := map[string]bool{"mandatory": true, "opportunistic": true, "none": true}
	if !validTLS[strings.ToLower(m.TLS)] {
		errs = append(errs, &ValidationError{
			Field:   "mail.tls",
			Value:   m.TLS,
			Message: "must be one of: mandatory, opportunistic, none",
		})
	}

	return errs
}

func validateUpdate(u *UpdateConfig) []error {
	if !u.IsEnabled() {
		return nil
	}

	var errs []error

	if u.URL == "" {
		errs = append(errs, &ValidationError{
			Field:   "update.url",
			Value:   u.URL,
			Message: "required when update is enabled",
		})
	} else if parsed, err := url.Parse(u.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, &ValidationError{
			Field:   "update.url",
			Value:   u.URL,
			Message: "must be an http or https URL",
		})
	}

	if u.KeepBackups < 1 {
		errs = append(errs, &ValidationError{
			Field:   "update.keep_backups",
			Value:   u.KeepBackups,
			Message: "must be at least 1",
		})
	}
	if u.MaxArtifactBytes <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "update.max_artifact_bytes",
			Value:   u.MaxArtifactBytes,
			Message: "must be positive",
		})
	}

	return errs
}

func validateLogs(l *LogsConfig) []error {
	var errs []error

	if l.ExcerptLines < 1 {
		errs = append(errs, &ValidationError{
			Field:   "logs.excerpt_lines",
			Value:   l.ExcerptLines,
			Message: "must be at least 1",
		})
	}
	if l.Retention <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "logs.retention",
			Value:   l.Retention,
			Message: "must be positive",
		})
	}
	if _, err := regexp.Compile(l.RotatedPattern); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logs.rotated_pattern",
			Value:   l.RotatedPattern,
			Message: fmt.Sprintf("invalid regular expression: %v", err),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(l.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Value:   l.Level,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(l.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Value:   l.Format,
			Message: "must be one of: json, text",
		})
	}

	return errs
}

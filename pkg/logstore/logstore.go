// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logstore maintains the monitored log directory: it purges expired
// compressed logs, extracts report excerpts and compresses rotated logs.
package logstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/loganrossus/logwarden/pkg/config"
)

const compressedExt = ".gz"

// maxLineBytes bounds a single excerpt line. Longer lines are cut and
// marked with truncatedSuffix.
const maxLineBytes = 1 << 20

const truncatedSuffix = " ...(truncated)"

// Store operates on one log directory.
type Store struct {
	dir          string
	retention    time.Duration
	excerptLines int
	drop         *regexp.Regexp
	rotated      *regexp.Regexp
	logger       *slog.Logger
}

// New creates a Store for dir.
func New(dir string, cfg config.LogsConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rotated, err := regexp.Compile(cfg.RotatedPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rotated log pattern: %w", err)
	}
	return &Store{
		dir:          dir,
		retention:    cfg.Retention,
		excerptLines: cfg.ExcerptLines,
		drop:         dropPattern(cfg.DropTags),
		rotated:      rotated,
		logger:       logger,
	}, nil
}

// PurgeExpired removes compressed logs last modified before now minus the
// retention period and returns the removed names. Individual removal
// failures are logged and do not stop the sweep.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := now.Add(-s.retention)
	var removed []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), compressedExt) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to purge expired log", "path", path, "error", err)
			continue
		}
		removed = append(removed, e.Name())
	}

	if len(removed) > 0 {
		s.logger.Info("purged expired logs", "count", len(removed))
	}
	return removed, nil
}

// Excerpt returns the last lines of the file at path, skipping lines that
// carry any of the configured drop tags.
func (s *Store) Excerpt(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := s.tail(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return []byte(strings.Join(lines, "\n") + "\n"), nil
}

func (s *Store) tail(r io.Reader) ([]string, error) {
	n := s.excerptLines
	if n <= 0 {
		return nil, nil
	}

	ring := make([]string, n)
	count := 0

	br := bufio.NewReader(r)
	var line []byte
	truncated := false
	for {
		frag, more, err := br.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if room := maxLineBytes - len(line); len(frag) > room {
			frag = frag[:room]
			truncated = true
		}
		line = append(line, frag...)
		if more {
			continue
		}

		text := string(line)
		if truncated {
			text += truncatedSuffix
		}
		line, truncated = line[:0], false

		if s.dropped(text) {
			continue
		}
		ring[count%n] = text
		count++
	}

	if count <= n {
		return ring[:count], nil
	}
	start := count % n
	return append(ring[start:], ring[:start]...), nil
}

func (s *Store) dropped(line string) bool {
	return s.drop != nil && s.drop.MatchString(line)
}

// dropPattern matches a bracketed severity tag naming one of levels, with
// or without an Apache 2.4 module prefix: "[notice]", "[core:notice]",
// "[ssl:info]". Levels may be given bare or bracketed.
func dropPattern(levels []string) *regexp.Regexp {
	var alts []string
	for _, l := range levels {
		l = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(l, "["), "]"))
		if l == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(l))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`\[(?:[\w.-]+:)?(?:` + strings.Join(alts, "|") + `)\]`)
}

// CompressRotatable gzips every rotated log in the directory and removes
// the original once the compressed copy is synced. It returns the names of
// the logs compressed.
func (s *Store) CompressRotatable(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var compressed []string
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return compressed, err
		}
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasSuffix(name, compressedExt) || !s.rotated.MatchString(name) {
			continue
		}

		if err := compressFile(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to compress rotated log", "name", name, "error", err)
			errs = append(errs, err)
			continue
		}
		compressed = append(compressed, name)
	}

	if len(compressed) > 0 {
		s.logger.Info("compressed rotated logs", "count", len(compressed))
	}
	return compressed, errors.Join(errs...)
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dstPath := path + compressedExt
	tmp, err := os.CreateTemp(filepath.Dir(path), ".logwarden-gz-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := gzip.NewWriter(tmp)
	zw.Name = filepath.Base(path)
	zw.ModTime = info.ModTime()

	if _, err := io.Copy(zw, src); err != nil {
		tmp.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return err
	}
	if err := os.Chtimes(dstPath, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Remove(path)
}

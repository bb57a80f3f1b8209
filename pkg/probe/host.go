// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package probe

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
)

// pseudoFilesystems are never reported in partition sweeps.
var pseudoFilesystems = map[string]bool{
	"tmpfs":      true,
	"devtmpfs":   true,
	"devfs":      true,
	"proc":       true,
	"sysfs":      true,
	"cgroup":     true,
	"cgroup2":    true,
	"nsfs":       true,
	"overlay":    true,
	"squashfs":   true,
	"iso9660":    true,
	"autofs":     true,
	"debugfs":    true,
	"tracefs":    true,
	"securityfs": true,
	"pstore":     true,
	"bpf":        true,
	"mqueue":     true,
	"hugetlbfs":  true,
	"fusectl":    true,
	"configfs":   true,
}

// Host is the SystemProbe for the local machine.
type Host struct {
	logger *slog.Logger
}

// NewHost creates a Host probe.
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{logger: logger}
}

// DirSize returns the total size in bytes of the regular files under dir.
// Files that disappear during the walk (rotation) are skipped.
func (h *Host) DirSize(ctx context.Context, dir string) (int64, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, &Error{Op: "dir size", Err: err}
	}

	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if path == dir {
				return err
			}
			h.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, &Error{Op: "dir size", Err: err}
	}
	return total, nil
}

// Partitions samples the usage of every real mounted filesystem, in mount
// table order.
func (h *Host) Partitions(ctx context.Context) ([]PartitionSample, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, &Error{Op: "partitions", Err: err}
	}

	samples := make([]PartitionSample, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range filterPartitions(parts) {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true

		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			h.logger.Warn("failed to read partition usage",
				"mountpoint", p.Mountpoint,
				"error", err,
			)
			continue
		}
		if usage.Total == 0 {
			continue
		}
		samples = append(samples, PartitionSample{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Fstype:     p.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			UsedPct:    usage.UsedPercent,
		})
	}
	return samples, nil
}

// Uptime returns the time since boot.
func (h *Host) Uptime(ctx context.Context) (time.Duration, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, &Error{Op: "uptime", Err: err}
	}
	return time.Duration(secs) * time.Second, nil
}

// Listing returns the direct children of dir, newest first.
func (h *Host) Listing(ctx context.Context, dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Op: "listing", Err: err}
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   d.IsDir(),
		})
	}
	SortNewestFirst(entries)
	return entries, nil
}

// SortNewestFirst orders entries by modification time, newest first, then
// by name.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name < entries[j].Name
	})
}

func filterPartitions(parts []disk.PartitionStat) []disk.PartitionStat {
	out := parts[:0:0]
	for _, p := range parts {
		if pseudoFilesystems[p.Fstype] {
			continue
		}
		out = append(out, p)
	}
	return out
}

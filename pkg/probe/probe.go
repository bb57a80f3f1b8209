// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package probe samples the host: the monitored directory's size and
// listing, mounted partition usage and uptime.
package probe

import (
	"context"
	"fmt"
	"time"
)

// PartitionSample is the usage of one mounted filesystem.
type PartitionSample struct {
	Device     string
	Mountpoint string
	Fstype     string
	Total      uint64
	Used       uint64
	UsedPct    float64
}

// Entry is one item in a directory listing.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// SystemProbe samples the host. Every method may fail; callers treat a
// failed sample as absent.
type SystemProbe interface {
	DirSize(ctx context.Context, dir string) (int64, error)
	Partitions(ctx context.Context) ([]PartitionSample, error)
	Uptime(ctx context.Context) (time.Duration, error)
	Listing(ctx context.Context, dir string) ([]Entry, error)
}

// Error reports a failed probe operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

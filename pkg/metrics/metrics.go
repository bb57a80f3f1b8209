// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics records per-run Prometheus gauges and exports them in the
// node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all LogWarden metrics.
const namespace = "logwarden"

// Registry holds every LogWarden metric. It is separate from the default
// registry so the textfile only carries LogWarden series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Directory metrics
var (
	// DirectorySizeBytes is the sampled size of the monitored directory.
	DirectorySizeBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_size_bytes",
			Help:      "Sampled size of the monitored log directory in bytes",
		},
	)

	// DirectoryGrowthBytes is the change since the previous run.
	DirectoryGrowthBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_growth_bytes",
			Help:      "Change in directory size since the previous run in bytes",
		},
	)

	// DirectoryGrowthPercent is the relative change since the previous run.
	// It is not set when there was no baseline.
	DirectoryGrowthPercent = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_growth_percent",
			Help:      "Relative change in directory size since the previous run",
		},
	)
)

// Host metrics
var (
	// PartitionUsedPercent is the utilization of each sampled partition.
	PartitionUsedPercent = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_used_percent",
			Help:      "Partition utilization in percent",
		},
		[]string{"mountpoint"},
	)
)

// Run metrics
var (
	// AlertsSent counts alerts dispatched during this run by kind.
	AlertsSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Alerts dispatched during the run by kind",
		},
		[]string{"kind"},
	)

	// DispatchFailures counts notifications that could not be delivered.
	DispatchFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Notifications that could not be delivered by kind",
		},
		[]string{"kind"},
	)

	// UpdateState is 1 for the state the self-updater finished in.
	UpdateState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_state",
			Help:      "Final self-update state of the run (1 for the state reached)",
		},
		[]string{"state"},
	)

	// LastRunTimestamp is the completion time of the last run per mode.
	LastRunTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last completed run by mode",
		},
		[]string{"mode"},
	)

	// AppInfo exposes the running version.
	AppInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_info",
			Help:      "Application information",
		},
		[]string{"version"},
	)
)

// SetDirectory records a size sample and the change against the previous
// one.
func SetDirectory(size, diff int64, percent float64, percentKnown bool) {
	DirectorySizeBytes.Set(float64(size))
	DirectoryGrowthBytes.Set(float64(diff))
	if percentKnown {
		DirectoryGrowthPercent.Set(percent)
	}
}

// SetPartition records a partition's utilization.
func SetPartition(mountpoint string, usedPct float64) {
	PartitionUsedPercent.WithLabelValues(mountpoint).Set(usedPct)
}

// RecordAlert records a dispatch attempt for an alert kind.
func RecordAlert(kind string, delivered bool) {
	if delivered {
		AlertsSent.WithLabelValues(kind).Inc()
	} else {
		DispatchFailures.WithLabelValues(kind).Inc()
	}
}

// SetUpdateState marks state as the updater's final state.
func SetUpdateState(state string) {
	UpdateState.Reset()
	UpdateState.WithLabelValues(state).Set(1)
}

// MarkRun records the completion of a run.
func MarkRun(mode string) {
	LastRunTimestamp.WithLabelValues(mode).SetToCurrentTime()
}

// SetAppInfo sets the application info metric.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version).Set(1)
}

// WriteTextfile writes every metric in Registry to path, creating the parent
// directory. The write is atomic.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

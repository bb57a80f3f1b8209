// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package evaluate decides whether sampled sizes and partition usage
// warrant an alert. Everything here is pure.
package evaluate

import (
	"strconv"

	"github.com/loganrossus/logwarden/pkg/config"
	"github.com/loganrossus/logwarden/pkg/probe"
)

// Growth is the outcome of comparing two directory size samples.
type Growth struct {
	Previous int64
	Current  int64
	// DiffBytes is Current-Previous and is negative on shrinkage.
	DiffBytes int64
	// Percent is meaningful only when PercentKnown is true, which requires
	// a non-zero previous sample.
	Percent      float64
	PercentKnown bool
	Alert        bool
}

// FormatPercent renders the percent change with two decimals, or "n/a"
// when there was no baseline.
func (g Growth) FormatPercent() string {
	if !g.PercentKnown {
		return "n/a"
	}
	return strconv.FormatFloat(g.Percent, 'f', 2, 64) + "%"
}

// EvaluateGrowth applies the growth rule. An alert fires when the relative
// change exceeds the threshold on a directory already at least BigDirBytes,
// or when the absolute growth reaches MinAbsoluteDiffBytes. Shrinkage never
// alerts.
func EvaluateGrowth(previous, current int64, th config.Thresholds) Growth {
	g := Growth{
		Previous:  previous,
		Current:   current,
		DiffBytes: current - previous,
	}
	if previous > 0 {
		g.Percent = float64(g.DiffBytes) / float64(previous) * 100
		g.PercentKnown = true
	}
	if g.DiffBytes <= 0 {
		return g
	}

	relative := g.PercentKnown &&
		g.Percent > th.MinRelativeChangePct &&
		previous >= th.BigDirBytes
	absolute := g.DiffBytes >= th.MinAbsoluteDiffBytes

	g.Alert = relative || absolute
	return g
}

// EvaluatePartitions returns the samples whose usage is strictly above
// PartitionUsagePct, in input order. An empty result means no alert.
func EvaluatePartitions(samples []probe.PartitionSample, th config.Thresholds) []probe.PartitionSample {
	var over []probe.PartitionSample
	for _, s := range samples {
		if s.UsedPct > th.PartitionUsagePct {
			over = append(over, s)
		}
	}
	return over
}

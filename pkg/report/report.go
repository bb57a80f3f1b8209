// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package report renders alerts and the daily report as notify messages.
package report

import (
	"fmt"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/loganrossus/logwarden/pkg/config"
	"github.com/loganrossus/logwarden/pkg/evaluate"
	"github.com/loganrossus/logwarden/pkg/notify"
	"github.com/loganrossus/logwarden/pkg/probe"
)

// Attachment names in the daily report.
const (
	StderrAttachment   = "stderr-excerpt.txt"
	ErrorLogAttachment = "error-log-excerpt.txt"
)

// Daily is everything the daily report shows.
type Daily struct {
	Host           string
	Directory      string
	RunningVersion string
	GeneratedAt    time.Time

	// Growth is only meaningful when SizeErr is nil.
	Growth  evaluate.Growth
	SizeErr error

	Listing    []probe.Entry
	ListingErr error

	Partitions    []probe.PartitionSample
	PartitionsErr error

	Uptime    time.Duration
	UptimeErr error

	Notices []string

	StderrExcerpt   []byte
	StderrErr       error
	ErrorLogExcerpt []byte
	ErrorLogErr     error

	// MaxLines caps the listing and disk usage sections.
	MaxLines int
}

// DailyReport renders d.
func DailyReport(d Daily) notify.Message {
	var b strings.Builder

	fmt.Fprintf(&b, "LogWarden %s daily report for %s\n", d.RunningVersion, d.Host)
	fmt.Fprintf(&b, "Generated %s\n", d.GeneratedAt.Format(time.RFC1123Z))

	if len(d.Notices) > 0 {
		b.WriteString("\n== Notices ==\n")
		for _, n := range d.Notices {
			b.WriteString(n)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n== Directory %s ==\n", d.Directory)
	if d.SizeErr != nil {
		fmt.Fprintf(&b, "Size unavailable: %v\n", d.SizeErr)
	} else {
		writeSizeSummary(&b, d.Growth)
	}

	b.WriteString("\n== Listing ==\n")
	if d.ListingErr != nil {
		fmt.Fprintf(&b, "Listing unavailable: %v\n", d.ListingErr)
	} else {
		writeCapped(&b, listingLines(d.Listing), d.MaxLines)
	}

	b.WriteString("\n== Disk usage ==\n")
	if d.PartitionsErr != nil {
		fmt.Fprintf(&b, "Disk usage unavailable: %v\n", d.PartitionsErr)
	} else {
		writeCapped(&b, partitionLines(d.Partitions), d.MaxLines)
	}

	b.WriteString("\n== Uptime ==\n")
	if d.UptimeErr != nil {
		fmt.Fprintf(&b, "Uptime unavailable: %v\n", d.UptimeErr)
	} else {
		fmt.Fprintf(&b, "up %s\n", FormatUptime(d.Uptime))
	}

	return notify.Message{
		Kind:    notify.KindReport,
		Subject: notify.Subject(notify.KindReport, d.Host),
		Body:    b.String(),
		Attachments: []notify.Attachment{
			{Name: StderrAttachment, Content: attachmentContent(d.StderrExcerpt, d.StderrErr)},
			{Name: ErrorLogAttachment, Content: attachmentContent(d.ErrorLogExcerpt, d.ErrorLogErr)},
		},
	}
}

// GrowthAlert renders a size growth alert.
func GrowthAlert(host, dir string, g evaluate.Growth, th config.Thresholds) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "The log directory %s on %s grew beyond its thresholds.\n\n", dir, host)
	writeSizeSummary(&b, g)
	fmt.Fprintf(&b, "\nThresholds: relative > %s%% (when previous >= %s), absolute >= %s\n",
		trimFloat(th.MinRelativeChangePct),
		units.BytesSize(float64(th.BigDirBytes)),
		units.BytesSize(float64(th.MinAbsoluteDiffBytes)),
	)
	return notify.Message{
		Kind:    notify.KindGrowth,
		Subject: notify.Subject(notify.KindGrowth, host),
		Body:    b.String(),
	}
}

// PartitionAlert renders an alert for the partitions above the usage
// threshold.
func PartitionAlert(host string, over []probe.PartitionSample, th config.Thresholds) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Partitions on %s above %s%% usage:\n\n", host, trimFloat(th.PartitionUsagePct))
	for _, line := range partitionLines(over) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return notify.Message{
		Kind:    notify.KindPartition,
		Subject: notify.Subject(notify.KindPartition, host),
		Body:    b.String(),
	}
}

// FatalAlert renders the alert sent when the host cannot be identified.
func FatalAlert(err error) notify.Message {
	return notify.Message{
		Kind:    notify.KindFatal,
		Subject: notify.Subject(notify.KindFatal, ""),
		Body:    fmt.Sprintf("LogWarden could not determine the hostname and stopped.\n\n%v\n", err),
	}
}

// FormatSize renders bytes in binary units.
func FormatSize(n int64) string {
	return units.BytesSize(float64(n))
}

// FormatDiff renders a signed byte difference.
func FormatDiff(n int64) string {
	if n < 0 {
		return "-" + FormatSize(-n)
	}
	return "+" + FormatSize(n)
}

// FormatUptime renders d as days, hours and minutes.
func FormatUptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	minutes := int((d - time.Duration(hours)*time.Hour) / time.Minute)

	switch {
	case days == 1:
		return fmt.Sprintf("1 day, %d:%02d", hours, minutes)
	case days > 1:
		return fmt.Sprintf("%d days, %d:%02d", days, hours, minutes)
	default:
		return fmt.Sprintf("%d:%02d", hours, minutes)
	}
}

func writeSizeSummary(b *strings.Builder, g evaluate.Growth) {
	fmt.Fprintf(b, "Previous size: %s\n", previousSize(g))
	fmt.Fprintf(b, "Current size:  %s\n", FormatSize(g.Current))
	fmt.Fprintf(b, "Change:        %s (%s)\n", FormatDiff(g.DiffBytes), g.FormatPercent())
}

func previousSize(g evaluate.Growth) string {
	if g.Previous == 0 {
		return "none recorded"
	}
	return FormatSize(g.Previous)
}

func writeCapped(b *strings.Builder, lines []string, max int) {
	if len(lines) == 0 {
		b.WriteString("(empty)\n")
		return
	}
	shown := lines
	if max > 0 && len(lines) > max {
		shown = lines[:max]
	}
	for _, line := range shown {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if hidden := len(lines) - len(shown); hidden > 0 {
		fmt.Fprintf(b, "... (%d more entries not shown)\n", hidden)
	}
}

func listingLines(entries []probe.Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		lines = append(lines, fmt.Sprintf("%s  %10s  %s",
			e.ModTime.Format("2006-01-02 15:04"), FormatSize(e.Size), name))
	}
	return lines
}

func partitionLines(samples []probe.PartitionSample) []string {
	lines := make([]string, 0, len(samples))
	for _, p := range samples {
		lines = append(lines, fmt.Sprintf("%-20s %-8s %-20s %s of %s (%.2f%%)",
			p.Device, p.Fstype, p.Mountpoint,
			units.BytesSize(float64(p.Used)), units.BytesSize(float64(p.Total)), p.UsedPct))
	}
	return lines
}

func attachmentContent(excerpt []byte, err error) []byte {
	switch {
	case err != nil:
		return []byte(fmt.Sprintf("(unavailable: %v)\n", err))
	case len(excerpt) == 0:
		return []byte("(no matching lines)\n")
	default:
		return excerpt
	}
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

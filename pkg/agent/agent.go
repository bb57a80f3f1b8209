// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent runs one LogWarden invocation: the pre-check every mode
// shares, then the check or daily workflow.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/loganrossus/logwarden/pkg/config"
	"github.com/loganrossus/logwarden/pkg/evaluate"
	"github.com/loganrossus/logwarden/pkg/history"
	"github.com/loganrossus/logwarden/pkg/identity"
	"github.com/loganrossus/logwarden/pkg/metrics"
	"github.com/loganrossus/logwarden/pkg/notify"
	"github.com/loganrossus/logwarden/pkg/probe"
	"github.com/loganrossus/logwarden/pkg/report"
	"github.com/loganrossus/logwarden/pkg/updater"
)

// Modes with a workflow. Any other mode runs the pre-check only.
const (
	ModeCheck = "check"
	ModeDaily = "daily"

	// ModePrecheck names a run started without a mode.
	ModePrecheck = "precheck"
)

// IdentityResolver names the host.
type IdentityResolver interface {
	Resolve(ctx context.Context) (identity.Identity, error)
}

// SelfUpdater runs one self-update attempt.
type SelfUpdater interface {
	Run(ctx context.Context) updater.Result
}

// LogMaintainer maintains the monitored log directory.
type LogMaintainer interface {
	PurgeExpired(ctx context.Context, now time.Time) ([]string, error)
	Excerpt(path string) ([]byte, error)
	CompressRotatable(ctx context.Context) ([]string, error)
}

// AgentConfig holds the collaborators of an Agent.
type AgentConfig struct {
	Config   *config.Config
	Probe    probe.SystemProbe
	Identity IdentityResolver
	Notifier notify.Notifier
	History  *history.History
	Logs     LogMaintainer

	// Updater is optional; without it daily runs skip self-update.
	Updater SelfUpdater

	// ReopenHistory is called when the updater closed the state store for
	// an exec that then failed.
	ReopenHistory func() *history.History

	Version string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Agent orchestrates a single run.
type Agent struct {
	cfg      *config.Config
	probe    probe.SystemProbe
	identity IdentityResolver
	notifier notify.Notifier
	history  *history.History
	logs     LogMaintainer
	updater  SelfUpdater
	reopen   func() *history.History
	version  string
	now      func() time.Time
	logger   *slog.Logger

	host       string
	partitions []probe.PartitionSample
	partErr    error
}

// NewAgent creates an Agent.
func NewAgent(cfg AgentConfig) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Agent{
		cfg:      cfg.Config,
		probe:    cfg.Probe,
		identity: cfg.Identity,
		notifier: cfg.Notifier,
		history:  cfg.History,
		logs:     cfg.Logs,
		updater:  cfg.Updater,
		reopen:   cfg.ReopenHistory,
		version:  cfg.Version,
		now:      now,
		logger:   logger,
	}
}

// Run executes mode. It returns an *identity.FatalError when the host
// cannot be identified; other failures are logged and the run carries on.
func (a *Agent) Run(ctx context.Context, mode string) error {
	start := a.now()
	metrics.SetAppInfo(a.version)

	if err := a.precheck(ctx); err != nil {
		return err
	}

	var err error
	switch mode {
	case ModeCheck:
		err = a.runCheck(ctx)
	case ModeDaily:
		err = a.runDaily(ctx)
	default:
		a.logger.Info("no workflow for mode, pre-check only")
	}

	metrics.MarkRun(mode)
	a.writeMetrics()
	a.logger.Info("run finished", "duration", a.now().Sub(start).String())
	return err
}

// precheck resolves the host identity and sweeps partitions.
func (a *Agent) precheck(ctx context.Context) error {
	id, err := a.identity.Resolve(ctx)
	if err != nil {
		a.logger.Error("cannot identify host, aborting", "error", err)
		a.dispatch(ctx, report.FatalAlert(err))
		return err
	}
	a.host = id.Name()
	a.logger = a.logger.With("host", a.host)

	a.partitions, a.partErr = a.probe.Partitions(ctx)
	if a.partErr != nil {
		a.logger.Warn("partition sweep failed", "error", a.partErr)
		return nil
	}
	for _, p := range a.partitions {
		metrics.SetPartition(p.Mountpoint, p.UsedPct)
	}

	over := evaluate.EvaluatePartitions(a.partitions, a.cfg.Thresholds)
	if len(over) > 0 {
		a.logger.Warn("partitions above usage threshold", "count", len(over))
		a.dispatch(ctx, report.PartitionAlert(a.host, over, a.cfg.Thresholds))
	}
	return nil
}

func (a *Agent) runCheck(ctx context.Context) error {
	dir := a.cfg.Monitor.Directory
	previous := a.history.Load(ctx)

	current, err := a.probe.DirSize(ctx, dir)
	if err != nil {
		a.logger.Warn("size probe failed, keeping previous baseline", "directory", dir, "error", err)
		return nil
	}

	g := evaluate.EvaluateGrowth(previous, current, a.cfg.Thresholds)
	metrics.SetDirectory(current, g.DiffBytes, g.Percent, g.PercentKnown)
	a.logger.Info("directory sampled",
		"directory", dir,
		"previous_bytes", previous,
		"current_bytes", current,
		"diff_bytes", g.DiffBytes,
		"percent", g.FormatPercent(),
		"alert", g.Alert,
	)
	if g.Alert {
		a.dispatch(ctx, report.GrowthAlert(a.host, dir, g, a.cfg.Thresholds))
	}

	return a.history.Save(ctx, current)
}

func (a *Agent) runDaily(ctx context.Context) error {
	var notices []string
	if n := a.history.ConsumeNotice(ctx); n != "" {
		notices = append(notices, n)
	}

	if a.updater != nil {
		res := a.updater.Run(ctx)
		metrics.SetUpdateState(string(res.State))
		if res.State == updater.StateRelaunched {
			if res.Err == nil {
				// The new image has taken over.
				return nil
			}
			a.logger.Error("new version installed but exec failed, continuing on old image", "error", res.Err)
			if a.reopen != nil {
				a.history = a.reopen()
			}
		}
		if n := a.history.ConsumeNotice(ctx); n != "" {
			notices = append(notices, n)
		}
	}

	st := a.history.LoadUpdateState(ctx, a.version)
	if st.LastVersion != "" && st.LastVersion != st.RunningVersion {
		a.logger.Info("running version changed since last daily run",
			"previous", st.LastVersion,
			"current", st.RunningVersion,
		)
	}
	if err := a.history.RecordVersion(ctx, a.version); err != nil {
		a.logger.Warn("failed to record running version", "error", err)
	}

	dir := a.cfg.Monitor.Directory
	previous := a.history.Load(ctx)
	current, sizeErr := a.probe.DirSize(ctx, dir)
	d := report.Daily{
		Host:           a.host,
		Directory:      dir,
		RunningVersion: a.version,
		GeneratedAt:    a.now(),
		SizeErr:        sizeErr,
		Partitions:     a.partitions,
		PartitionsErr:  a.partErr,
		Notices:        notices,
		MaxLines:       a.cfg.Report.MaxLines,
	}
	if sizeErr != nil {
		a.logger.Warn("size probe failed, keeping previous baseline", "directory", dir, "error", sizeErr)
	} else {
		d.Growth = evaluate.EvaluateGrowth(previous, current, a.cfg.Thresholds)
		metrics.SetDirectory(current, d.Growth.DiffBytes, d.Growth.Percent, d.Growth.PercentKnown)
	}

	if _, err := a.logs.PurgeExpired(ctx, a.now()); err != nil {
		a.logger.Warn("failed to purge expired logs", "error", err)
	}
	d.StderrExcerpt, d.StderrErr = a.logs.Excerpt(a.cfg.ResolveLogPath(a.cfg.Logs.StderrLog))
	d.ErrorLogExcerpt, d.ErrorLogErr = a.logs.Excerpt(a.cfg.ResolveLogPath(a.cfg.Logs.ErrorLog))

	d.Listing, d.ListingErr = a.probe.Listing(ctx, dir)
	d.Uptime, d.UptimeErr = a.probe.Uptime(ctx)

	a.dispatch(ctx, report.DailyReport(d))

	if _, err := a.logs.CompressRotatable(ctx); err != nil {
		a.logger.Warn("failed to compress rotated logs", "error", err)
	}

	if sizeErr != nil {
		return nil
	}
	return a.history.Save(ctx, current)
}

// dispatch sends msg once. Failures are logged and never retried.
func (a *Agent) dispatch(ctx context.Context, msg notify.Message) {
	err := a.notifier.Notify(ctx, msg)
	metrics.RecordAlert(string(msg.Kind), err == nil)
	if err != nil {
		a.logger.Error("notification failed", "kind", string(msg.Kind), "error", err)
	}
}

func (a *Agent) writeMetrics() {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		a.logger.Warn("failed to export metrics", "path", path, "error", err)
	}
}

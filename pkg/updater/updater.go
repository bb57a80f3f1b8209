// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package updater replaces the running executable with the artifact
// published at the update URL.
//
// A run moves through Idle, Fetching, Validating, Merging, BackingUp,
// Swapping and Relaunched. Any failure before the swap completes returns the
// updater to Idle and queues a warning for the next daily report; the
// running version keeps working.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/mod/semver"

	"github.com/loganrossus/logwarden/pkg/bundle"
	"github.com/loganrossus/logwarden/pkg/config"
)

// State is a self-update state.
type State string

const (
	StateIdle       State = "Idle"
	StateFetching   State = "Fetching"
	StateValidating State = "Validating"
	StateMerging    State = "Merging"
	StateBackingUp  State = "BackingUp"
	StateSwapping   State = "Swapping"
	StateRelaunched State = "Relaunched"
)

// NoticeQueue receives notices for the next daily report.
type NoticeQueue interface {
	QueueNotice(ctx context.Context, text string) error
}

// Result describes how an update run ended.
type Result struct {
	State State

	RunningVersion   string
	CandidateVersion string

	// UpToDate is set when the candidate matched the running build.
	UpToDate bool
	// Downgrade is set when the candidate is older than the running build.
	Downgrade bool

	BackupPath string
	// Notice is the text queued for the next daily report, if any.
	Notice string
	// Err is the failure that returned the updater to Idle, or an exec
	// failure after the swap.
	Err error
}

// Options configures an Updater.
type Options struct {
	Config config.UpdateConfig

	// Executable is the resolved path of the running binary.
	Executable     string
	RunningVersion string

	// Bundle is merged into the candidate when the running executable
	// carries no config region of its own.
	Bundle []bundle.Field

	Notices NoticeQueue

	// BeforeExec runs after the swap and before the new image is executed.
	// The agent closes its state store here.
	BeforeExec func() error

	Fetcher Fetcher
	Execer  Execer
	Args    []string
	Env     []string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Updater runs the self-update state machine.
type Updater struct {
	opts   Options
	state  State
	logger *slog.Logger
}

// New creates an Updater, filling unset collaborators with the production
// implementations.
func New(opts Options) *Updater {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher(opts.Config.Timeout, opts.Config.MaxArtifactBytes, opts.RunningVersion)
	}
	if opts.Execer == nil {
		opts.Execer = UnixExecer{}
	}
	if opts.Args == nil {
		opts.Args = os.Args
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.KeepBackups <= 0 {
		opts.Config.KeepBackups = config.DefaultKeepBackups
	}
	if opts.Config.BackupDir == "" {
		opts.Config.BackupDir = filepath.Dir(opts.Executable)
	}
	return &Updater{
		opts:   opts,
		state:  StateIdle,
		logger: opts.Logger.With("component", "updater"),
	}
}

// State returns the current state.
func (u *Updater) State() State {
	return u.state
}

// Run performs one update attempt. When the candidate is newer (or older)
// than the running build, Run swaps it in and executes it, so on success
// it does not return. With a test Execer it returns in StateRelaunched.
func (u *Updater) Run(ctx context.Context) Result {
	res := Result{State: StateIdle, RunningVersion: u.opts.RunningVersion}
	if !u.opts.Config.IsEnabled() {
		u.logger.Debug("self-update disabled")
		return res
	}

	u.transition(StateFetching)
	candidate, err := u.opts.Fetcher.Fetch(ctx, u.opts.Config.URL)
	if err != nil {
		var ferr *FetchError
		if !errors.As(err, &ferr) {
			err = &FetchError{URL: u.opts.Config.URL, Err: err}
		}
		return u.fail(ctx, res, "update fetch failed", err)
	}

	u.transition(StateValidating)
	running, err := os.ReadFile(u.opts.Executable)
	if err != nil {
		return u.fail(ctx, res, "update aborted", fmt.Errorf("failed to read running executable: %w", err))
	}

	res.CandidateVersion, err = bundle.Version(candidate)
	if err != nil {
		return u.fail(ctx, res, "update validation failed", &ValidationError{Reason: "no version declaration", Err: err})
	}

	if res.CandidateVersion == u.opts.RunningVersion {
		return u.compareSameVersion(ctx, res, running, candidate)
	}
	res.Downgrade = isOlder(res.CandidateVersion, u.opts.RunningVersion)

	u.transition(StateMerging)
	merged, err := bundle.MergeConfig(candidate, u.runningBundle(running))
	if err != nil {
		return u.fail(ctx, res, "update validation failed", &ValidationError{Reason: "config merge", Err: err})
	}

	u.transition(StateBackingUp)
	res.BackupPath, err = u.backup(running)
	if err != nil {
		return u.fail(ctx, res, fmt.Sprintf("update to %s aborted", res.CandidateVersion), err)
	}

	u.transition(StateSwapping)
	if err := swap(u.opts.Executable, merged); err != nil {
		return u.fail(ctx, res, fmt.Sprintf("update to %s aborted", res.CandidateVersion), err)
	}

	return u.relaunch(ctx, res)
}

func (u *Updater) compareSameVersion(ctx context.Context, res Result, running, candidate []byte) Result {
	candidateDigest, err := bundle.StableDigest(candidate)
	if err != nil {
		return u.fail(ctx, res, "update validation failed", &ValidationError{Reason: "no stable region", Err: err})
	}
	runningDigest, err := bundle.StableDigest(running)
	if err != nil {
		u.logger.Warn("running executable has no stable region", "error", err)
	}

	if runningDigest == candidateDigest {
		u.transition(StateIdle)
		res.UpToDate = true
		u.logger.Info("already up to date", "version", res.RunningVersion)
		return res
	}

	res.Notice = fmt.Sprintf("WARNING: material difference despite same version %s (stable digest %s, remote %s); not updating",
		res.RunningVersion, short(runningDigest), short(candidateDigest))
	u.logger.Warn("remote artifact differs from running build with the same version",
		"version", res.RunningVersion,
		"running_digest", runningDigest,
		"remote_digest", candidateDigest,
	)
	u.queue(ctx, res.Notice)
	u.transition(StateIdle)
	return res
}

func (u *Updater) relaunch(ctx context.Context, res Result) Result {
	u.transition(StateRelaunched)
	res.State = StateRelaunched

	verb := "updated"
	if res.Downgrade {
		verb = "downgraded"
	}
	res.Notice = fmt.Sprintf("LogWarden %s from %s to %s (backup %s)",
		verb, res.RunningVersion, res.CandidateVersion, filepath.Base(res.BackupPath))
	u.queue(ctx, res.Notice)

	u.logger.Info("relaunching new version",
		"action", verb,
		"from", res.RunningVersion,
		"to", res.CandidateVersion,
		"backup", res.BackupPath,
	)

	if u.opts.BeforeExec != nil {
		if err := u.opts.BeforeExec(); err != nil {
			u.logger.Warn("pre-exec cleanup failed", "error", err)
		}
	}
	if err := u.opts.Execer.Exec(u.opts.Executable, u.opts.Args, u.opts.Env); err != nil {
		res.Err = fmt.Errorf("failed to exec %s: %w", u.opts.Executable, err)
	}
	return res
}

// runningBundle returns the config fields of the running executable,
// falling back to the configured bundle.
func (u *Updater) runningBundle(running []byte) []bundle.Field {
	fields, err := bundle.ParseConfig(running)
	if err != nil {
		u.logger.Debug("running executable has no config region, using loaded config", "error", err)
		return u.opts.Bundle
	}
	return fields
}

func (u *Updater) fail(ctx context.Context, res Result, prefix string, err error) Result {
	u.logger.Warn(prefix, "state", string(u.state), "error", err)
	res.Err = err
	res.Notice = fmt.Sprintf("WARNING: %s: %v", prefix, err)
	u.queue(ctx, res.Notice)
	u.transition(StateIdle)
	res.State = StateIdle
	return res
}

func (u *Updater) queue(ctx context.Context, text string) {
	if u.opts.Notices == nil {
		return
	}
	if err := u.opts.Notices.QueueNotice(ctx, text); err != nil {
		u.logger.Error("failed to queue update notice", "error", err)
	}
}

func (u *Updater) transition(to State) {
	u.logger.Debug("update state", "from", string(u.state), "to", string(to))
	u.state = to
}

// isOlder reports whether candidate sorts before running. Versions that
// are not semantic versions are never considered older.
func isOlder(candidate, running string) bool {
	c, r := "v"+candidate, "v"+running
	if !semver.IsValid(c) || !semver.IsValid(r) {
		return false
	}
	return semver.Compare(c, r) < 0
}

func short(digest string) string {
	if digest == "" {
		return "none"
	}
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

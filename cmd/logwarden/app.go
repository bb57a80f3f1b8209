// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/loganrossus/logwarden/pkg/agent"
	"github.com/loganrossus/logwarden/pkg/config"
	"github.com/loganrossus/logwarden/pkg/history"
	"github.com/loganrossus/logwarden/pkg/identity"
	"github.com/loganrossus/logwarden/pkg/logging"
	"github.com/loganrossus/logwarden/pkg/logstore"
	"github.com/loganrossus/logwarden/pkg/notify"
	"github.com/loganrossus/logwarden/pkg/probe"
	"github.com/loganrossus/logwarden/pkg/store"
	"github.com/loganrossus/logwarden/pkg/updater"
	"github.com/loganrossus/logwarden/pkg/version"
)

const (
	DefaultConfigPath               = "/etc/logwarden/config.yaml"
	MaxInsecureFileMode fs.FileMode = 0o004
)

// Application wires configuration, logging and state around one agent run.
type Application struct {
	configPath string
	bootstrap  *slog.Logger

	config    *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	store     store.Store
}

// NewApplication creates an Application for the config file at configPath.
func NewApplication(configPath string, bootstrap *slog.Logger) *Application {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	if bootstrap == nil {
		bootstrap = slog.Default()
	}
	return &Application{configPath: configPath, bootstrap: bootstrap}
}

// Initialize loads and validates configuration and sets up logging.
func (a *Application) Initialize() error {
	if err := a.checkConfigPermissions(); err != nil {
		a.bootstrap.Error("configuration file security check failed", "error", err)
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.bootstrap.Error("failed to load configuration", "error", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		a.bootstrap.Error("configuration invalid", "error", err)
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		a.bootstrap.Error("failed to create logger", "error", err)
		return err
	}
	slog.SetDefault(logger)

	a.config = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}

// Run executes one invocation in mode.
func (a *Application) Run(ctx context.Context, mode string) error {
	logger := logging.ForRun(a.logger, uuid.NewString(), mode, "")
	logger.Info("LogWarden starting",
		"version", version.Version,
		"config", a.configPath,
		"directory", a.config.Monitor.Directory,
	)

	a.openStore(logger)
	hist := history.New(a.store, logger)

	logs, err := logstore.New(a.config.Monitor.Directory, a.config.Logs, logger)
	if err != nil {
		return err
	}

	var upd agent.SelfUpdater
	if mode == agent.ModeDaily {
		upd = a.newUpdater(logger, hist)
	}

	ag := agent.NewAgent(agent.AgentConfig{
		Config:   a.config,
		Probe:    probe.NewHost(logger),
		Identity: identity.NewResolver(a.config.Identity, logger),
		Notifier: notify.NewSMTP(a.config.Mail, logger),
		History:  hist,
		Logs:     logs,
		Updater:  upd,
		ReopenHistory: func() *history.History {
			a.openStore(logger)
			return history.New(a.store, logger)
		},
		Version: version.Version,
		Logger:  logger,
	})
	return ag.Run(ctx, mode)
}

// Close releases the state store and the log file.
func (a *Application) Close() {
	if err := a.closeStore(); err != nil && a.logger != nil {
		a.logger.Warn("failed to close state store", "error", err)
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

func (a *Application) newUpdater(logger *slog.Logger, hist *history.History) agent.SelfUpdater {
	exe, err := executablePath()
	if err != nil {
		logger.Warn("cannot locate running executable, self-update disabled", "error", err)
		return nil
	}
	return updater.New(updater.Options{
		Config:         a.config.Update,
		Executable:     exe,
		RunningVersion: version.Version,
		Bundle:         a.config.Bundle(),
		Notices:        hist,
		BeforeExec:     a.closeStore,
		Logger:         logger,
	})
}

func (a *Application) openStore(logger *slog.Logger) {
	if a.store != nil {
		return
	}
	s, durable := store.Open(a.config.Monitor.StatePath, logger)
	if durable {
		logger.Debug("state store opened", "path", a.config.Monitor.StatePath)
	}
	a.store = s
}

func (a *Application) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// checkConfigPermissions rejects a world-readable config file; it may hold
// SMTP credentials. A missing file is allowed.
func (a *Application) checkConfigPermissions() error {
	info, err := os.Stat(a.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		a.bootstrap.Debug("no config file, using embedded settings", "path", a.configPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	mode := info.Mode().Perm()
	if mode&MaxInsecureFileMode != 0 {
		return fmt.Errorf(
			"config file %s has insecure permissions %04o (world-readable); "+
				"run 'chmod 640 %s' or 'chmod 600 %s' to fix",
			a.configPath, mode, a.configPath, a.configPath,
		)
	}

	a.bootstrap.Debug("config file permissions verified", "path", a.configPath, "mode", fmt.Sprintf("%04o", mode))
	return nil
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loganrossus/logwarden/pkg/agent"
	"github.com/loganrossus/logwarden/pkg/version"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logwarden [flags] [MODE]",
		Short: "Self-updating monitor for a web server log directory",
		Long: `logwarden samples a log directory and the host's partitions, mails alerts
when growth or usage crosses the configured thresholds, and keeps itself
current.

Modes:
  check   compare the directory size with the previous run and alert
  daily   self-update, send the daily report, purge and compress logs

Every mode, including unknown ones, first identifies the host and sweeps
partition usage. Without a mode only that pre-check runs.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bootstrap := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))

			app := NewApplication(configPath, bootstrap)
			if err := app.Initialize(); err != nil {
				return err
			}
			defer app.Close()

			mode := agent.ModePrecheck
			if len(args) == 1 && args[0] != "" {
				mode = args[0]
			}
			return app.Run(ctx, mode)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", getEnvOrDefault("LOGWARDEN_CONFIG", DefaultConfigPath), "path to configuration file")
	cmd.SetVersionTemplate(fmt.Sprintf("logwarden version %s\n", version.Version))
	return cmd
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

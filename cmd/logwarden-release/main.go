// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// logwarden-release writes the release header embedded by pkg/version:
//
//	logwarden-release --root . --out pkg/version/release.txt [--set-version 1.2.0]
//
// Without --set-version the version already declared in --out is kept.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loganrossus/logwarden/pkg/bundle"
	"github.com/loganrossus/logwarden/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "logwarden-release: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		root       string
		out        string
		setVersion string
	)

	cmd := &cobra.Command{
		Use:           "logwarden-release",
		Short:         "Regenerate the embedded release header",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := setVersion
			if v == "" {
				current, err := os.ReadFile(out)
				if err != nil {
					return fmt.Errorf("no --set-version and cannot read %s: %w", out, err)
				}
				if v, err = bundle.Version(current); err != nil {
					return fmt.Errorf("%s: %w", out, err)
				}
			}

			header, err := version.Header(v, root)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, header, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s for version %s\n", out, v)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "module root")
	cmd.Flags().StringVar(&out, "out", "pkg/version/release.txt", "release header to write")
	cmd.Flags().StringVar(&setVersion, "set-version", "", "version to declare")
	return cmd
}

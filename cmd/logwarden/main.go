// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// logwarden monitors a web server log directory. Cron runs it with a mode:
//
//	logwarden check   # growth and partition alerts
//	logwarden daily   # self-update, report, log maintenance
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "logwarden: %v\n", err)
		os.Exit(1)
	}
}

// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"log/slog"
)

// Open opens the bbolt store at path. If that fails the error is logged and
// a MemoryStore is returned instead; the second return value reports whether
// the result is durable.
func Open(path string, logger *slog.Logger) (Store, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := NewBboltStore(path, DefaultLockTimeout)
	if err != nil {
		logger.Error("state database unavailable, size history will not persist this run",
			"path", path,
			"error", err,
		)
		return NewMemoryStore(), false
	}
	return s, true
}

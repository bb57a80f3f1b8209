// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history tracks the state LogWarden carries from one invocation to
// the next: the last sampled directory size and the single pending notice
// queued for the next daily report.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/loganrossus/logwarden/pkg/store"
)

// Keys in the state store.
const (
	KeyPreviousBytes = "size/previous_bytes"
	KeyPendingAlert  = "update/pending_alert"
	KeyLastVersion   = "update/last_version"
)

// UpdateState is the persisted update-related state.
type UpdateState struct {
	RunningVersion string
	// LastVersion is the version recorded by the previous daily run, empty
	// on first run.
	LastVersion string
	// PendingAlertText is empty when no notice is queued.
	PendingAlertText string
}

// History wraps a store.Store with typed accessors.
type History struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a History over s.
func New(s store.Store, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{store: s, logger: logger}
}

// Load returns the previously saved size. It never fails: a missing or
// unreadable record reads as 0.
func (h *History) Load(ctx context.Context) int64 {
	raw, err := h.store.Get(ctx, KeyPreviousBytes)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			h.logger.Warn("failed to read size history, treating as empty", "error", err)
		}
		return 0
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || n < 0 {
		h.logger.Warn("size history is corrupt, treating as empty",
			"value", string(raw),
			"error", err,
		)
		return 0
	}
	return n
}

// Save durably records size as the new baseline.
func (h *History) Save(ctx context.Context, size int64) error {
	if size < 0 {
		return fmt.Errorf("refusing to save negative size %d", size)
	}
	if err := h.store.Set(ctx, KeyPreviousBytes, []byte(strconv.FormatInt(size, 10))); err != nil {
		return fmt.Errorf("failed to save size history: %w", err)
	}
	return nil
}

// QueueNotice stores text for the next daily report. The queue holds one
// notice; queuing again appends to the pending text so nothing is lost.
func (h *History) QueueNotice(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if pending := h.peekNotice(ctx); pending != "" {
		text = pending + "\n" + text
	}
	if err := h.store.Set(ctx, KeyPendingAlert, []byte(text)); err != nil {
		return fmt.Errorf("failed to queue notice: %w", err)
	}
	return nil
}

// ConsumeNotice returns the pending notice and clears it. It returns "" when
// nothing is queued.
func (h *History) ConsumeNotice(ctx context.Context) string {
	text := h.peekNotice(ctx)
	if text == "" {
		return ""
	}
	if err := h.store.Delete(ctx, KeyPendingAlert); err != nil {
		h.logger.Warn("failed to clear pending notice", "error", err)
	}
	return text
}

// LoadUpdateState reads the persisted update state for the running version
// without consuming the pending notice.
func (h *History) LoadUpdateState(ctx context.Context, runningVersion string) UpdateState {
	st := UpdateState{
		RunningVersion:   runningVersion,
		PendingAlertText: h.peekNotice(ctx),
	}
	if raw, err := h.store.Get(ctx, KeyLastVersion); err == nil {
		st.LastVersion = string(raw)
	}
	return st
}

// RecordVersion stores v as the last version seen by a daily run.
func (h *History) RecordVersion(ctx context.Context, v string) error {
	if err := h.store.Set(ctx, KeyLastVersion, []byte(v)); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}
	return nil
}

func (h *History) peekNotice(ctx context.Context) string {
	raw, err := h.store.Get(ctx, KeyPendingAlert)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			h.logger.Warn("failed to read pending notice", "error", err)
		}
		return ""
	}
	return string(raw)
}

// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists the small amount of state LogWarden carries between
// invocations.
package store

import (
	"context"
)

// Store defines the interface for key-value storage operations.
type Store interface {
	// Get retrieves the value for the given key.
	// Returns ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set sets the value for the given key. The write is durable when Set
	// returns.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the given key.
	// It is not an error if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// Common errors
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrKeyNotFound = Error("key not found")
	ErrClosed      = Error("store closed")
)

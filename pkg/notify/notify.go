// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers alerts and reports to the operator.
package notify

import (
	"context"
	"fmt"
)

// Kind distinguishes the messages LogWarden sends.
type Kind string

const (
	KindFatal     Kind = "FATAL hostname"
	KindGrowth    Kind = "size growth"
	KindPartition Kind = "partition usage"
	KindReport    Kind = "daily report"
)

// Attachment is a named plain-text attachment.
type Attachment struct {
	Name    string
	Content []byte
}

// Message is one outbound notification.
type Message struct {
	Kind        Kind
	Subject     string
	Body        string
	Attachments []Attachment
}

// Notifier sends messages. Implementations do not retry.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Subject builds the subject line for kind on host. host may be empty when
// the host could not be identified.
func Subject(kind Kind, host string) string {
	if host == "" {
		return fmt.Sprintf("[logwarden] %s", kind)
	}
	return fmt.Sprintf("[logwarden] %s on %s", kind, host)
}

// DispatchError reports a failed delivery.
type DispatchError struct {
	Subject string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to send %q: %v", e.Subject, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

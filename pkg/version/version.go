// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package version provides version information for LogWarden.
//
// The version is read from the embedded release header, which also carries
// the stable region that the self-updater fingerprints. The region holds
// digests of the alert and update sources; regenerate it with go generate
// after changing them.
package version

import (
	_ "embed"

	"github.com/loganrossus/logwarden/pkg/bundle"
)

// fallback is reported when the release header carries no declaration.
const fallback = "0.0.0-dev"

//go:generate go run ../../cmd/logwarden-release --root ../.. --out release.txt

//go:embed release.txt
var release string

// Version is the current version of LogWarden.
var Version = parse(release)

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}

// Release returns the raw embedded release header.
func Release() []byte {
	return []byte(release)
}

// StableDigest returns the fingerprint of the running build's stable region,
// or an empty string if the header has none.
func StableDigest() string {
	d, err := bundle.StableDigest(Release())
	if err != nil {
		return ""
	}
	return d
}

func parse(header string) string {
	v, err := bundle.Version([]byte(header))
	if err != nil {
		return fallback
	}
	return v
}

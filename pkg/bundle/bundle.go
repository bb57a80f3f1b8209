// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bundle reads and patches the self-describing regions that every
// LogWarden release artifact carries: the version declaration, the stable
// region used for drift detection, and the operator config region.
//
// Markers are assembled at runtime so the literal marker text only ever
// appears once in a built executable, inside the embedded region itself.
package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Product prefixes the version key and all region markers.
const Product = "logwarden"

// VersionKey is the key of the key="value" version declaration.
const VersionKey = Product + "_version"

// Region names.
const (
	StableRegion = "stable"
	ConfigRegion = "config"
)

// Error is a bundle format error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNoVersion       = Error("no version declaration found")
	ErrNoRegion        = Error("region markers not found")
	ErrRegionOverflow  = Error("config fields do not fit the reserved region")
	ErrInvalidFieldKey = Error("invalid config field key")
)

var (
	versionPattern = regexp.MustCompile(regexp.QuoteMeta(VersionKey) + `="([0-9A-Za-z._+~-]+)"`)
	fieldLine      = regexp.MustCompile(`^([a-z][a-z0-9_]*)=(".*")$`)
	fieldKey       = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Field is one key="value" line of the config region.
type Field struct {
	Key   string
	Value string
}

// Region locates the content between a begin and end marker.
// Content occupies data[Start:End].
type Region struct {
	Start int
	End   int
}

// Len returns the reserved capacity of the region.
func (r Region) Len() int { return r.End - r.Start }

// Marker returns the delimiter for a region edge ("begin" or "end").
func Marker(region, edge string) []byte {
	return []byte(fmt.Sprintf("@@%s:%s:%s@@", Product, region, edge))
}

// Find locates the named region in data.
func Find(data []byte, name string) (Region, error) {
	begin := Marker(name, "begin")
	end := Marker(name, "end")

	i := bytes.Index(data, begin)
	if i < 0 {
		return Region{}, fmt.Errorf("%s region: %w", name, ErrNoRegion)
	}
	start := i + len(begin)
	j := bytes.Index(data[start:], end)
	if j < 0 {
		return Region{}, fmt.Errorf("%s region: %w", name, ErrNoRegion)
	}
	return Region{Start: start, End: start + j}, nil
}

// Version extracts the declared version from an artifact.
func Version(data []byte) (string, error) {
	m := versionPattern.FindSubmatch(data)
	if m == nil {
		return "", ErrNoVersion
	}
	return string(m[1]), nil
}

// Declaration renders the version declaration line for v.
func Declaration(v string) string {
	return VersionKey + "=" + strconv.Quote(v)
}

// StableDigest returns the hex SHA-256 of the stable region content.
func StableDigest(data []byte) (string, error) {
	r, err := Find(data, StableRegion)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data[r.Start:r.End])
	return hex.EncodeToString(sum[:]), nil
}

// ParseConfig returns the config region fields in the order they appear.
// Lines that are not key="value" declarations are ignored.
func ParseConfig(data []byte) ([]Field, error) {
	r, err := Find(data, ConfigRegion)
	if err != nil {
		return nil, err
	}

	var fields []Field
	for _, line := range strings.Split(string(data[r.Start:r.End]), "\n") {
		key, value, ok := parseLine(strings.TrimSpace(line))
		if !ok {
			continue
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields, nil
}

// MergeConfig rewrites the given fields inside the config region of data and
// returns the patched copy. Only the lines declaring those keys change; other
// lines are kept verbatim and keys missing from the region are appended. The
// region keeps its exact length (space padded) so compiled artifacts stay
// valid. Merging the same fields twice gives the same bytes as merging once.
func MergeConfig(data []byte, fields []Field) ([]byte, error) {
	r, err := Find(data, ConfigRegion)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(data[r.Start:r.End]), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	for _, f := range fields {
		if !fieldKey.MatchString(f.Key) {
			return nil, fmt.Errorf("%q: %w", f.Key, ErrInvalidFieldKey)
		}
		rendered := f.Key + "=" + strconv.Quote(f.Value)
		replaced := false
		for i, line := range lines {
			if key, _, ok := parseLine(strings.TrimSpace(line)); ok && key == f.Key {
				lines[i] = rendered
				replaced = true
			}
		}
		if !replaced {
			lines = append(lines, rendered)
		}
	}

	content := "\n" + strings.Join(lines, "\n") + "\n"
	if len(lines) == 0 {
		content = "\n"
	}
	pad := r.Len() - len(content)
	if pad < 0 {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", len(content), r.Len(), ErrRegionOverflow)
	}
	if pad > 0 {
		content += strings.Repeat(" ", pad-1) + "\n"
	}

	out := make([]byte, 0, len(data))
	out = append(out, data[:r.Start]...)
	out = append(out, content...)
	out = append(out, data[r.End:]...)
	return out, nil
}

func parseLine(line string) (string, string, bool) {
	m := fieldLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	value, err := strconv.Unquote(m[2])
	if err != nil {
		return "", "", false
	}
	return m[1], value, true
}

// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loganrossus/logwarden/pkg/bundle"
)

// StablePackages are the source directories, relative to the module root,
// that decide alerts and updates. Their digests make up the stable region.
var StablePackages = []string{"pkg/bundle", "pkg/evaluate", "pkg/updater"}

// SourceDigest returns the hex SHA-256 of the non-test Go files in dir.
// Files are hashed in name order, each as name, NUL, length, NUL, content.
func SourceDigest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no Go sources in %s", dir)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", name, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Header renders the release header for version v from the sources under
// root: the version declaration, then one "<package> <digest>" line per
// stable package inside the stable region.
func Header(v, root string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(bundle.Declaration(v) + "\n")
	b.Write(bundle.Marker(bundle.StableRegion, "begin"))
	b.WriteString("\n")
	for _, pkg := range StablePackages {
		d, err := SourceDigest(filepath.Join(root, filepath.FromSlash(pkg)))
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", pkg, err)
		}
		fmt.Fprintf(&b, "%s %s\n", pkg, d)
	}
	b.Write(bundle.Marker(bundle.StableRegion, "end"))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

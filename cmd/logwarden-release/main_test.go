package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/loganrossus/logwarden/pkg/bundle"
	"github.com/loganrossus/logwarden/pkg/version"
)

func moduleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, pkg := range version.StablePackages {
		dir := filepath.Join(root, filepath.FromSlash(pkg))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		src := "package " + filepath.Base(pkg) + "\n"
		if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestReleaseHeader(t *testing.T) {
	root := moduleTree(t)
	out := filepath.Join(t.TempDir(), "release.txt")

	t.Run("requires a version for a new header", func(t *testing.T) {
		if err := run(t, "--root", root, "--out", out); err == nil {
			t.Error("expected error without --set-version and without an existing header")
		}
	})

	t.Run("writes the declared version and digests", func(t *testing.T) {
		if err := run(t, "--root", root, "--out", out, "--set-version", "1.3.0"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		want, err := version.Header("1.3.0", root)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, want) {
			t.Errorf("header = %q, want %q", data, want)
		}
	})

	t.Run("keeps the existing version on regeneration", func(t *testing.T) {
		src := filepath.Join(root, "pkg", "updater", "a.go")
		if err := os.WriteFile(src, []byte("package updater\n\nconst retries = 0\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		before, _ := os.ReadFile(out)

		if err := run(t, "--root", root, "--out", out); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		after, _ := os.ReadFile(out)

		if v, _ := bundle.Version(after); v != "1.3.0" {
			t.Errorf("version = %q, want 1.3.0", v)
		}
		d1, _ := bundle.StableDigest(before)
		d2, _ := bundle.StableDigest(after)
		if d1 == d2 {
			t.Error("stable digest must follow the updater sources")
		}
	})
}

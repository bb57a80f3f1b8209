// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package updater

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

const backupExt = ".bak"

// Execer replaces the current process image.
type Execer interface {
	Exec(path string, argv, env []string) error
}

// UnixExecer calls execve(2). On success it never returns.
type UnixExecer struct{}

// Exec executes path with argv and env.
func (UnixExecer) Exec(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}

// BackupPrefix returns the file name prefix shared by every backup of exe:
// the path with slashes replaced by underscores.
func BackupPrefix(exe string) string {
	return strings.ReplaceAll(filepath.Clean(exe), string(filepath.Separator), "_") + "."
}

// backup copies the running executable into the backup directory and evicts
// old backups.
func (u *Updater) backup(running []byte) (string, error) {
	dir := u.opts.Config.BackupDir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	info, err := os.Stat(u.opts.Executable)
	if err != nil {
		return "", fmt.Errorf("failed to stat executable: %w", err)
	}

	name := fmt.Sprintf("%s%s.%s%s",
		BackupPrefix(u.opts.Executable),
		u.opts.RunningVersion,
		u.opts.Now().Format("20060102"),
		backupExt,
	)
	path := filepath.Join(dir, name)
	if err := writeFileSynced(path, running, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := u.pruneBackups(name); err != nil {
		u.logger.Warn("failed to prune old backups", "error", err)
	}
	return path, nil
}

// pruneBackups keeps the newest KeepBackups backups of the executable,
// always including the one just written.
func (u *Updater) pruneBackups(current string) error {
	dir := u.opts.Config.BackupDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	prefix := BackupPrefix(u.opts.Executable)
	type backupFile struct {
		name string
		mod  int64
	}
	var backups []backupFile
	for _, e := range entries {
		name := e.Name()
		if name == current || !e.Type().IsRegular() ||
			!strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, backupExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{name: name, mod: info.ModTime().UnixNano()})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].mod != backups[j].mod {
			return backups[i].mod > backups[j].mod
		}
		return backups[i].name > backups[j].name
	})

	keep := u.opts.Config.KeepBackups - 1
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil
	}
	var firstErr error
	for _, b := range backups[keep:] {
		path := filepath.Join(dir, b.name)
		if err := os.Remove(path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		u.logger.Info("evicted old backup", "path", path)
	}
	return firstErr
}

// swap atomically replaces exe with data, keeping exe's mode bits. The new
// content and the directory entry are synced before swap returns.
func swap(exe string, data []byte) error {
	info, err := os.Stat(exe)
	if err != nil {
		return fmt.Errorf("failed to stat executable: %w", err)
	}

	dir := filepath.Dir(exe)
	tmp, err := os.CreateTemp(dir, ".logwarden-update-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write candidate: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync candidate: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close candidate: %w", err)
	}
	if err := os.Rename(tmpPath, exe); err != nil {
		return fmt.Errorf("failed to replace executable: %w", err)
	}
	committed = true

	return syncDir(dir)
}

func writeFileSynced(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".logwarden-backup-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loganrossus/logwarden/pkg/bundle"
	"github.com/loganrossus/logwarden/pkg/config"
	"github.com/loganrossus/logwarden/pkg/history"
	"github.com/loganrossus/logwarden/pkg/store"
	"github.com/loganrossus/logwarden/pkg/version"
)

var testNow = time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)

// artifact builds a text artifact shaped like a release: a version
// declaration, a stable region, a config region of regionSize bytes and a
// binary tail.
func artifact(t *testing.T, version, stable string, fields []bundle.Field, regionSize int) []byte {
	t.Helper()

	var cfg strings.Builder
	cfg.WriteString("\n")
	for _, f := range fields {
		fmt.Fprintf(&cfg, "%s=%q\n", f.Key, f.Value)
	}
	if cfg.Len() > regionSize {
		t.Fatalf("fields need %d bytes, region is %d", cfg.Len(), regionSize)
	}
	if pad := regionSize - cfg.Len(); pad > 0 {
		cfg.WriteString(strings.Repeat(" ", pad-1) + "\n")
	}

	var b bytes.Buffer
	b.WriteString("#!/bin/true\n")
	b.WriteString(bundle.Declaration(version) + "\n")
	b.Write(bundle.Marker(bundle.StableRegion, "begin"))
	b.WriteString(stable)
	b.Write(bundle.Marker(bundle.StableRegion, "end"))
	b.WriteString("\n")
	b.Write(bundle.Marker(bundle.ConfigRegion, "begin"))
	b.WriteString(cfg.String())
	b.Write(bundle.Marker(bundle.ConfigRegion, "end"))
	b.WriteString("\n\x00\x01\x02tail")
	return b.Bytes()
}

func emptyFields() []bundle.Field {
	return []bundle.Field{
		{Key: config.KeyDirectory, Value: ""},
		{Key: config.KeyMailFrom, Value: ""},
		{Key: config.KeyMailTo, Value: ""},
		{Key: config.KeySMTPHost, Value: ""},
		{Key: config.KeySMTPPort, Value: ""},
		{Key: config.KeySMTPUsername, Value: ""},
		{Key: config.KeySMTPPassword, Value: ""},
	}
}

func operatorFields() []bundle.Field {
	return []bundle.Field{
		{Key: config.KeyDirectory, Value: "/var/log/httpd"},
		{Key: config.KeyMailFrom, Value: "logwarden@web01.example.com"},
		{Key: config.KeyMailTo, Value: "ops@example.com"},
		{Key: config.KeySMTPHost, Value: "smtp.example.com"},
		{Key: config.KeySMTPPort, Value: "587"},
		{Key: config.KeySMTPUsername, Value: "relay"},
		{Key: config.KeySMTPPassword, Value: `s3cr"et`},
	}
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type execCall struct {
	path string
	argv []string
	env  []string
}

type fakeExecer struct {
	calls []execCall
	err   error
	// onExec observes ordering against BeforeExec.
	onExec func()
}

func (f *fakeExecer) Exec(path string, argv, env []string) error {
	if f.onExec != nil {
		f.onExec()
	}
	f.calls = append(f.calls, execCall{path: path, argv: argv, env: env})
	return f.err
}

type fixture struct {
	exe     string
	backups string
	fetcher *fakeFetcher
	execer  *fakeExecer
	history *history.History
	closed  bool
}

func newFixture(t *testing.T, running []byte) *fixture {
	t.Helper()
	root := t.TempDir()
	exe := filepath.Join(root, "bin", "logwarden")
	if err := os.MkdirAll(filepath.Dir(exe), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(exe, running, 0o755); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		exe:     exe,
		backups: filepath.Join(root, "backups"),
		fetcher: &fakeFetcher{},
		execer:  &fakeExecer{},
		history: history.New(store.NewMemoryStore(), nil),
	}
}

func (f *fixture) updater(runningVersion string, mutate ...func(*Options)) *Updater {
	enabled := true
	opts := Options{
		Config: config.UpdateConfig{
			Enabled:     &enabled,
			URL:         "https://updates.example.com/logwarden",
			BackupDir:   f.backups,
			KeepBackups: 2,
		},
		Executable:     f.exe,
		RunningVersion: runningVersion,
		Notices:        f.history,
		BeforeExec: func() error {
			f.closed = true
			return nil
		},
		Fetcher: f.fetcher,
		Execer:  f.execer,
		Args:    []string{f.exe, "daily"},
		Env:     []string{"PATH=/usr/bin"},
		Now:     func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts)
}

func (f *fixture) backupNames(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.backups)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_UpdatesAndRelaunches(t *testing.T) {
	running := artifact(t, "1.0", "rules v1\n", operatorFields(), 512)
	candidate := artifact(t, "1.1", "rules v2\n", emptyFields(), 512)

	f := newFixture(t, running)
	f.fetcher.data = candidate
	f.execer.onExec = func() {
		if !f.closed {
			t.Error("BeforeExec must run before exec")
		}
	}

	res := f.updater("1.0").Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run() error = %v", res.Err)
	}
	if res.State != StateRelaunched {
		t.Fatalf("State = %s, want Relaunched", res.State)
	}
	if res.CandidateVersion != "1.1" || res.Downgrade {
		t.Errorf("unexpected result %+v", res)
	}

	installed, err := os.ReadFile(f.exe)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := bundle.Version(installed); v != "1.1" {
		t.Errorf("installed version = %q, want 1.1", v)
	}
	if len(installed) != len(candidate) {
		t.Errorf("installed length %d, candidate length %d", len(installed), len(candidate))
	}
	fields, err := bundle.ParseConfig(installed)
	if err != nil {
		t.Fatal(err)
	}
	want := operatorFields()
	if len(fields) != len(want) {
		t.Fatalf("installed fields = %v", fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %+v, want %+v", i, fields[i], want[i])
		}
	}

	info, err := os.Stat(f.exe)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}

	wantBackup := BackupPrefix(f.exe) + "1.0.20250701.bak"
	if filepath.Base(res.BackupPath) != wantBackup {
		t.Errorf("BackupPath = %q, want %q", res.BackupPath, wantBackup)
	}
	saved, err := os.ReadFile(res.BackupPath)
	if err != nil || !bytes.Equal(saved, running) {
		t.Errorf("backup does not hold the previous executable (err %v)", err)
	}

	if len(f.execer.calls) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(f.execer.calls))
	}
	call := f.execer.calls[0]
	if call.path != f.exe || len(call.argv) != 2 || call.argv[1] != "daily" || call.env[0] != "PATH=/usr/bin" {
		t.Errorf("exec call = %+v", call)
	}

	notice := f.history.ConsumeNotice(context.Background())
	if !strings.Contains(notice, "1.0") || !strings.Contains(notice, "1.1") {
		t.Errorf("queued notice %q must name both versions", notice)
	}
}

func TestRun_SameVersionNoChange(t *testing.T) {
	running := artifact(t, "1.0", "rules v1\n", operatorFields(), 512)
	candidate := artifact(t, "1.0", "rules v1\n", emptyFields(), 512)

	f := newFixture(t, running)
	f.fetcher.data = candidate

	res := f.updater("1.0").Run(context.Background())
	if res.State != StateIdle || !res.UpToDate || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if names := f.backupNames(t); len(names) != 0 {
		t.Errorf("no backup expected, found %v", names)
	}
	if len(f.execer.calls) != 0 {
		t.Error("exec must not be called")
	}
	if f.closed {
		t.Error("BeforeExec must not be called")
	}
	installed, _ := os.ReadFile(f.exe)
	if !bytes.Equal(installed, running) {
		t.Error("executable must not change")
	}
	if notice := f.history.ConsumeNotice(context.Background()); notice != "" {
		t.Errorf("unexpected notice %q", notice)
	}
}

func TestRun_SameVersionDrift(t *testing.T) {
	running := artifact(t, "1.0", "rules v1\n", operatorFields(), 512)
	candidate := artifact(t, "1.0", "rules v1 patched\n", emptyFields(), 512)

	f := newFixture(t, running)
	f.fetcher.data = candidate

	res := f.updater("1.0").Run(context.Background())
	if res.State != StateIdle || res.UpToDate {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.execer.calls) != 0 || len(f.backupNames(t)) != 0 {
		t.Error("drift must not install anything")
	}
	notice := f.history.ConsumeNotice(context.Background())
	if !strings.Contains(notice, "material difference despite same version 1.0") {
		t.Errorf("notice = %q", notice)
	}
}

// stableRegion renders the stable region a release built from a source
// tree whose evaluate package holds evaluateSrc would carry.
func stableRegion(t *testing.T, evaluateSrc string) string {
	t.Helper()
	root := t.TempDir()
	for _, pkg := range version.StablePackages {
		dir := filepath.Join(root, filepath.FromSlash(pkg))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		src := "package " + filepath.Base(pkg) + "\n"
		if pkg == "pkg/evaluate" {
			src = evaluateSrc
		}
		if err := os.WriteFile(filepath.Join(dir, "src.go"), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	header, err := version.Header("1.0", root)
	if err != nil {
		t.Fatal(err)
	}
	r, err := bundle.Find(header, bundle.StableRegion)
	if err != nil {
		t.Fatal(err)
	}
	return string(header[r.Start:r.End])
}

func TestRun_SameVersionLogicChange(t *testing.T) {
	strict := stableRegion(t, "package evaluate\n\nfunc alert(pct, min float64) bool { return pct > min }\n")
	loose := stableRegion(t, "package evaluate\n\nfunc alert(pct, min float64) bool { return pct >= min }\n")

	tests := []struct {
		name      string
		candidate string
		upToDate  bool
	}{
		{"same sources", strict, true},
		{"changed comparison", loose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, artifact(t, "1.0", strict, operatorFields(), 512))
			f.fetcher.data = artifact(t, "1.0", tt.candidate, emptyFields(), 512)

			res := f.updater("1.0").Run(context.Background())
			if res.State != StateIdle || res.UpToDate != tt.upToDate {
				t.Fatalf("unexpected result %+v", res)
			}
			if len(f.execer.calls) != 0 {
				t.Error("same version must never be installed")
			}
			notice := f.history.ConsumeNotice(context.Background())
			drift := strings.Contains(notice, "material difference despite same version 1.0")
			if drift == tt.upToDate {
				t.Errorf("notice = %q, upToDate = %v", notice, tt.upToDate)
			}
		})
	}
}

func TestRun_FetchFailure(t *testing.T) {
	f := newFixture(t, artifact(t, "1.0", "rules\n", operatorFields(), 512))
	f.fetcher.err = errors.New("connection refused")

	u := f.updater("1.0")
	res := u.Run(context.Background())

	var ferr *FetchError
	if !errors.As(res.Err, &ferr) {
		t.Fatalf("expected *FetchError, got %v", res.Err)
	}
	if res.State != StateIdle || u.State() != StateIdle {
		t.Errorf("State = %s, want Idle", res.State)
	}
	notice := f.history.ConsumeNotice(context.Background())
	if !strings.Contains(notice, "update fetch failed") {
		t.Errorf("notice = %q", notice)
	}
}

func TestRun_ValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		candidate func(t *testing.T) []byte
	}{
		{
			name: "missing version",
			candidate: func(t *testing.T) []byte {
				return []byte("#!/bin/sh\necho hello\n")
			},
		},
		{
			name: "config region too small",
			candidate: func(t *testing.T) []byte {
				return artifact(t, "1.1", "rules\n", nil, 16)
			},
		},
		{
			name: "no config region",
			candidate: func(t *testing.T) []byte {
				return []byte(bundle.Declaration("1.1") + "\n")
			},
		},
		{
			name: "same version without stable region",
			candidate: func(t *testing.T) []byte {
				return []byte(bundle.Declaration("1.0") + "\n")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			running := artifact(t, "1.0", "rules\n", operatorFields(), 512)
			f := newFixture(t, running)
			f.fetcher.data = tt.candidate(t)

			res := f.updater("1.0").Run(context.Background())

			var verr *ValidationError
			if !errors.As(res.Err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", res.Err)
			}
			if res.State != StateIdle {
				t.Errorf("State = %s", res.State)
			}
			installed, _ := os.ReadFile(f.exe)
			if !bytes.Equal(installed, running) {
				t.Error("executable must not change")
			}
			if len(f.backupNames(t)) != 0 {
				t.Error("no backup expected")
			}
			if !strings.Contains(f.history.ConsumeNotice(context.Background()), "update validation failed") {
				t.Error("expected queued validation warning")
			}
		})
	}
}

func TestRun_Disabled(t *testing.T) {
	f := newFixture(t, artifact(t, "1.0", "rules\n", operatorFields(), 512))
	res := f.updater("1.0", func(o *Options) {
		disabled := false
		o.Config.Enabled = &disabled
	}).Run(context.Background())

	if res.State != StateIdle || res.Err != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if f.fetcher.calls != 0 {
		t.Error("fetch must not run when disabled")
	}
	if notice := f.history.ConsumeNotice(context.Background()); notice != "" {
		t.Errorf("unexpected notice %q", notice)
	}
}

func TestRun_Downgrade(t *testing.T) {
	f := newFixture(t, artifact(t, "1.2.0", "rules v3\n", operatorFields(), 512))
	f.fetcher.data = artifact(t, "1.1.0", "rules v2\n", emptyFields(), 512)

	res := f.updater("1.2.0").Run(context.Background())
	if res.State != StateRelaunched || !res.Downgrade {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.Notice, "downgraded from 1.2.0 to 1.1.0") {
		t.Errorf("notice = %q", res.Notice)
	}
}

func TestRun_ExecFailure(t *testing.T) {
	f := newFixture(t, artifact(t, "1.0", "rules\n", operatorFields(), 512))
	f.fetcher.data = artifact(t, "1.1", "rules v2\n", emptyFields(), 512)
	f.execer.err = errors.New("exec format error")

	res := f.updater("1.0").Run(context.Background())
	if res.State != StateRelaunched || res.Err == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	installed, _ := os.ReadFile(f.exe)
	if v, _ := bundle.Version(installed); v != "1.1" {
		t.Errorf("swap should stand even when exec fails, version %q", v)
	}
}

func TestRun_MergeFallsBackToLoadedBundle(t *testing.T) {
	// A running executable without a config region.
	running := []byte(bundle.Declaration("1.0") + "\nplain build\n")
	f := newFixture(t, running)
	f.fetcher.data = artifact(t, "1.1", "rules\n", emptyFields(), 512)

	res := f.updater("1.0", func(o *Options) {
		o.Bundle = operatorFields()
	}).Run(context.Background())
	if res.State != StateRelaunched {
		t.Fatalf("unexpected result %+v", res)
	}

	installed, _ := os.ReadFile(f.exe)
	fields, err := bundle.ParseConfig(installed)
	if err != nil {
		t.Fatal(err)
	}
	if fields[2].Value != "ops@example.com" {
		t.Errorf("fields = %v", fields)
	}
}

func TestBackupRetention(t *testing.T) {
	f := newFixture(t, artifact(t, "1.3", "rules\n", operatorFields(), 512))
	f.fetcher.data = artifact(t, "1.4", "rules v2\n", emptyFields(), 512)

	if err := os.MkdirAll(f.backups, 0o750); err != nil {
		t.Fatal(err)
	}
	prefix := BackupPrefix(f.exe)
	old := []string{
		prefix + "1.0.20250101.bak",
		prefix + "1.1.20250301.bak",
		prefix + "1.2.20250501.bak",
	}
	for i, name := range old {
		path := filepath.Join(f.backups, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := testNow.AddDate(0, 0, -100+30*i)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	unrelated := filepath.Join(f.backups, "other-tool.1.0.20250101.bak")
	if err := os.WriteFile(unrelated, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	res := f.updater("1.3").Run(context.Background())
	if res.State != StateRelaunched {
		t.Fatalf("unexpected result %+v", res)
	}

	names := map[string]bool{}
	for _, n := range f.backupNames(t) {
		names[n] = true
	}
	if !names[prefix+"1.3.20250701.bak"] {
		t.Error("new backup missing")
	}
	if !names[prefix+"1.2.20250501.bak"] {
		t.Error("immediately previous backup must be kept")
	}
	if names[prefix+"1.0.20250101.bak"] || names[prefix+"1.1.20250301.bak"] {
		t.Errorf("older backups must be evicted: %v", names)
	}
	if !names["other-tool.1.0.20250101.bak"] {
		t.Error("unrelated files must not be touched")
	}
}

func TestBackupPrefix(t *testing.T) {
	if got := BackupPrefix("/usr/local/bin/logwarden"); got != "_usr_local_bin_logwarden." {
		t.Errorf("BackupPrefix() = %q", got)
	}
}

func TestIsOlder(t *testing.T) {
	tests := []struct {
		candidate, running string
		want               bool
	}{
		{"1.0", "1.1", true},
		{"1.1", "1.0", false},
		{"1.10.0", "1.9.0", false},
		{"2.0.0-rc.1", "2.0.0", true},
		{"nightly", "1.0", false},
	}
	for _, tt := range tests {
		if got := isOlder(tt.candidate, tt.running); got != tt.want {
			t.Errorf("isOlder(%q, %q) = %v, want %v", tt.candidate, tt.running, got, tt.want)
		}
	}
}

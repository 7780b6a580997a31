package engine

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"termbackup/internal/audit"
	"termbackup/internal/ledger"
	"termbackup/internal/manifest"
	"termbackup/internal/profile"
	"termbackup/internal/ui"
)

type fakeAPI struct {
	blobs     map[string][]byte
	manifests map[string]string
	metadata  string
	sha       string
	deleted   []string
	uploads   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		blobs:     map[string][]byte{},
		manifests: map[string]string{},
	}
}

func (f *fakeAPI) UploadBlob(_ context.Context, _ string, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	f.blobs[filepath.Base(filePath)] = data
	f.uploads++
	return "commit-sha-123", nil
}

func (f *fakeAPI) DeleteBlob(_ context.Context, _ string, fileName string) error {
	delete(f.blobs, fileName)
	f.deleted = append(f.deleted, fileName)
	return nil
}

func (f *fakeAPI) GetMetadata(context.Context, string) (string, string, bool, error) {
	return f.metadata, f.sha, f.metadata != "", nil
}

func (f *fakeAPI) UpdateMetadata(_ context.Context, _ string, content, _ string) (string, error) {
	f.metadata = content
	f.sha = "sha-next"
	return f.sha, nil
}

func (f *fakeAPI) DownloadManifest(_ context.Context, _ string, backupID string) ([]byte, bool, error) {
	content, ok := f.manifests[backupID]
	return []byte(content), ok, nil
}

func (f *fakeAPI) UploadManifest(_ context.Context, _ string, backupID, content string) error {
	f.manifests[backupID] = content
	return nil
}

func testProfile(t *testing.T, mode profile.Mode) *profile.Profile {
	t.Helper()
	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &profile.Profile{
		Name:             "dotfiles",
		SourceDir:        source,
		Repo:             "alice/backups",
		CompressionLevel: 6,
		BackupMode:       mode,
	}
}

func testRunner(t *testing.T, api *fakeAPI) (*Runner, *bytes.Buffer, string) {
	t.Helper()
	var out bytes.Buffer
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	runner := NewRunner(Options{
		API:     api,
		Audit:   audit.NewLog(auditPath, true, nil),
		TempDir: t.TempDir(),
		Console: ui.NewPlainConsole(&out),
	})
	return runner, &out, auditPath
}

func TestRunFullBackup(t *testing.T) {
	api := newFakeAPI()
	runner, _, auditPath := testRunner(t, api)

	result, err := runner.Run(context.Background(), Request{
		Profile:  testProfile(t, profile.ModeFull),
		Password: "hunter2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped || result.DryRun {
		t.Fatalf("unexpected result flags: %+v", result)
	}
	if result.FileCount != 1 || result.CommitSHA != "commit-sha-123" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(api.blobs) != 1 {
		t.Fatalf("expected 1 uploaded blob, got %d", len(api.blobs))
	}
	if _, ok := api.blobs[result.Filename]; !ok {
		t.Fatalf("blob %s not uploaded", result.Filename)
	}

	led, err := ledger.Parse(api.metadata)
	if err != nil {
		t.Fatal(err)
	}
	if len(led.Backups) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(led.Backups))
	}
	entry := led.Backups[0]
	if entry.ID != result.BackupID || entry.ArchiveVersion != 2 || entry.Size != result.ArchiveSize {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}

	auditData, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(auditData, []byte(`"operation":"backup"`)) {
		t.Fatalf("audit log missing backup entry: %s", auditData)
	}
}

func TestRunCleansUpTempArchive(t *testing.T) {
	api := newFakeAPI()
	tempDir := t.TempDir()
	runner := NewRunner(Options{
		API:     api,
		TempDir: tempDir,
		Console: ui.NewPlainConsole(&bytes.Buffer{}),
	})
	if _, err := runner.Run(context.Background(), Request{
		Profile:  testProfile(t, profile.ModeFull),
		Password: "hunter2",
	}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir should be empty after the run, found %d entries", len(entries))
	}
}

func TestRunDryRun(t *testing.T) {
	api := newFakeAPI()
	runner, out, _ := testRunner(t, api)

	result, err := runner.Run(context.Background(), Request{
		Profile:  testProfile(t, profile.ModeFull),
		Password: "hunter2",
		DryRun:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.DryRun {
		t.Fatal("expected a dry run result")
	}
	if api.uploads != 0 || api.metadata != "" {
		t.Fatal("dry run must not touch the repository")
	}
	if !bytes.Contains(out.Bytes(), []byte("Dry run complete")) {
		t.Fatalf("missing dry run notice in output: %s", out)
	}
}

func TestRunMissingSourceDir(t *testing.T) {
	api := newFakeAPI()
	runner, _, _ := testRunner(t, api)
	p := testProfile(t, profile.ModeFull)
	p.SourceDir = filepath.Join(p.SourceDir, "missing")

	if _, err := runner.Run(context.Background(), Request{Profile: p, Password: "pw"}); err == nil {
		t.Fatal("expected error for missing source directory")
	}
}

func TestRunIncrementalSkipsWhenUnchanged(t *testing.T) {
	api := newFakeAPI()
	runner, _, _ := testRunner(t, api)
	p := testProfile(t, profile.ModeIncremental)

	first, err := runner.Run(context.Background(), Request{Profile: p, Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Skipped {
		t.Fatal("first incremental run should not be skipped")
	}
	if _, ok := api.manifests[first.BackupID]; !ok {
		t.Fatal("incremental run should upload a manifest sidecar")
	}

	second, err := runner.Run(context.Background(), Request{Profile: p, Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped {
		t.Fatal("unchanged incremental run should be skipped")
	}
	if api.uploads != 1 {
		t.Fatalf("expected no second upload, got %d uploads", api.uploads)
	}
}

func TestRunIncrementalPacksOnlyChanges(t *testing.T) {
	api := newFakeAPI()
	runner, _, _ := testRunner(t, api)
	p := testProfile(t, profile.ModeIncremental)

	first, err := runner.Run(context.Background(), Request{Profile: p, Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(p.SourceDir, "new.txt"), []byte("fresh"), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := runner.Run(context.Background(), Request{Profile: p, Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Skipped {
		t.Fatal("changed incremental run should not be skipped")
	}
	if second.FileCount != 1 {
		t.Fatalf("expected only the changed file packed, got %d", second.FileCount)
	}

	sidecar, ok := api.manifests[second.BackupID]
	if !ok {
		t.Fatal("second run should upload a manifest sidecar")
	}
	m, err := manifest.Decode([]byte(sidecar))
	if err != nil {
		t.Fatal(err)
	}
	if m.ParentBackupID != first.BackupID {
		t.Fatalf("parent backup ID = %q, want %q", m.ParentBackupID, first.BackupID)
	}
	if len(m.Files) != 1 || m.Files[0].RelativePath != "new.txt" {
		t.Fatalf("unexpected sidecar files: %+v", m.Files)
	}
}

func TestRunAppliesRetentionPolicy(t *testing.T) {
	api := newFakeAPI()
	runner, _, _ := testRunner(t, api)
	p := testProfile(t, profile.ModeFull)
	maxBackups := 1
	p.MaxBackups = &maxBackups

	// Seed the ledger with an old backup and its blob.
	led := ledger.New(p.Repo)
	led.Backups = []ledger.Entry{{
		ID:        "old-backup-id",
		Filename:  "backup_old.tbk",
		CreatedAt: time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339),
	}}
	seeded, err := led.Encode()
	if err != nil {
		t.Fatal(err)
	}
	api.metadata = seeded
	api.sha = "sha-seed"
	api.blobs["backup_old.tbk"] = []byte("old archive")

	result, err := runner.Run(context.Background(), Request{Profile: p, Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.PrunedIDs) != 1 || result.PrunedIDs[0] != "old-backup-i" {
		t.Fatalf("unexpected pruned IDs: %v", result.PrunedIDs)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "backup_old.tbk" {
		t.Fatalf("unexpected deleted blobs: %v", api.deleted)
	}

	final, err := ledger.Parse(api.metadata)
	if err != nil {
		t.Fatal(err)
	}
	if len(final.Backups) != 1 || final.Backups[0].ID != result.BackupID {
		t.Fatalf("ledger should contain only the new backup, got %+v", final.Backups)
	}
}

func TestRunLogLinesCarryRunContext(t *testing.T) {
	api := newFakeAPI()
	var logBuf bytes.Buffer
	runner := NewRunner(Options{
		API:     api,
		TempDir: t.TempDir(),
		Console: ui.NewPlainConsole(&bytes.Buffer{}),
		Logger:  slog.New(slog.NewJSONHandler(&logBuf, nil)),
	})

	p := testProfile(t, profile.ModeFull)
	if _, err := runner.Run(context.Background(), Request{Profile: p, Password: "hunter2"}); err != nil {
		t.Fatal(err)
	}

	logs := logBuf.String()
	if !strings.Contains(logs, `"msg":"backup run complete"`) {
		t.Fatalf("missing completion log line: %s", logs)
	}
	for _, field := range []string{`"profile":"dotfiles"`, `"repo":"alice/backups"`, `"run_id":"`} {
		if !strings.Contains(logs, field) {
			t.Fatalf("log lines missing %s: %s", field, logs)
		}
	}
}

package manifest_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"termbackup/internal/manifest"
	"termbackup/internal/profile"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestCreateHashesAndSorts(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "zeta.txt", "zzz")
	writeFile(t, src, "alpha.txt", "aaa")
	writeFile(t, src, "sub/nested.txt", "nested")

	m, err := manifest.Create(src, nil, profile.ModeFull, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if m.Version != manifest.Version {
		t.Fatalf("unexpected version %q", m.Version)
	}
	if len(m.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(m.Files))
	}
	wantOrder := []string{"alpha.txt", "sub/nested.txt", "zeta.txt"}
	for i, want := range wantOrder {
		if m.Files[i].RelativePath != want {
			t.Fatalf("file %d = %q, want %q", i, m.Files[i].RelativePath, want)
		}
	}

	alpha := m.Files[0]
	if alpha.Size != 3 {
		t.Fatalf("unexpected size %d", alpha.Size)
	}
	// sha256("aaa")
	if alpha.SHA256 != "9834876dcfb05cb167a5c24953eba58c4ac89b1adf57f28f2f9d09af107ee8f0" {
		t.Fatalf("unexpected hash %q", alpha.SHA256)
	}
	if len(m.BackupID) != 64 {
		t.Fatalf("unexpected backup id %q", m.BackupID)
	}
	if _, err := time.Parse(time.RFC3339, m.CreatedAt); err != nil {
		t.Fatalf("created_at not RFC3339: %q", m.CreatedAt)
	}
}

func TestCreateAppliesExcludes(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "keep.txt", "keep")
	writeFile(t, src, "skip.log", "skip")
	writeFile(t, src, ".git/config", "gitdata")
	writeFile(t, src, "node_modules/pkg/index.js", "js")
	writeFile(t, src, "deep/.DS_Store", "junk")

	m, err := manifest.Create(src, []string{"*.log", "node_modules/"}, profile.ModeFull, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(m.Files) != 1 {
		paths := make([]string, 0, len(m.Files))
		for _, f := range m.Files {
			paths = append(paths, f.RelativePath)
		}
		t.Fatalf("expected only keep.txt, got %v", paths)
	}
	if m.Files[0].RelativePath != "keep.txt" {
		t.Fatalf("unexpected file %q", m.Files[0].RelativePath)
	}
}

func TestBackupIDDeterministic(t *testing.T) {
	m := &manifest.Manifest{
		Version:        manifest.Version,
		OSName:         "linux",
		RuntimeVersion: "test",
		Architecture:   "amd64",
		CreatedAt:      "2026-01-02T03:04:05Z",
		BackupMode:     profile.ModeFull,
		Files: []manifest.FileMetadata{
			{RelativePath: "a.txt", Size: 1, SHA256: "00", Permissions: 0o644, ModifiedAt: 1},
		},
	}

	first, err := manifest.ComputeBackupID(m)
	if err != nil {
		t.Fatalf("ComputeBackupID failed: %v", err)
	}
	m.BackupID = first

	// The stored ID must not feed back into the computation.
	second, err := manifest.ComputeBackupID(m)
	if err != nil {
		t.Fatalf("ComputeBackupID failed: %v", err)
	}
	if first != second {
		t.Fatalf("backup id changed after assignment: %q vs %q", first, second)
	}

	m.Files[0].SHA256 = "ff"
	changed, err := manifest.ComputeBackupID(m)
	if err != nil {
		t.Fatalf("ComputeBackupID failed: %v", err)
	}
	if changed == first {
		t.Fatal("expected content change to change the backup id")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "file.txt", "data")

	m, err := manifest.Create(src, nil, profile.ModeIncremental, "parent123")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := manifest.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.BackupID != m.BackupID {
		t.Fatalf("backup id mismatch: %q vs %q", got.BackupID, m.BackupID)
	}
	if got.ParentBackupID != "parent123" {
		t.Fatalf("unexpected parent id %q", got.ParentBackupID)
	}
	if got.BackupMode != profile.ModeIncremental {
		t.Fatalf("unexpected mode %q", got.BackupMode)
	}
}

func TestExcluded(t *testing.T) {
	patterns := []string{"*.log", "tmp/", "docs/secret.md"}
	cases := []struct {
		path string
		want bool
	}{
		{"app.log", true},
		{"nested/app.log", true},
		{"app.log.bak", false},
		{"tmp/file.txt", true},
		{"a/tmp/file.txt", true},
		{"temporary/file.txt", false},
		{"docs/secret.md", true},
		{"docs/public.md", false},
	}
	for _, tc := range cases {
		if got := manifest.Excluded(tc.path, patterns); got != tc.want {
			t.Fatalf("Excluded(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

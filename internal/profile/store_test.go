package profile_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"termbackup/internal/profile"
	"termbackup/internal/tbkerr"
)

func newTestProfile(t *testing.T, name string) *profile.Profile {
	t.Helper()
	source := t.TempDir()
	return &profile.Profile{
		Name:             name,
		SourceDir:        source,
		Repo:             "alice/backups",
		Excludes:         []string{"*.log"},
		CompressionLevel: 6,
		BackupMode:       profile.ModeFull,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profiles"))

	created := newTestProfile(t, "dotfiles")
	if err := store.Create(created); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get("dotfiles")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "dotfiles" || got.Repo != "alice/backups" {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if got.SourceDir != created.SourceDir {
		t.Fatalf("source dir not resolved: got %q want %q", got.SourceDir, created.SourceDir)
	}

	info, err := os.Stat(filepath.Join(store.Dir(), "dotfiles.json"))
	if err != nil {
		t.Fatalf("stat profile file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected profile file permissions: %o", perm)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profiles"))
	p := newTestProfile(t, "dup")
	if err := store.Create(p); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if err := store.Create(newTestProfile(t, "dup")); !errors.Is(err, tbkerr.ErrProfile) {
		t.Fatalf("expected profile error for duplicate, got %v", err)
	}
}

func TestCreateRejectsMissingSource(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profiles"))
	p := newTestProfile(t, "missing")
	p.SourceDir = filepath.Join(t.TempDir(), "does-not-exist")
	err := store.Create(p)
	if !errors.Is(err, tbkerr.ErrProfile) {
		t.Fatalf("expected profile error, got %v", err)
	}
	if tbkerr.HintOf(err) == "" {
		t.Fatal("expected hint on missing source error")
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*profile.Profile)
	}{
		{"bad name", func(p *profile.Profile) { p.Name = "has spaces" }},
		{"bad repo", func(p *profile.Profile) { p.Repo = "no-slash" }},
		{"compression too high", func(p *profile.Profile) { p.CompressionLevel = 10 }},
		{"bad mode", func(p *profile.Profile) { p.BackupMode = "differential" }},
		{"zero max backups", func(p *profile.Profile) { v := 0; p.MaxBackups = &v }},
		{"zero retention", func(p *profile.Profile) { v := 0; p.RetentionDays = &v }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProfile(t, "valid")
			tc.mutate(p)
			if err := p.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestGetNotFound(t *testing.T) {
	store := profile.NewStore(t.TempDir())
	_, err := store.Get("nope")
	if !errors.Is(err, tbkerr.ErrProfile) {
		t.Fatalf("expected profile error, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profiles"))
	if err := store.Create(newTestProfile(t, "gone")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("gone"); err == nil {
		t.Fatal("expected profile to be gone")
	}
	if err := store.Delete("gone"); !errors.Is(err, tbkerr.ErrProfile) {
		t.Fatalf("expected profile error on double delete, got %v", err)
	}
}

func TestListSortsAndSkipsInvalid(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")
	store := profile.NewStore(dir)
	for _, name := range []string{"zeta", "alpha"} {
		if err := store.Create(newTestProfile(t, name)); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write broken file: %v", err)
	}

	profiles, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Name != "alpha" || profiles[1].Name != "zeta" {
		t.Fatalf("expected sorted order, got %s then %s", profiles[0].Name, profiles[1].Name)
	}
}

func TestListEmptyDirMissing(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "never-created"))
	profiles, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("expected no profiles, got %d", len(profiles))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profiles"))
	original := newTestProfile(t, "portable")
	if err := store.Create(original); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "portable.profile.json")
	written, err := store.Export("portable", exportPath)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if written != exportPath {
		t.Fatalf("unexpected export path: %q", written)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if got := string(data); !strings.Contains(got, profile.SourceDirPlaceholder) {
		t.Fatalf("expected placeholder in export, got %s", got)
	}

	// Importing without a source must fail while the placeholder is present.
	other := profile.NewStore(filepath.Join(t.TempDir(), "profiles"))
	if _, err := other.Import(exportPath, ""); !errors.Is(err, tbkerr.ErrProfile) {
		t.Fatalf("expected placeholder error, got %v", err)
	}

	newSource := t.TempDir()
	imported, err := other.Import(exportPath, newSource)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.SourceDir != newSource {
		t.Fatalf("unexpected imported source: %q", imported.SourceDir)
	}
	if imported.Repo != original.Repo || imported.Name != original.Name {
		t.Fatalf("imported profile differs: %+v", imported)
	}
}

func TestImportMissingFile(t *testing.T) {
	store := profile.NewStore(t.TempDir())
	_, err := store.Import(filepath.Join(t.TempDir(), "absent.json"), "")
	if !errors.Is(err, tbkerr.ErrProfile) {
		t.Fatalf("expected profile error, got %v", err)
	}
}

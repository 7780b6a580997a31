package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := NewLog(path, true, nil)

	log.Record("backup", "dotfiles", StatusSuccess, map[string]any{"backup_id": "abc123", "file_count": 7})
	log.Record("verify", "dotfiles", StatusFailure, nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"operation":"backup"`) {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"backup_id":"abc123"`) {
		t.Fatalf("details missing from first line: %s", lines[0])
	}
	if strings.Contains(lines[1], "details") {
		t.Fatalf("empty details should be omitted: %s", lines[1])
	}
}

func TestRecordDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := NewLog(path, false, nil)
	log.Record("backup", "dotfiles", StatusSuccess, nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("disabled log should not create the file")
	}
}

func TestRecordUnwritablePathDoesNotPanic(t *testing.T) {
	log := NewLog(filepath.Join(string([]byte{0}), "audit.log"), true, nil)
	log.Record("backup", "dotfiles", StatusSuccess, nil)
}

func TestReadEntriesFiltersAndOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := NewLog(path, true, nil)
	log.Record("backup", "dotfiles", StatusSuccess, nil)
	log.Record("restore", "dotfiles", StatusSuccess, nil)
	log.Record("backup", "photos", StatusFailure, nil)
	log.Record("backup", "dotfiles", StatusFailure, nil)

	entries, err := log.ReadEntries(Filter{Operation: "backup", Profile: "dotfiles"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != StatusFailure || entries[1].Status != StatusSuccess {
		t.Fatal("entries should be newest first")
	}

	limited, err := log.ReadEntries(Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Operation != "backup" || limited[0].Profile != "dotfiles" {
		t.Fatalf("limit should keep the newest entry, got %+v", limited)
	}
}

func TestReadEntriesSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"timestamp":"2026-01-01T00:00:00Z","operation":"backup","profile":"a","status":"success"}
not json

{"timestamp":"2026-01-02T00:00:00Z","operation":"prune","profile":"a","status":"success"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	entries, err := NewLog(path, true, nil).ReadEntries(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 parseable entries, got %d", len(entries))
	}
}

func TestReadEntriesMissingFile(t *testing.T) {
	entries, err := NewLog(filepath.Join(t.TempDir(), "none.log"), true, nil).ReadEntries(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}

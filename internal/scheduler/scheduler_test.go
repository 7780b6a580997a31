package scheduler

import (
	"strings"
	"testing"
)

type fakeCrontab struct {
	content string
	found   bool
	writes  int
}

func (f *fakeCrontab) Read() (string, bool, error) { return f.content, f.found, nil }

func (f *fakeCrontab) Write(content string) error {
	f.content = content
	f.found = true
	f.writes++
	return nil
}

func testScheduler(t *testing.T, crontab *fakeCrontab) *Scheduler {
	t.Helper()
	s, err := New(Options{Crontab: crontab, BinPath: "/usr/local/bin/termbackup"})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEnableAddsMarkedBlock(t *testing.T) {
	crontab := &fakeCrontab{content: "0 1 * * * /usr/bin/other-job\n", found: true}
	s := testScheduler(t, crontab)

	if err := s.Enable("dotfiles", "0 3 * * *"); err != nil {
		t.Fatal(err)
	}

	want := "0 1 * * * /usr/bin/other-job\n" +
		"# TERMBACKUP_START:dotfiles\n" +
		"0 3 * * * /usr/local/bin/termbackup run dotfiles --scheduled\n" +
		"# TERMBACKUP_END:dotfiles\n"
	if crontab.content != want {
		t.Fatalf("crontab mismatch:\n%s", crontab.content)
	}
}

func TestEnableReplacesExistingBlock(t *testing.T) {
	crontab := &fakeCrontab{found: true}
	s := testScheduler(t, crontab)

	if err := s.Enable("dotfiles", "0 3 * * *"); err != nil {
		t.Fatal(err)
	}
	if err := s.Enable("dotfiles", "30 4 * * 1"); err != nil {
		t.Fatal(err)
	}

	if got := strings.Count(crontab.content, "# TERMBACKUP_START:dotfiles"); got != 1 {
		t.Fatalf("expected a single block, found %d", got)
	}
	if !strings.Contains(crontab.content, "30 4 * * 1 ") {
		t.Fatalf("new expression missing:\n%s", crontab.content)
	}
	if strings.Contains(crontab.content, "0 3 * * * ") {
		t.Fatalf("old expression should be gone:\n%s", crontab.content)
	}
}

func TestEnableLeavesOtherProfilesAlone(t *testing.T) {
	crontab := &fakeCrontab{found: true}
	s := testScheduler(t, crontab)

	if err := s.Enable("dotfiles", "0 3 * * *"); err != nil {
		t.Fatal(err)
	}
	if err := s.Enable("projects", "0 5 * * *"); err != nil {
		t.Fatal(err)
	}
	if err := s.Disable("dotfiles"); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(crontab.content, "dotfiles") {
		t.Fatalf("dotfiles block should be removed:\n%s", crontab.content)
	}
	if _, scheduled, err := s.Status("projects"); err != nil || !scheduled {
		t.Fatalf("projects should still be scheduled (err %v)", err)
	}
}

func TestEnableRejectsBadInput(t *testing.T) {
	s := testScheduler(t, &fakeCrontab{})

	if err := s.Enable("bad name; rm -rf /", "0 3 * * *"); err == nil {
		t.Fatal("expected invalid profile name error")
	}
	if err := s.Enable("dotfiles", ""); err == nil {
		t.Fatal("expected invalid cron expression error")
	}
	if err := s.Enable("dotfiles", "0 3 * * *\n* * * * * evil"); err == nil {
		t.Fatal("expected multi-line cron expression to be rejected")
	}
}

func TestDisableWithoutCrontab(t *testing.T) {
	crontab := &fakeCrontab{}
	s := testScheduler(t, crontab)

	if err := s.Disable("dotfiles"); err != nil {
		t.Fatal(err)
	}
	if crontab.writes != 0 {
		t.Fatal("no crontab should be written when none exists")
	}
}

func TestStatus(t *testing.T) {
	crontab := &fakeCrontab{found: true}
	s := testScheduler(t, crontab)

	if _, scheduled, err := s.Status("dotfiles"); err != nil || scheduled {
		t.Fatalf("unscheduled profile reported scheduled (err %v)", err)
	}

	if err := s.Enable("dotfiles", "0 3 * * *"); err != nil {
		t.Fatal(err)
	}
	entry, scheduled, err := s.Status("dotfiles")
	if err != nil {
		t.Fatal(err)
	}
	if !scheduled {
		t.Fatal("expected profile to be scheduled")
	}
	if entry != "0 3 * * * /usr/local/bin/termbackup run dotfiles --scheduled" {
		t.Fatalf("unexpected entry %q", entry)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/usr/local/bin/termbackup", "/usr/local/bin/termbackup"},
		{"dotfiles", "dotfiles"},
		{"/path with space/bin", "'/path with space/bin'"},
		{"it's", `'it'"'"'s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

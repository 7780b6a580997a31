// Package scheduler manages OS-level scheduled backups via the user crontab.
// Entries for a profile live between marker comments so they can be replaced
// or removed without touching the rest of the crontab.
package scheduler

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"termbackup/internal/audit"
	"termbackup/internal/tbkerr"
)

var profileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Crontab reads and writes the invoking user's crontab.
type Crontab interface {
	// Read returns the current crontab content. found is false when the
	// user has no crontab yet.
	Read() (content string, found bool, err error)
	Write(content string) error
}

type systemCrontab struct{}

func (systemCrontab) Read() (string, bool, error) {
	out, err := exec.Command("crontab", "-l").Output()
	if err != nil {
		// crontab -l exits nonzero when no crontab exists; treat any
		// failure as "none" the way the install path tolerates it.
		return "", false, nil
	}
	return string(out), true, nil
}

func (systemCrontab) Write(content string) error {
	cmd := exec.Command("crontab", "-")
	cmd.Stdin = strings.NewReader(content)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return tbkerr.New(tbkerr.KindConfig, "update crontab: %s", strings.TrimSpace(string(out))).
			WithHint("check that cron is installed and your user may use crontab")
	}
	return nil
}

// Scheduler installs and removes crontab entries for backup profiles.
type Scheduler struct {
	crontab Crontab
	binPath string
	audit   *audit.Log
}

// Options configures a Scheduler.
type Options struct {
	// Crontab overrides the system crontab, mainly for tests.
	Crontab Crontab
	// BinPath is the executable the cron line invokes. Defaults to the
	// current executable.
	BinPath string
	Audit   *audit.Log
}

// New builds a scheduler.
func New(opts Options) (*Scheduler, error) {
	if runtime.GOOS == "windows" {
		return nil, tbkerr.New(tbkerr.KindConfig, "scheduling is only supported via cron on Unix systems").
			WithHint("use Task Scheduler directly, or run 'termbackup daemon'")
	}
	crontab := opts.Crontab
	if crontab == nil {
		crontab = systemCrontab{}
	}
	binPath := opts.BinPath
	if binPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindConfig, err, "resolve executable path")
		}
		binPath = exe
	}
	return &Scheduler{crontab: crontab, binPath: binPath, audit: opts.Audit}, nil
}

func markerStart(profileName string) string { return "# TERMBACKUP_START:" + profileName }
func markerEnd(profileName string) string   { return "# TERMBACKUP_END:" + profileName }

func validateProfileName(profileName string) error {
	if !profileNamePattern.MatchString(profileName) {
		return tbkerr.New(tbkerr.KindProfile, "invalid profile name for scheduling: %q", profileName)
	}
	return nil
}

// Enable installs (or replaces) the crontab entry running the profile on
// cronExpr.
func (s *Scheduler) Enable(profileName, cronExpr string) error {
	if err := validateProfileName(profileName); err != nil {
		return err
	}
	cronExpr = strings.TrimSpace(cronExpr)
	if cronExpr == "" || strings.Contains(cronExpr, "\n") {
		return tbkerr.New(tbkerr.KindConfig, "invalid cron expression %q", cronExpr)
	}

	existing, _, err := s.crontab.Read()
	if err != nil {
		return err
	}
	lines := stripBlock(splitLines(existing), profileName)

	command := fmt.Sprintf("%s run %s --scheduled", shellQuote(s.binPath), shellQuote(profileName))
	lines = append(lines,
		markerStart(profileName),
		cronExpr+" "+command,
		markerEnd(profileName),
	)
	if err := s.crontab.Write(strings.Join(lines, "\n") + "\n"); err != nil {
		return err
	}
	s.record(profileName, "enable")
	return nil
}

// Disable removes the crontab entry for the profile. Removing an entry that
// does not exist is not an error.
func (s *Scheduler) Disable(profileName string) error {
	if err := validateProfileName(profileName); err != nil {
		return err
	}
	existing, found, err := s.crontab.Read()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	lines := stripBlock(splitLines(existing), profileName)
	if err := s.crontab.Write(strings.Join(lines, "\n") + "\n"); err != nil {
		return err
	}
	s.record(profileName, "disable")
	return nil
}

// Status returns the cron line(s) scheduled for the profile. scheduled is
// false when no entry exists.
func (s *Scheduler) Status(profileName string) (entry string, scheduled bool, err error) {
	if err := validateProfileName(profileName); err != nil {
		return "", false, err
	}
	existing, found, err := s.crontab.Read()
	if err != nil || !found {
		return "", false, err
	}

	var block []string
	inBlock := false
	for _, line := range splitLines(existing) {
		switch strings.TrimSpace(line) {
		case markerStart(profileName):
			inBlock = true
			continue
		case markerEnd(profileName):
			if inBlock {
				if len(block) == 0 {
					return "", false, nil
				}
				return strings.Join(block, "\n"), true, nil
			}
		}
		if inBlock {
			block = append(block, line)
		}
	}
	return "", false, nil
}

func (s *Scheduler) record(profileName, action string) {
	if s.audit != nil {
		s.audit.Record("schedule", profileName, audit.StatusSuccess, map[string]any{"action": action})
	}
}

// stripBlock removes the marker-delimited block for the profile, if present.
func stripBlock(lines []string, profileName string) []string {
	start, end := markerStart(profileName), markerEnd(profileName)
	kept := make([]string, 0, len(lines))
	skip := false
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case start:
			skip = true
			continue
		case end:
			skip = false
			continue
		}
		if !skip {
			kept = append(kept, line)
		}
	}
	return kept
}

func splitLines(content string) []string {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

var shellSafe = regexp.MustCompile(`^[a-zA-Z0-9_@%+=:,./-]+$`)

// shellQuote single-quotes a string for sh unless it is already safe.
func shellQuote(s string) string {
	if s != "" && shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

package profile

import (
	"encoding/json"
	"fmt"
	"regexp"

	"termbackup/internal/tbkerr"
)

// Mode selects how a backup run collects files.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// SourceDirPlaceholder replaces the source directory in exported profiles so
// they can be shared between machines.
const SourceDirPlaceholder = "<SET_SOURCE_DIR>"

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	repoPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)
)

// Profile describes one backup source and its destination repository.
type Profile struct {
	Name             string   `json:"name"`
	SourceDir        string   `json:"source_dir"`
	Repo             string   `json:"repo"`
	Excludes         []string `json:"excludes"`
	CompressionLevel int      `json:"compression_level"`
	MaxBackups       *int     `json:"max_backups"`
	RetentionDays    *int     `json:"retention_days"`
	BackupMode       Mode     `json:"backup_mode"`
	WebhookURL       string   `json:"webhook_url,omitempty"`
}

// Validate checks structural constraints on the profile record.
func (p *Profile) Validate() error {
	if !namePattern.MatchString(p.Name) {
		return tbkerr.New(tbkerr.KindProfile,
			"profile name %q must contain only alphanumeric characters, hyphens, and underscores", p.Name)
	}
	if !repoPattern.MatchString(p.Repo) {
		return tbkerr.New(tbkerr.KindProfile, "repository %q must be in 'user/repo' format", p.Repo)
	}
	if p.CompressionLevel < 0 || p.CompressionLevel > 9 {
		return tbkerr.New(tbkerr.KindProfile, "compression level %d out of range 0-9", p.CompressionLevel)
	}
	switch p.BackupMode {
	case ModeFull, ModeIncremental:
	case "":
		p.BackupMode = ModeFull
	default:
		return tbkerr.New(tbkerr.KindProfile, "backup mode %q must be 'full' or 'incremental'", p.BackupMode)
	}
	if p.MaxBackups != nil && *p.MaxBackups < 1 {
		return tbkerr.New(tbkerr.KindProfile, "max_backups must be at least 1")
	}
	if p.RetentionDays != nil && *p.RetentionDays < 1 {
		return tbkerr.New(tbkerr.KindProfile, "retention_days must be at least 1")
	}
	return nil
}

// UnmarshalJSON applies defaults for absent fields before validation.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	record := alias{CompressionLevel: 6, BackupMode: ModeFull}
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}
	*p = Profile(record)
	if p.Excludes == nil {
		p.Excludes = []string{}
	}
	return nil
}

// Package engine orchestrates backup runs: manifest, archive, upload, ledger
// update, retention pruning, and the surrounding bookkeeping.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"termbackup/internal/archive"
	"termbackup/internal/audit"
	"termbackup/internal/diff"
	"termbackup/internal/history"
	"termbackup/internal/ledger"
	"termbackup/internal/logging"
	"termbackup/internal/manifest"
	"termbackup/internal/profile"
	"termbackup/internal/rotation"
	"termbackup/internal/signing"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
	"termbackup/internal/webhooks"
)

// archiveVersion is the container version written for new backups.
const archiveVersion = 2

// API is the slice of the GitHub client the engine needs.
type API interface {
	UploadBlob(ctx context.Context, repo, filePath string) (string, error)
	DeleteBlob(ctx context.Context, repo, fileName string) error
	GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error)
	UpdateMetadata(ctx context.Context, repo, content, sha string) (string, error)
	DownloadManifest(ctx context.Context, repo, backupID string) ([]byte, bool, error)
	UploadManifest(ctx context.Context, repo, backupID, content string) error
}

// Runner executes backups for profiles.
type Runner struct {
	api      API
	ledger   *ledger.Store
	audit    *audit.Log
	notifier *webhooks.Notifier
	history  *history.Store
	keypair  signing.Keypair
	tempDir  string
	console  *ui.Console
	logger   *slog.Logger
}

// Options configures a Runner. History and Notifier may be nil; signing is
// used only when the keypair files exist.
type Options struct {
	API      API
	Audit    *audit.Log
	Notifier *webhooks.Notifier
	History  *history.Store
	Keypair  signing.Keypair
	TempDir  string
	Console  *ui.Console
	Logger   *slog.Logger
}

// NewRunner builds a backup runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	console := opts.Console
	if console == nil {
		console = ui.NewPlainConsole(os.Stdout)
	}
	return &Runner{
		api:      opts.API,
		ledger:   ledger.NewStore(opts.API),
		audit:    opts.Audit,
		notifier: opts.Notifier,
		history:  opts.History,
		keypair:  opts.Keypair,
		tempDir:  opts.TempDir,
		console:  console,
		logger:   logger,
	}
}

// Request describes one backup run.
type Request struct {
	Profile  *profile.Profile
	Password string
	DryRun   bool
	Trigger  string
}

// Result reports what a run did.
type Result struct {
	BackupID    string
	Filename    string
	FileCount   int
	TotalSize   int64
	ArchiveSize int64
	CommitSHA   string
	Signature   string
	Skipped     bool
	DryRun      bool
	PrunedIDs   []string
	Duration    time.Duration
}

// Run executes a backup. The archive is always staged in the temp directory
// and removed before returning, success or not. Every log line of the run
// carries the profile, repository, and a fresh run correlation id.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	ctx = logging.WithProfile(ctx, req.Profile.Name)
	ctx = logging.WithRepo(ctx, req.Profile.Repo)
	ctx = logging.WithRunID(ctx, uuid.NewString())
	log := logging.WithContext(ctx, r.logger)

	started := time.Now()
	result, err := r.run(ctx, req, log)
	if result == nil {
		result = &Result{}
	}
	result.Duration = time.Since(started)

	r.recordRun(ctx, req, result, started, err, log)
	if err != nil {
		log.Error("backup run failed", logging.Error(err), logging.Duration("duration", result.Duration))
		r.auditRecord("backup", req.Profile.Name, audit.StatusFailure, map[string]any{"error": err.Error()})
		return nil, err
	}
	if !result.DryRun && !result.Skipped {
		log.Info("backup run complete",
			logging.String(logging.FieldBackupID, shortID(result.BackupID)),
			logging.Int("files", result.FileCount),
			logging.Int64("archive_size", result.ArchiveSize),
			logging.Duration("duration", result.Duration))
		r.auditRecord("backup", req.Profile.Name, audit.StatusSuccess, map[string]any{
			"backup_id":    shortID(result.BackupID),
			"file_count":   result.FileCount,
			"archive_size": result.ArchiveSize,
		})
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, req Request, log *slog.Logger) (*Result, error) {
	p := req.Profile

	r.console.Step(1, 5, "Loading profile")
	r.console.KeyValue("Profile", p.Name)
	r.console.KeyValue("Source", p.SourceDir)
	r.console.KeyValue("Repository", p.Repo)

	info, err := os.Stat(p.SourceDir)
	if err != nil || !info.IsDir() {
		return nil, tbkerr.New(tbkerr.KindBackup, "source directory not found: %s", p.SourceDir).
			WithHint("update the profile with a valid source directory")
	}

	// Incremental runs chain off the latest ledger entry when its manifest
	// sidecar is available.
	var parentID string
	var previous *manifest.Manifest
	if p.BackupMode == profile.ModeIncremental {
		led, _, err := r.ledger.Load(ctx, p.Repo)
		if err != nil {
			return nil, err
		}
		if latest, ok := led.Latest(); ok {
			parentID = latest.ID
			if data, found, err := r.api.DownloadManifest(ctx, p.Repo, parentID); err == nil && found {
				previous, _ = manifest.Decode(data)
			}
		}
	}

	r.console.Step(2, 5, "Creating file manifest")
	m, err := manifest.Create(p.SourceDir, p.Excludes, p.BackupMode, parentID)
	if err != nil {
		return nil, err
	}

	if p.BackupMode == profile.ModeIncremental && previous != nil {
		changes := diff.Compute(m, previous)
		changed := append(append([]manifest.FileMetadata{}, changes.Added...), changes.Modified...)
		if len(changed) == 0 {
			r.console.Success("No changes detected, skipping backup")
			return &Result{Skipped: true, BackupID: m.BackupID}, nil
		}
		m.Files = changed
		r.console.Note("Incremental: %d added, %d modified, %d deleted",
			len(changes.Added), len(changes.Modified), len(changes.Deleted))
	}

	result := &Result{
		BackupID:  m.BackupID,
		FileCount: len(m.Files),
	}
	for _, f := range m.Files {
		result.TotalSize += f.Size
	}
	result.Filename = fmt.Sprintf("backup_%s.tbk", shortID(m.BackupID))

	r.console.KeyValue("Files", fmt.Sprintf("%d", result.FileCount))
	r.console.KeyValue("Total size", ui.Bytes(result.TotalSize))
	r.console.KeyValue("Backup ID", shortID(m.BackupID))

	if err := os.MkdirAll(r.tempDir, 0o700); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "create temp directory")
	}
	archivePath := filepath.Join(r.tempDir, result.Filename)
	defer os.Remove(archivePath)

	r.console.Step(3, 5, "Encrypting and packaging archive")
	if err := archive.Create(archivePath, p.SourceDir, m, req.Password, p.CompressionLevel); err != nil {
		return nil, err
	}
	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "stat archive")
	}
	result.ArchiveSize = archiveInfo.Size()

	if req.DryRun {
		r.console.Warning("Dry run complete, no upload performed")
		r.console.KeyValue("Archive size", ui.Bytes(result.ArchiveSize))
		result.DryRun = true
		return result, nil
	}

	r.console.Step(4, 5, "Uploading to GitHub")
	commitSHA, err := r.api.UploadBlob(ctx, p.Repo, archivePath)
	if err != nil {
		return nil, err
	}
	result.CommitSHA = commitSHA

	r.console.Step(5, 5, "Updating metadata ledger")
	if r.keypair.Exists() {
		sig, err := r.keypair.Sign(archivePath, req.Password)
		if err != nil {
			r.console.Warning("Signing skipped: %v", err)
			log.Warn("archive signing failed", logging.Error(err))
		} else {
			result.Signature = hex.EncodeToString(sig)
		}
	}

	archiveSHA, err := manifest.HashFile(archivePath)
	if err != nil {
		return nil, err
	}
	if err := r.ledger.AppendEntry(ctx, p.Repo, m, result.Filename, archiveSHA,
		result.ArchiveSize, commitSHA, archiveVersion, result.Signature); err != nil {
		return nil, err
	}

	if p.BackupMode == profile.ModeIncremental {
		encoded, err := m.Encode()
		if err != nil {
			return nil, err
		}
		if err := r.api.UploadManifest(ctx, p.Repo, m.BackupID, string(encoded)); err != nil {
			return nil, err
		}
	}

	if r.notifier != nil && p.WebhookURL != "" {
		r.notifier.Send(ctx, p.WebhookURL, "backup_complete", p.Name, map[string]any{
			"backup_id": shortID(m.BackupID),
			"files":     result.FileCount,
			"size":      ui.Bytes(result.ArchiveSize),
		})
	}

	r.console.Success("Backup complete: %s (%s)", shortID(m.BackupID), ui.Bytes(result.ArchiveSize))

	if p.MaxBackups != nil || p.RetentionDays != nil {
		result.PrunedIDs = r.prune(ctx, p)
	}
	return result, nil
}

// prune applies the profile's retention policy. Failures are reported and
// skipped; a prune must never undo a successful backup.
func (r *Runner) prune(ctx context.Context, p *profile.Profile) []string {
	ids, err := r.Prune(ctx, p, rotation.Policy{
		MaxBackups:    p.MaxBackups,
		RetentionDays: p.RetentionDays,
	})
	if err != nil {
		r.console.Warning("Retention check failed: %v", err)
		return nil
	}
	return ids
}

// Prune deletes the backups falling outside policy and returns their
// shortened ids. Individual deletions that fail are skipped with a warning.
func (r *Runner) Prune(ctx context.Context, p *profile.Profile, policy rotation.Policy) ([]string, error) {
	led, _, err := r.ledger.Load(ctx, p.Repo)
	if err != nil {
		return nil, err
	}
	toPrune := rotation.Prune(led.Backups, policy, time.Now())
	if len(toPrune) == 0 {
		return nil, nil
	}

	r.console.Note("Pruning %d old backup(s)", len(toPrune))
	var prunedIDs []string
	for _, entry := range toPrune {
		if err := r.api.DeleteBlob(ctx, p.Repo, entry.Filename); err != nil {
			r.console.Warning("Failed to prune %s: %v", entry.Filename, err)
			continue
		}
		if err := r.ledger.RemoveEntry(ctx, p.Repo, entry.ID); err != nil {
			r.console.Warning("Failed to remove %s from ledger: %v", shortID(entry.ID), err)
			continue
		}
		r.console.KeyValue("Removed", entry.Filename)
		prunedIDs = append(prunedIDs, shortID(entry.ID))
	}
	if len(prunedIDs) > 0 {
		r.auditRecord("prune", p.Name, audit.StatusSuccess, map[string]any{"pruned": prunedIDs})
	}
	return prunedIDs, nil
}

func (r *Runner) recordRun(ctx context.Context, req Request, result *Result, started time.Time, runErr error, log *slog.Logger) {
	if r.history == nil || result.DryRun {
		return
	}
	run := history.Run{
		Profile:     req.Profile.Name,
		Trigger:     req.Trigger,
		Status:      history.StatusSuccess,
		BackupID:    result.BackupID,
		FileCount:   result.FileCount,
		ArchiveSize: result.ArchiveSize,
		Duration:    result.Duration,
		StartedAt:   started,
	}
	if run.Trigger == "" {
		run.Trigger = history.TriggerCLI
	}
	if runErr != nil {
		run.Status = history.StatusFailure
		run.Error = runErr.Error()
	}
	if _, err := r.history.RecordRun(ctx, run); err != nil {
		log.Warn("could not record run history", logging.Error(err))
	}
}

func (r *Runner) auditRecord(operation, profileName, status string, details map[string]any) {
	if r.audit == nil {
		return
	}
	r.audit.Record(operation, profileName, status, details)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Package restore extracts backups, following incremental parent chains so
// the full base archive is laid down first and each incremental overlays it.
package restore

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"termbackup/internal/archive"
	"termbackup/internal/audit"
	"termbackup/internal/ledger"
	"termbackup/internal/manifest"
	"termbackup/internal/profile"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

// API is the slice of the GitHub client the restorer needs.
type API interface {
	GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error)
	DownloadBlob(ctx context.Context, repo, fileName, destPath string) error
}

// ConfirmFunc decides whether an existing file may be overwritten.
type ConfirmFunc func(relPath string) (bool, error)

// Restorer downloads and extracts backups.
type Restorer struct {
	api     API
	tempDir string
	console *ui.Console
	audit   *audit.Log
	confirm ConfirmFunc
}

// Options configures a Restorer. A nil Confirm refuses every overwrite, so
// interactive callers must supply one.
type Options struct {
	API     API
	TempDir string
	Console *ui.Console
	Audit   *audit.Log
	Confirm ConfirmFunc
}

// NewRestorer builds a restorer.
func NewRestorer(opts Options) *Restorer {
	console := opts.Console
	if console == nil {
		console = ui.NewPlainConsole(os.Stdout)
	}
	confirm := opts.Confirm
	if confirm == nil {
		confirm = func(string) (bool, error) { return false, nil }
	}
	return &Restorer{
		api:     opts.API,
		tempDir: opts.TempDir,
		console: console,
		audit:   opts.Audit,
		confirm: confirm,
	}
}

// Request describes one restore.
type Request struct {
	Profile  *profile.Profile
	BackupID string
	Password string
	DryRun   bool
	Force    bool
}

// Result reports what a restore did. Files is populated on dry runs with
// everything that would be written.
type Result struct {
	BackupID string
	Restored int
	Skipped  int
	DryRun   bool
	Files    []archive.Entry
}

// Run restores a backup into the profile's source directory.
func (r *Restorer) Run(ctx context.Context, req Request) (*Result, error) {
	result, err := r.run(ctx, req)
	if r.audit != nil {
		if err != nil {
			r.audit.Record("restore", req.Profile.Name, audit.StatusFailure, map[string]any{"error": err.Error()})
		} else if !result.DryRun {
			r.audit.Record("restore", req.Profile.Name, audit.StatusSuccess, map[string]any{
				"backup_id":      req.BackupID,
				"files_restored": result.Restored,
			})
		}
	}
	return result, err
}

func (r *Restorer) run(ctx context.Context, req Request) (*Result, error) {
	p := req.Profile

	r.console.Step(1, 4, "Locating backup")
	r.console.KeyValue("Backup ID", req.BackupID)

	content, _, found, err := r.api.GetMetadata(ctx, p.Repo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, tbkerr.New(tbkerr.KindRestore, "no backups found for profile '%s'", p.Name)
	}
	led, err := ledger.Parse(content)
	if err != nil {
		return nil, err
	}

	entry, ok := led.Find(req.BackupID)
	if !ok {
		return nil, tbkerr.New(tbkerr.KindRestore, "backup '%s' not found in ledger", req.BackupID).
			WithHint("run 'termbackup list' to see available backups")
	}
	r.console.KeyValue("Archive", entry.Filename)

	r.console.Step(2, 4, "Downloading archive")
	r.console.Step(3, 4, "Decrypting archive")
	payload, m, err := r.fetchPayload(ctx, p.Repo, entry.Filename, req.Password)
	if err != nil {
		return nil, err
	}

	// Oldest payload first so incrementals overlay the base.
	payloads := [][]byte{payload}
	if m.BackupMode == profile.ModeIncremental && m.ParentBackupID != "" {
		parents, err := r.collectParentChain(ctx, p.Repo, led, m.ParentBackupID, req.Password)
		if err != nil {
			return nil, err
		}
		payloads = append(parents, payloads...)
	}

	result := &Result{BackupID: req.BackupID}

	if req.DryRun {
		result.DryRun = true
		for _, payload := range payloads {
			entries, err := archive.Entries(payload)
			if err != nil {
				return nil, err
			}
			result.Files = append(result.Files, entries...)
		}
		r.console.Warning("Dry run, files that would be restored:")
		for _, f := range result.Files {
			r.console.KeyValue(f.Name, ui.Bytes(f.Size))
		}
		r.console.Note("Total: %d file(s)", len(result.Files))
		return result, nil
	}

	r.console.Step(4, 4, "Restoring files")
	for _, payload := range payloads {
		restored, skipped, err := r.extractPayload(payload, p.SourceDir, req.Force)
		if err != nil {
			return nil, err
		}
		result.Restored += restored
		result.Skipped += skipped
	}

	r.console.Success("Restored %d file(s), skipped %d", result.Restored, result.Skipped)
	r.console.KeyValue("Destination", p.SourceDir)
	return result, nil
}

// fetchPayload downloads one archive, decrypts it, and returns the tar
// payload plus its embedded manifest. The staged archive is always removed.
func (r *Restorer) fetchPayload(ctx context.Context, repo, fileName, password string) ([]byte, *manifest.Manifest, error) {
	if err := os.MkdirAll(r.tempDir, 0o700); err != nil {
		return nil, nil, tbkerr.Wrap(tbkerr.KindRestore, err, "create temp directory")
	}
	archivePath := filepath.Join(r.tempDir, fileName)
	defer os.Remove(archivePath)

	if err := r.api.DownloadBlob(ctx, repo, fileName, archivePath); err != nil {
		return nil, nil, err
	}
	hdr, err := archive.ReadHeader(archivePath)
	if err != nil {
		return nil, nil, err
	}
	payload, err := archive.ReadPayload(archivePath, password, hdr)
	if err != nil {
		return nil, nil, err
	}
	m, err := archive.ExtractManifest(payload)
	if err != nil {
		return nil, nil, err
	}
	return payload, m, nil
}

// collectParentChain walks parent IDs until it reaches a full backup,
// returning payloads oldest first. A missing parent truncates the chain
// with a warning rather than failing the restore.
func (r *Restorer) collectParentChain(ctx context.Context, repo string, led *ledger.Ledger, parentID, password string) ([][]byte, error) {
	var payloads [][]byte
	seen := map[string]bool{}

	currentID := parentID
	for currentID != "" && !seen[currentID] {
		seen[currentID] = true

		entry, ok := led.Find(currentID)
		if !ok {
			r.console.Warning("Parent backup %s not found, restoring partial chain", shortID(currentID))
			break
		}
		r.console.Note("Downloading parent archive %s", entry.Filename)

		payload, m, err := r.fetchPayload(ctx, repo, entry.Filename, password)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
		currentID = m.ParentBackupID
	}

	for i, j := 0, len(payloads)-1; i < j; i, j = i+1, j-1 {
		payloads[i], payloads[j] = payloads[j], payloads[i]
	}
	return payloads, nil
}

func (r *Restorer) extractPayload(tarBytes []byte, targetDir string, force bool) (restored, skipped int, err error) {
	tr := tar.NewReader(bytes.NewReader(tarBytes))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, skipped, tbkerr.Wrap(tbkerr.KindRestore, err, "read archive payload")
		}
		if hdr.Name == "manifest.json" || hdr.Typeflag == tar.TypeDir {
			continue
		}

		target, safe := archive.SafePath(hdr.Name, targetDir)
		if !safe {
			r.console.Warning("Skipped unsafe path: %s", hdr.Name)
			skipped++
			continue
		}

		if _, statErr := os.Lstat(target); statErr == nil && !force {
			overwrite, confirmErr := r.confirm(hdr.Name)
			if confirmErr != nil {
				return restored, skipped, confirmErr
			}
			if !overwrite {
				skipped++
				continue
			}
		}

		if err := writeFile(tr, target, hdr); err != nil {
			return restored, skipped, err
		}
		restored++
	}
	return restored, skipped, nil
}

func writeFile(tr *tar.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return tbkerr.Wrap(tbkerr.KindRestore, err, "create directory for %s", hdr.Name)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindRestore, err, "open %s", hdr.Name)
	}
	defer f.Close()
	if _, err := io.Copy(f, tr); err != nil {
		return tbkerr.Wrap(tbkerr.KindRestore, err, "write %s", hdr.Name)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

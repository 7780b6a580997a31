// Package rotatekey re-encrypts every stored backup under a new passphrase.
// Each archive is downloaded, decrypted with the old password (v1 and v2
// both supported), resealed as v2 with the new password, and re-uploaded;
// the ledger is rewritten to match.
package rotatekey

import (
	"context"
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

// API is the slice of the GitHub client key rotation needs.
type API interface {
	UploadBlob(ctx context.Context, repo, filePath string) (string, error)
	DownloadBlob(ctx context.Context, repo, fileName, destPath string) error
	DeleteBlob(ctx context.Context, repo, fileName string) error
	GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error)
	UpdateMetadata(ctx context.Context, repo, content, sha string) (string, error)
}

// Rotator performs key rotations.
type Rotator struct {
	api     API
	ledger  *ledger.Store
	audit   *audit.Log
	tempDir string
	console *ui.Console
	// compressionLevel is used when resealing payloads.
	compressionLevel int
}

// Options configures a Rotator.
type Options struct {
	API              API
	Audit            *audit.Log
	TempDir          string
	Console          *ui.Console
	CompressionLevel int
}

// NewRotator builds a key rotator.
func NewRotator(opts Options) *Rotator {
	console := opts.Console
	if console == nil {
		console = ui.NewPlainConsole(os.Stdout)
	}
	level := opts.CompressionLevel
	if level == 0 {
		level = 6
	}
	return &Rotator{
		api:              opts.API,
		ledger:           ledger.NewStore(opts.API),
		audit:            opts.Audit,
		tempDir:          opts.TempDir,
		console:          console,
		compressionLevel: level,
	}
}

// Result reports a rotation.
type Result struct {
	ReEncrypted int
	Total       int
}

// Run re-encrypts all backups for the profile. The run stops at the first
// archive that fails to decrypt or upload; everything rotated before that
// point stays rotated, with the ledger updated per archive.
func (r *Rotator) Run(ctx context.Context, p *profile.Profile, oldPassword, newPassword string) (*Result, error) {
	result, err := r.run(ctx, p, oldPassword, newPassword)
	if r.audit != nil {
		if err != nil {
			r.audit.Record("rotate-key", p.Name, audit.StatusFailure, map[string]any{"error": err.Error()})
		} else {
			r.audit.Record("rotate-key", p.Name, audit.StatusSuccess, map[string]any{
				"re_encrypted": result.ReEncrypted,
			})
		}
	}
	return result, err
}

func (r *Rotator) run(ctx context.Context, p *profile.Profile, oldPassword, newPassword string) (*Result, error) {
	led, _, err := r.ledger.Load(ctx, p.Repo)
	if err != nil {
		return nil, err
	}
	if len(led.Backups) == 0 {
		return nil, tbkerr.New(tbkerr.KindCrypto, "no backups to rotate")
	}

	r.console.KeyValue("Profile", p.Name)
	r.console.KeyValue("Repository", p.Repo)
	r.console.Note("Re-encrypting %d backup(s)", len(led.Backups))

	if err := os.MkdirAll(r.tempDir, 0o700); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "create temp directory")
	}

	result := &Result{Total: len(led.Backups)}
	for i := range led.Backups {
		entry := &led.Backups[i]
		r.console.Step(i+1, len(led.Backups), "Processing "+entry.Filename)

		if err := r.rotateOne(ctx, p.Repo, entry, oldPassword, newPassword); err != nil {
			return result, err
		}
		result.ReEncrypted++

		// Persist each rotation immediately so a later failure leaves the
		// ledger consistent with what is actually stored.
		reloaded, sha, err := r.ledger.Load(ctx, p.Repo)
		if err != nil {
			return result, err
		}
		if stored, ok := reloaded.Find(entry.ID); ok {
			*stored = *entry
		}
		if err := r.ledger.Save(ctx, p.Repo, reloaded, sha); err != nil {
			return result, err
		}
	}

	r.console.Success("Key rotation complete: %d backup(s) re-encrypted", result.ReEncrypted)
	return result, nil
}

// rotateOne downloads, reseals, and re-uploads a single archive, updating
// the entry in place with the new sha256 and archive version.
func (r *Rotator) rotateOne(ctx context.Context, repo string, entry *ledger.Entry, oldPassword, newPassword string) error {
	oldPath := filepath.Join(r.tempDir, entry.Filename)
	newPath := filepath.Join(r.tempDir, "rotated_"+entry.Filename)
	defer os.Remove(oldPath)
	defer os.Remove(newPath)

	if err := r.api.DownloadBlob(ctx, repo, entry.Filename, oldPath); err != nil {
		return err
	}
	hdr, err := archive.ReadHeader(oldPath)
	if err != nil {
		return err
	}
	payload, err := archive.ReadPayload(oldPath, oldPassword, hdr)
	if err != nil {
		return err
	}

	if err := archive.Seal(newPath, payload, newPassword, r.compressionLevel); err != nil {
		return err
	}

	// The new blob replaces the old under the same name so ledger filenames
	// stay stable.
	if err := os.Rename(newPath, oldPath); err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "stage rotated archive")
	}
	if err := r.api.DeleteBlob(ctx, repo, entry.Filename); err != nil {
		r.console.Warning("Could not delete old archive %s: %v", entry.Filename, err)
	}
	commitSHA, err := r.api.UploadBlob(ctx, repo, oldPath)
	if err != nil {
		return err
	}

	newSHA, err := manifest.HashFile(oldPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(oldPath)
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "stat rotated archive")
	}

	entry.SHA256 = newSHA
	entry.Size = info.Size()
	entry.CommitSHA = commitSHA
	entry.ArchiveVersion = 2
	// Signatures cover the old ciphertext and no longer apply.
	entry.Signature = ""
	entry.Verified = false
	entry.VerifiedAt = ""
	return nil
}

// Package verify checks a stored backup end to end: archive hash against
// the ledger, decryption, manifest consistency, and the optional Ed25519
// signature.
package verify

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"termbackup/internal/archive"
	"termbackup/internal/audit"
	"termbackup/internal/ledger"
	"termbackup/internal/manifest"
	"termbackup/internal/profile"
	"termbackup/internal/signing"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

// API is the slice of the GitHub client the verifier needs.
type API interface {
	GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error)
	UpdateMetadata(ctx context.Context, repo, content, sha string) (string, error)
	DownloadBlob(ctx context.Context, repo, fileName, destPath string) error
}

// Check is one verification step's outcome. Advisory checks are reported
// but carry no weight in the verdict.
type Check struct {
	Name     string
	Passed   bool
	Detail   string
	Advisory bool
}

// Result reports a full verification.
type Result struct {
	BackupID       string
	ArchiveVersion int
	Checks         []Check
}

// Passed reports whether every non-advisory check succeeded.
func (r *Result) Passed() bool {
	counted := 0
	for _, c := range r.Checks {
		if c.Advisory {
			continue
		}
		counted++
		if !c.Passed {
			return false
		}
	}
	return counted > 0
}

// Verifier runs integrity checks against stored backups.
type Verifier struct {
	api     API
	ledger  *ledger.Store
	audit   *audit.Log
	keypair signing.Keypair
	tempDir string
	console *ui.Console
}

// Options configures a Verifier.
type Options struct {
	API     API
	Audit   *audit.Log
	Keypair signing.Keypair
	TempDir string
	Console *ui.Console
}

// NewVerifier builds a verifier.
func NewVerifier(opts Options) *Verifier {
	console := opts.Console
	if console == nil {
		console = ui.NewPlainConsole(os.Stdout)
	}
	return &Verifier{
		api:     opts.API,
		ledger:  ledger.NewStore(opts.API),
		audit:   opts.Audit,
		keypair: opts.Keypair,
		tempDir: opts.TempDir,
		console: console,
	}
}

// Run verifies one backup. The checks stop at the first hard failure; the
// ledger update is advisory and never fails the verification.
func (v *Verifier) Run(ctx context.Context, p *profile.Profile, backupID, password string) (*Result, error) {
	result, failedCheck, err := v.run(ctx, p, backupID, password)
	if v.audit != nil {
		switch {
		case err != nil:
			v.audit.Record("verify", p.Name, audit.StatusFailure, map[string]any{"error": err.Error()})
		case failedCheck != "":
			v.audit.Record("verify", p.Name, audit.StatusFailure, map[string]any{"check": failedCheck})
		default:
			passed := 0
			for _, c := range result.Checks {
				if c.Passed {
					passed++
				}
			}
			v.audit.Record("verify", p.Name, audit.StatusSuccess, map[string]any{
				"backup_id":     backupID,
				"checks_passed": passed,
			})
		}
	}
	return result, err
}

func (v *Verifier) run(ctx context.Context, p *profile.Profile, backupID, password string) (*Result, string, error) {
	v.console.KeyValue("Profile", p.Name)
	v.console.KeyValue("Backup ID", backupID)

	content, _, found, err := v.api.GetMetadata(ctx, p.Repo)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", tbkerr.New(tbkerr.KindIntegrity, "no backups found for profile '%s'", p.Name)
	}
	led, err := ledger.Parse(content)
	if err != nil {
		return nil, "", err
	}
	entry, ok := led.Find(backupID)
	if !ok {
		return nil, "", tbkerr.New(tbkerr.KindIntegrity, "backup '%s' not found in ledger", backupID).
			WithHint("run 'termbackup list' to see available backups")
	}
	v.console.KeyValue("Archive", entry.Filename)

	if err := os.MkdirAll(v.tempDir, 0o700); err != nil {
		return nil, "", tbkerr.Wrap(tbkerr.KindIntegrity, err, "create temp directory")
	}
	archivePath := filepath.Join(v.tempDir, entry.Filename)
	defer os.Remove(archivePath)

	v.console.Note("Downloading archive")
	if err := v.api.DownloadBlob(ctx, p.Repo, entry.Filename, archivePath); err != nil {
		return nil, "", err
	}

	result := &Result{BackupID: entry.ID}

	v.console.Note("Verifying SHA-256 checksum")
	localSHA, err := manifest.HashFile(archivePath)
	if err != nil {
		return nil, "", err
	}
	if localSHA != entry.SHA256 {
		result.Checks = append(result.Checks, Check{Name: "SHA-256 Checksum", Passed: false, Detail: "mismatch, archive may be tampered"})
		return result, "sha256_mismatch", nil
	}
	result.Checks = append(result.Checks, Check{Name: "SHA-256 Checksum", Passed: true, Detail: "verified"})

	v.console.Note("Verifying encryption and decrypting")
	hdr, err := archive.ReadHeader(archivePath)
	if err != nil {
		result.Checks = append(result.Checks, Check{Name: "Encryption Integrity", Passed: false, Detail: err.Error()})
		return result, "decryption_failed", nil
	}
	result.ArchiveVersion = int(hdr.Version)
	payload, err := archive.ReadPayload(archivePath, password, hdr)
	if err != nil {
		result.Checks = append(result.Checks, Check{Name: "Encryption Integrity", Passed: false, Detail: err.Error()})
		return result, "decryption_failed", nil
	}
	result.Checks = append(result.Checks, Check{Name: "Encryption Integrity", Passed: true, Detail: "verified"})

	v.console.Note("Verifying manifest integrity")
	m, err := archive.ExtractManifest(payload)
	if err != nil {
		result.Checks = append(result.Checks, Check{Name: "Manifest Integrity", Passed: false, Detail: err.Error()})
		return result, "manifest_missing", nil
	}
	if check, failed := verifyManifest(m, entry.ID); failed {
		result.Checks = append(result.Checks, check)
		return result, "manifest_mismatch", nil
	} else {
		result.Checks = append(result.Checks, check)
	}

	if entry.Signature != "" && v.keypair.Exists() {
		v.console.Note("Verifying Ed25519 signature")
		check := v.verifySignature(archivePath, entry.Signature)
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			return result, "signature_invalid", nil
		}
	}

	v.console.Note("Updating ledger verification status")
	if err := v.ledger.MarkVerified(ctx, p.Repo, entry.ID); err != nil {
		result.Checks = append(result.Checks, Check{Name: "Ledger Update", Passed: false, Detail: "non-critical: could not update", Advisory: true})
	} else {
		result.Checks = append(result.Checks, Check{Name: "Ledger Update", Passed: true, Detail: "marked as verified", Advisory: true})
	}

	for _, c := range result.Checks {
		if c.Passed {
			v.console.Success("%s: %s", c.Name, c.Detail)
		} else {
			v.console.Failure("%s: %s", c.Name, c.Detail)
		}
	}
	return result, "", nil
}

// verifyManifest recomputes the backup ID for full backups. Incremental
// manifests carry only the changed files while their ID covers the full
// scan, so for those only the stored ID is compared against the ledger.
func verifyManifest(m *manifest.Manifest, ledgerID string) (Check, bool) {
	if m.BackupID != ledgerID {
		return Check{Name: "Manifest Integrity", Passed: false, Detail: "ID does not match ledger"}, true
	}
	if m.BackupMode == profile.ModeIncremental {
		return Check{Name: "Manifest Integrity", Passed: true, Detail: "verified (incremental)"}, false
	}
	recomputed, err := manifest.ComputeBackupID(m)
	if err != nil {
		return Check{Name: "Manifest Integrity", Passed: false, Detail: err.Error()}, true
	}
	if recomputed != m.BackupID {
		return Check{Name: "Manifest Integrity", Passed: false, Detail: "ID mismatch"}, true
	}
	return Check{Name: "Manifest Integrity", Passed: true, Detail: "verified"}, false
}

func (v *Verifier) verifySignature(archivePath, signatureHex string) Check {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return Check{Name: "Ed25519 Signature", Passed: false, Detail: "ledger signature is not valid hex"}
	}
	ok, err := v.keypair.Verify(archivePath, sig)
	if err != nil {
		return Check{Name: "Ed25519 Signature", Passed: false, Detail: fmt.Sprintf("verification failed: %v", err)}
	}
	if !ok {
		return Check{Name: "Ed25519 Signature", Passed: false, Detail: "signature does not match archive"}
	}
	return Check{Name: "Ed25519 Signature", Passed: true, Detail: "verified"}
}

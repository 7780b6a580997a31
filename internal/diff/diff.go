// Package diff compares two backup manifests file by file.
package diff

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"termbackup/internal/archive"
	"termbackup/internal/ledger"
	"termbackup/internal/manifest"
	"termbackup/internal/tbkerr"
)

// Changes classifies every file across two manifests. Added, Modified, and
// Unchanged carry metadata from the newer manifest; Deleted carries the
// older manifest's metadata. Each slice is sorted by relative path.
type Changes struct {
	Added     []manifest.FileMetadata
	Modified  []manifest.FileMetadata
	Deleted   []manifest.FileMetadata
	Unchanged []manifest.FileMetadata
}

// Total returns the number of files that differ between the two manifests.
func (c *Changes) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// Compute diffs the newer manifest against the older one. A file is
// modified when its SHA-256 digest changed.
func Compute(newer, older *manifest.Manifest) *Changes {
	current := newer.FilesByPath()
	previous := older.FilesByPath()

	changes := &Changes{}
	for _, path := range sortedKeys(current) {
		meta := current[path]
		prev, existed := previous[path]
		switch {
		case !existed:
			changes.Added = append(changes.Added, meta)
		case meta.SHA256 != prev.SHA256:
			changes.Modified = append(changes.Modified, meta)
		default:
			changes.Unchanged = append(changes.Unchanged, meta)
		}
	}
	for _, path := range sortedKeys(previous) {
		if _, exists := current[path]; !exists {
			changes.Deleted = append(changes.Deleted, previous[path])
		}
	}
	return changes
}

func sortedKeys(files map[string]manifest.FileMetadata) []string {
	keys := make([]string, 0, len(files))
	for path := range files {
		keys = append(keys, path)
	}
	sort.Strings(keys)
	return keys
}

// API is the slice of the GitHub client the differ needs.
type API interface {
	GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error)
	DownloadManifest(ctx context.Context, repo, backupID string) ([]byte, bool, error)
	DownloadBlob(ctx context.Context, repo, fileName, destPath string) error
}

// Service resolves backup IDs to manifests and diffs them.
type Service struct {
	api     API
	tempDir string
}

// NewService returns a differ that stages archive downloads in tempDir when
// a manifest sidecar is missing.
func NewService(api API, tempDir string) *Service {
	return &Service{api: api, tempDir: tempDir}
}

// DiffBackups compares two backups in the repository. Manifest sidecars are
// fetched directly when present; otherwise the full archive is downloaded
// and decrypted with the password to recover its embedded manifest.
func (s *Service) DiffBackups(ctx context.Context, repo, olderID, newerID, password string) (*Changes, error) {
	content, _, found, err := s.api.GetMetadata(ctx, repo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, tbkerr.New(tbkerr.KindGitHub, "no backups found in ledger")
	}
	led, err := ledger.Parse(content)
	if err != nil {
		return nil, err
	}

	older, err := s.fetchManifest(ctx, repo, led, olderID, password)
	if err != nil {
		return nil, err
	}
	newer, err := s.fetchManifest(ctx, repo, led, newerID, password)
	if err != nil {
		return nil, err
	}
	return Compute(newer, older), nil
}

func (s *Service) fetchManifest(ctx context.Context, repo string, led *ledger.Ledger, backupID, password string) (*manifest.Manifest, error) {
	data, found, err := s.api.DownloadManifest(ctx, repo, backupID)
	if err != nil {
		return nil, err
	}
	if found {
		return manifest.Decode(data)
	}

	// No sidecar for older backups; pull the archive and read the manifest
	// out of the payload.
	entry, ok := led.Find(backupID)
	if !ok {
		return nil, tbkerr.New(tbkerr.KindGitHub, "backup '%s' not found in ledger", backupID).
			WithHint("run 'termbackup list' to see available backups")
	}

	if err := os.MkdirAll(s.tempDir, 0o700); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "create temp directory")
	}
	archivePath := filepath.Join(s.tempDir, entry.Filename)
	defer os.Remove(archivePath)

	if err := s.api.DownloadBlob(ctx, repo, entry.Filename, archivePath); err != nil {
		return nil, err
	}
	hdr, err := archive.ReadHeader(archivePath)
	if err != nil {
		return nil, err
	}
	payload, err := archive.ReadPayload(archivePath, password, hdr)
	if err != nil {
		return nil, err
	}
	return archive.ExtractManifest(payload)
}

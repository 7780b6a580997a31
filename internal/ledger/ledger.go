// Package ledger manages metadata.json, the authoritative record of backups
// stored in a repository. Reads and writes go through the GitHub contents
// API using the blob SHA for optimistic concurrency.
package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"termbackup/internal/manifest"
	"termbackup/internal/tbkerr"
)

// ToolVersion is written into every ledger.
const ToolVersion = "6.0"

// Entry is one backup recorded in the ledger.
type Entry struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	SHA256         string `json:"sha256"`
	CommitSHA      string `json:"commit_sha"`
	Size           int64  `json:"size"`
	CreatedAt      string `json:"created_at"`
	FileCount      int    `json:"file_count"`
	Verified       bool   `json:"verified"`
	VerifiedAt     string `json:"verified_at,omitempty"`
	ArchiveVersion int    `json:"archive_version"`
	Signature      string `json:"signature,omitempty"`
}

// Ledger is the full metadata.json document.
type Ledger struct {
	ToolVersion string  `json:"tool_version"`
	Repository  string  `json:"repository"`
	CreatedAt   string  `json:"created_at"`
	Backups     []Entry `json:"backups"`
}

// UnmarshalJSON fills defaults for ledgers written by older tool versions.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	type alias Ledger
	record := alias{ToolVersion: "4.0"}
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	*l = Ledger(record)
	if l.Backups == nil {
		l.Backups = []Entry{}
	}
	return nil
}

// New returns an empty ledger for the repository.
func New(repo string) *Ledger {
	return &Ledger{
		ToolVersion: ToolVersion,
		Repository:  repo,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Backups:     []Entry{},
	}
}

// Parse decodes a ledger document.
func Parse(content string) (*Ledger, error) {
	var l Ledger
	if err := json.Unmarshal([]byte(content), &l); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindGitHub, err, "parse ledger")
	}
	return &l, nil
}

// Encode renders the ledger as indented JSON.
func (l *Ledger) Encode() (string, error) {
	data, err := json.MarshalIndent(l, "", "    ")
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindGitHub, err, "encode ledger")
	}
	return string(data), nil
}

// Find returns the first backup whose ID starts with the given prefix.
func (l *Ledger) Find(backupID string) (*Entry, bool) {
	for i := range l.Backups {
		if strings.HasPrefix(l.Backups[i].ID, backupID) {
			return &l.Backups[i], true
		}
	}
	return nil, false
}

// Latest returns the most recently created backup, or false when the ledger
// is empty.
func (l *Ledger) Latest() (*Entry, bool) {
	if len(l.Backups) == 0 {
		return nil, false
	}
	sorted := make([]Entry, len(l.Backups))
	copy(sorted, l.Backups)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt > sorted[j].CreatedAt })
	return &sorted[0], true
}

// Remove deletes the backup with the exact ID. It reports whether an entry
// was removed.
func (l *Ledger) Remove(backupID string) bool {
	filtered := l.Backups[:0]
	removed := false
	for _, b := range l.Backups {
		if b.ID == backupID {
			removed = true
			continue
		}
		filtered = append(filtered, b)
	}
	l.Backups = filtered
	return removed
}

// MarkVerified flags the first backup matching the ID prefix as verified.
func (l *Ledger) MarkVerified(backupID string) bool {
	entry, ok := l.Find(backupID)
	if !ok {
		return false
	}
	entry.Verified = true
	entry.VerifiedAt = time.Now().UTC().Format(time.RFC3339)
	return true
}

// MetadataAPI is the slice of the GitHub client the store needs.
type MetadataAPI interface {
	GetMetadata(ctx context.Context, repo string) (content string, sha string, found bool, err error)
	UpdateMetadata(ctx context.Context, repo, content, sha string) (string, error)
}

// Store reads and writes the ledger through the GitHub contents API.
type Store struct {
	api MetadataAPI
}

// NewStore binds a ledger store to a metadata API.
func NewStore(api MetadataAPI) *Store {
	return &Store{api: api}
}

// Load fetches the repository's ledger. A repository without metadata.json
// yields a fresh empty ledger and an empty SHA.
func (s *Store) Load(ctx context.Context, repo string) (*Ledger, string, error) {
	content, sha, found, err := s.api.GetMetadata(ctx, repo)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return New(repo), "", nil
	}
	l, err := Parse(content)
	if err != nil {
		return nil, "", err
	}
	if l.Repository == "" {
		l.Repository = repo
	}
	return l, sha, nil
}

// Save writes the ledger back using the SHA from the last Load.
func (s *Store) Save(ctx context.Context, repo string, l *Ledger, sha string) error {
	content, err := l.Encode()
	if err != nil {
		return err
	}
	_, err = s.api.UpdateMetadata(ctx, repo, content, sha)
	return err
}

// AppendEntry loads the ledger, appends a new backup entry built from the
// manifest and archive attributes, and saves it.
func (s *Store) AppendEntry(ctx context.Context, repo string, m *manifest.Manifest, filename, archiveSHA256 string, size int64, commitSHA string, archiveVersion int, signature string) error {
	l, sha, err := s.Load(ctx, repo)
	if err != nil {
		return err
	}

	l.Backups = append(l.Backups, Entry{
		ID:             m.BackupID,
		Filename:       filename,
		SHA256:         archiveSHA256,
		CommitSHA:      commitSHA,
		Size:           size,
		CreatedAt:      m.CreatedAt,
		FileCount:      len(m.Files),
		ArchiveVersion: archiveVersion,
		Signature:      signature,
	})

	return s.Save(ctx, repo, l, sha)
}

// RemoveEntry deletes a backup from the ledger by exact ID. Missing entries
// are a no-op.
func (s *Store) RemoveEntry(ctx context.Context, repo, backupID string) error {
	l, sha, err := s.Load(ctx, repo)
	if err != nil {
		return err
	}
	if !l.Remove(backupID) {
		return nil
	}
	return s.Save(ctx, repo, l, sha)
}

// MarkVerified flags a backup as verified by ID prefix. Missing entries are
// a no-op.
func (s *Store) MarkVerified(ctx context.Context, repo, backupID string) error {
	l, sha, err := s.Load(ctx, repo)
	if err != nil {
		return err
	}
	if !l.MarkVerified(backupID) {
		return nil
	}
	return s.Save(ctx, repo, l, sha)
}

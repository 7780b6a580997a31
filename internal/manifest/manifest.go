// Package manifest builds deterministic file manifests for backup archives.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"termbackup/internal/profile"
	"termbackup/internal/tbkerr"
)

// Version identifies the manifest schema.
const Version = "1.0"

// defaultExcludes are always appended to the profile's exclude patterns.
var defaultExcludes = []string{".git/", ".idea/", "__pycache__/", ".DS_Store"}

// FileMetadata records one backed-up file.
type FileMetadata struct {
	RelativePath string  `json:"relative_path"`
	Size         int64   `json:"size"`
	SHA256       string  `json:"sha256"`
	// Permissions holds only the permission bits. Manifests inside v1
	// archives stored the full mode word, so the raw values differ there
	// even for identical files; restore takes modes from the tar headers,
	// which only carry permission bits in both versions.
	Permissions  uint32  `json:"permissions"`
	ModifiedAt   float64 `json:"modified_at"`
}

// Manifest is the complete description of a backup's contents.
type Manifest struct {
	Version        string         `json:"version"`
	OSName         string         `json:"os_name"`
	RuntimeVersion string         `json:"runtime_version"`
	Architecture   string         `json:"architecture"`
	CreatedAt      string         `json:"created_at"`
	BackupMode     profile.Mode   `json:"backup_mode"`
	Files          []FileMetadata `json:"files"`
	ParentBackupID string         `json:"parent_backup_id,omitempty"`
	BackupID       string         `json:"backup_id,omitempty"`
}

// Create walks sourceDir, hashes every file not matched by an exclude
// pattern, and returns a manifest with a computed backup ID. Hashing runs in
// a bounded worker pool.
func Create(sourceDir string, excludes []string, mode profile.Mode, parentBackupID string) (*Manifest, error) {
	effective := append([]string{}, excludes...)
	effective = append(effective, defaultExcludes...)

	var paths []string
	err := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(sourceDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && Excluded(rel+"/", effective) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if Excluded(rel, effective) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "scan source directory")
	}
	sort.Strings(paths)

	files := make([]FileMetadata, len(paths))
	var g errgroup.Group
	g.SetLimit(workerCount())
	for i, rel := range paths {
		g.Go(func() error {
			meta, err := fileMetadata(sourceDir, rel)
			if err != nil {
				return err
			}
			files[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "hash source files")
	}

	m := &Manifest{
		Version:        Version,
		OSName:         runtime.GOOS,
		RuntimeVersion: runtime.Version(),
		Architecture:   runtime.GOARCH,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		BackupMode:     mode,
		Files:          files,
		ParentBackupID: parentBackupID,
	}

	id, err := ComputeBackupID(m)
	if err != nil {
		return nil, err
	}
	m.BackupID = id
	return m, nil
}

func workerCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

func fileMetadata(sourceDir, rel string) (FileMetadata, error) {
	path := filepath.Join(sourceDir, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, err
	}
	sum, err := HashFile(path)
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		RelativePath: rel,
		Size:         info.Size(),
		SHA256:       sum,
		Permissions:  uint32(info.Mode().Perm()),
		ModifiedAt:   float64(info.ModTime().UnixNano()) / 1e9,
	}, nil
}

// HashFile computes the SHA-256 hex digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Excluded reports whether the slash-separated relative path matches any of
// the gitignore-style patterns. Patterns with a trailing slash match
// directories at any depth; patterns without a slash match any path segment.
func Excluded(rel string, patterns []string) bool {
	rel = strings.TrimSuffix(rel, "/")
	segments := strings.Split(rel, "/")
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			for _, seg := range segments {
				if match(dir, seg) {
					return true
				}
			}
			continue
		}
		if strings.Contains(pattern, "/") {
			if match(pattern, rel) {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if match(pattern, seg) {
				return true
			}
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// ComputeBackupID returns the SHA-256 hex digest of the manifest's canonical
// JSON form with the backup_id field nulled out.
func ComputeBackupID(m *Manifest) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindBackup, err, "encode manifest")
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", tbkerr.Wrap(tbkerr.KindBackup, err, "canonicalize manifest")
	}
	generic["backup_id"] = nil
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindBackup, err, "canonicalize manifest")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Encode renders the manifest as indented JSON for storage inside archives
// and manifest sidecars.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "encode manifest")
	}
	return data, nil
}

// EncodeCanonical renders the manifest as canonical JSON: sorted keys,
// compact separators. This form is stored as manifest.json inside archives.
func (m *Manifest) EncodeCanonical() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "encode manifest")
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "canonicalize manifest")
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindBackup, err, "canonicalize manifest")
	}
	return canonical, nil
}

// Decode parses a manifest from JSON.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "parse manifest")
	}
	return &m, nil
}

// FilesByPath indexes the manifest's files by relative path.
func (m *Manifest) FilesByPath() map[string]FileMetadata {
	index := make(map[string]FileMetadata, len(m.Files))
	for _, f := range m.Files {
		index[f.RelativePath] = f
	}
	return index
}

package profile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"termbackup/internal/tbkerr"
)

// Store persists profiles as JSON files in a single directory, one file per
// profile named <name>.json.
type Store struct {
	dir string
}

// NewStore binds a store to the given profiles directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Create validates and writes a new profile. The profile's source directory
// must exist, and the profile name must not already be in use.
func (s *Store) Create(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	resolved, err := filepath.Abs(p.SourceDir)
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindProfile, err, "resolve source directory %q", p.SourceDir)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return tbkerr.New(tbkerr.KindProfile, "source directory does not exist: %s", p.SourceDir).
			WithHint("create the directory first or check the path for typos")
	}
	p.SourceDir = resolved

	if _, err := os.Stat(s.path(p.Name)); err == nil {
		return tbkerr.New(tbkerr.KindProfile, "profile %q already exists", p.Name).
			WithHint("delete it first with 'termbackup profile delete' or pick another name")
	}

	return s.write(p)
}

// Save writes a profile unconditionally, overwriting any existing record.
func (s *Store) Save(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.write(p)
}

func (s *Store) write(p *Profile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return tbkerr.Wrap(tbkerr.KindProfile, err, "create profiles directory")
	}
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindProfile, err, "encode profile %q", p.Name)
	}
	if err := os.WriteFile(s.path(p.Name), data, 0o600); err != nil {
		return tbkerr.Wrap(tbkerr.KindProfile, err, "write profile %q", p.Name)
	}
	return nil
}

// Get loads and validates one profile by name.
func (s *Store) Get(name string) (*Profile, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tbkerr.New(tbkerr.KindProfile, "profile %q not found", name).
				WithHint("list available profiles with 'termbackup profile list'")
		}
		return nil, tbkerr.Wrap(tbkerr.KindProfile, err, "read profile %q", name)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindProfile, err, "parse profile %q", name)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a profile by name.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return tbkerr.New(tbkerr.KindProfile, "profile %q not found", name)
	}
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindProfile, err, "delete profile %q", name)
	}
	return nil
}

// List returns all valid profiles sorted by name. Files that fail to parse or
// validate are skipped.
func (s *Store) List() ([]*Profile, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindProfile, err, "read profiles directory")
	}

	var profiles []*Profile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		p, err := s.Get(name)
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Export writes a portable copy of the profile to outputPath with the source
// directory replaced by a placeholder.
func (s *Store) Export(name, outputPath string) (string, error) {
	p, err := s.Get(name)
	if err != nil {
		return "", err
	}

	copy := *p
	copy.SourceDir = SourceDirPlaceholder

	if outputPath == "" {
		outputPath = name + ".profile.json"
	}
	data, err := json.MarshalIndent(&copy, "", "    ")
	if err != nil {
		return "", tbkerr.Wrap(tbkerr.KindProfile, err, "encode profile %q", name)
	}
	if err := os.WriteFile(outputPath, data, 0o600); err != nil {
		return "", tbkerr.Wrap(tbkerr.KindProfile, err, "write export file")
	}
	return outputPath, nil
}

// Import reads a profile JSON file and creates it in the store. sourceDir
// overrides the stored source directory; it is required when the file carries
// the export placeholder.
func (s *Store) Import(inputPath, sourceDir string) (*Profile, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tbkerr.New(tbkerr.KindProfile, "file not found: %s", inputPath)
		}
		return nil, tbkerr.Wrap(tbkerr.KindProfile, err, "read import file")
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindProfile, err, "invalid profile data")
	}

	if sourceDir != "" {
		resolved, err := filepath.Abs(sourceDir)
		if err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindProfile, err, "resolve source directory %q", sourceDir)
		}
		p.SourceDir = resolved
	} else if p.SourceDir == SourceDirPlaceholder {
		return nil, tbkerr.New(tbkerr.KindProfile, "source directory is a placeholder").
			WithHint("provide --source to set the directory for this machine")
	}

	if err := s.Create(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

package rotatekey

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"termbackup/internal/archive"
	"termbackup/internal/crypto"
	"termbackup/internal/ledger"
	"termbackup/internal/manifest"
	"termbackup/internal/profile"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

type fakeAPI struct {
	blobs    map[string][]byte
	metadata string
	sha      string
}

func (f *fakeAPI) UploadBlob(_ context.Context, _ string, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	f.blobs[filepath.Base(filePath)] = data
	return "commit-rotated", nil
}

func (f *fakeAPI) DownloadBlob(_ context.Context, _ string, fileName, destPath string) error {
	data, ok := f.blobs[fileName]
	if !ok {
		return tbkerr.New(tbkerr.KindGitHub, "blob %s not found", fileName)
	}
	return os.WriteFile(destPath, data, 0o600)
}

func (f *fakeAPI) DeleteBlob(_ context.Context, _ string, fileName string) error {
	delete(f.blobs, fileName)
	return nil
}

func (f *fakeAPI) GetMetadata(context.Context, string) (string, string, bool, error) {
	return f.metadata, f.sha, f.metadata != "", nil
}

func (f *fakeAPI) UpdateMetadata(_ context.Context, _ string, content, _ string) (string, error) {
	f.metadata = content
	f.sha = "sha-next"
	return f.sha, nil
}

func buildV2Archive(t *testing.T, password string) (string, *manifest.Manifest) {
	t.Helper()
	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Create(source, nil, profile.ModeFull, "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "backup.tbk")
	if err := archive.Create(path, source, m, password, 6); err != nil {
		t.Fatal(err)
	}
	return path, m
}

// buildV1Archive writes a legacy TBK1 container around an arbitrary gzip
// payload taken from a v2 archive built the normal way.
func buildV1Archive(t *testing.T, password string) ([]byte, *manifest.Manifest) {
	t.Helper()
	v2Path, m := buildV2Archive(t, password)
	hdr, err := archive.ReadHeader(v2Path)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := archive.ReadPayload(v2Path, password, hdr)
	if err != nil {
		t.Fatal(err)
	}

	compressed := gzipBytes(t, payload)
	salt, iv, ciphertext, mac, err := crypto.Encrypt(compressed, password)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.WriteString("TBK1")
	buf.WriteByte(1)
	binary.Write(&buf, binary.BigEndian, uint32(crypto.PBKDF2Iterations))
	buf.WriteByte(byte(len(salt)))
	buf.Write(salt)
	buf.WriteByte(byte(len(iv)))
	buf.Write(iv)
	binary.Write(&buf, binary.BigEndian, uint64(len(ciphertext)))
	buf.Write(ciphertext)
	buf.Write(mac)
	return buf.Bytes(), m
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sha256Hex(t *testing.T, data []byte) string {
	t.Helper()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func seedAPI(t *testing.T, archiveData []byte, m *manifest.Manifest) *fakeAPI {
	t.Helper()
	sum := sha256Hex(t, archiveData)
	led := ledger.New("alice/backups")
	led.Backups = []ledger.Entry{{
		ID:             m.BackupID,
		Filename:       "backup.tbk",
		SHA256:         sum,
		CreatedAt:      m.CreatedAt,
		ArchiveVersion: 1,
		Signature:      "deadbeef",
		Verified:       true,
		VerifiedAt:     m.CreatedAt,
	}}
	content, err := led.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return &fakeAPI{
		blobs:    map[string][]byte{"backup.tbk": archiveData},
		metadata: content,
		sha:      "sha-0",
	}
}

func testRotator(api *fakeAPI, tempDir string) *Rotator {
	return NewRotator(Options{
		API:     api,
		TempDir: tempDir,
		Console: ui.NewPlainConsole(&bytes.Buffer{}),
	})
}

func TestRunRotatesV2Archive(t *testing.T) {
	oldPassword, newPassword := "hunter2", "correct-horse"
	v2Path, m := buildV2Archive(t, oldPassword)
	data, err := os.ReadFile(v2Path)
	if err != nil {
		t.Fatal(err)
	}
	api := seedAPI(t, data, m)
	rotator := testRotator(api, t.TempDir())

	result, err := rotator.Run(context.Background(),
		&profile.Profile{Name: "dotfiles", Repo: "alice/backups"}, oldPassword, newPassword)
	if err != nil {
		t.Fatal(err)
	}
	if result.ReEncrypted != 1 || result.Total != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	assertRotated(t, api, m, newPassword, oldPassword)
}

func TestRunRotatesV1Archive(t *testing.T) {
	oldPassword, newPassword := "hunter2", "correct-horse"
	v1Data, m := buildV1Archive(t, oldPassword)
	api := seedAPI(t, v1Data, m)
	rotator := testRotator(api, t.TempDir())

	result, err := rotator.Run(context.Background(),
		&profile.Profile{Name: "dotfiles", Repo: "alice/backups"}, oldPassword, newPassword)
	if err != nil {
		t.Fatal(err)
	}
	if result.ReEncrypted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	assertRotated(t, api, m, newPassword, oldPassword)
}

// assertRotated checks the stored blob is now v2 under the new password and
// the ledger entry reflects the rotation.
func assertRotated(t *testing.T, api *fakeAPI, m *manifest.Manifest, newPassword, oldPassword string) {
	t.Helper()
	rotated, ok := api.blobs["backup.tbk"]
	if !ok {
		t.Fatal("rotated blob should keep the original filename")
	}

	staged := filepath.Join(t.TempDir(), "rotated.tbk")
	if err := os.WriteFile(staged, rotated, 0o600); err != nil {
		t.Fatal(err)
	}
	hdr, err := archive.ReadHeader(staged)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Version != 2 {
		t.Fatalf("rotated archive version = %d, want 2", hdr.Version)
	}
	payload, err := archive.ReadPayload(staged, newPassword, hdr)
	if err != nil {
		t.Fatalf("rotated archive should decrypt with the new password: %v", err)
	}
	got, err := archive.ExtractManifest(payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.BackupID != m.BackupID {
		t.Fatal("payload manifest should survive rotation")
	}
	if _, err := archive.ReadPayload(staged, oldPassword, hdr); !errors.Is(err, tbkerr.ErrCrypto) {
		t.Fatalf("old password should no longer decrypt, got %v", err)
	}

	led, err := ledger.Parse(api.metadata)
	if err != nil {
		t.Fatal(err)
	}
	entry := led.Backups[0]
	if entry.ArchiveVersion != 2 || entry.CommitSHA != "commit-rotated" {
		t.Fatalf("ledger entry not updated: %+v", entry)
	}
	if entry.SHA256 != sha256Hex(t, rotated) {
		t.Fatal("ledger sha256 should match the rotated blob")
	}
	if entry.Signature != "" || entry.Verified || entry.VerifiedAt != "" {
		t.Fatalf("stale signature and verification flags should be cleared: %+v", entry)
	}
}

func TestRunWrongOldPassword(t *testing.T) {
	v2Path, m := buildV2Archive(t, "hunter2")
	data, err := os.ReadFile(v2Path)
	if err != nil {
		t.Fatal(err)
	}
	api := seedAPI(t, data, m)
	rotator := testRotator(api, t.TempDir())

	_, err = rotator.Run(context.Background(),
		&profile.Profile{Name: "dotfiles", Repo: "alice/backups"}, "wrong", "new")
	if !errors.Is(err, tbkerr.ErrCrypto) {
		t.Fatalf("expected crypto error, got %v", err)
	}
	// The original blob must still be in place.
	if !bytes.Equal(api.blobs["backup.tbk"], data) {
		t.Fatal("failed rotation must not alter the stored blob")
	}
}

func TestRunEmptyLedger(t *testing.T) {
	led := ledger.New("alice/backups")
	content, err := led.Encode()
	if err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{blobs: map[string][]byte{}, metadata: content, sha: "sha-0"}
	rotator := testRotator(api, t.TempDir())

	if _, err := rotator.Run(context.Background(),
		&profile.Profile{Name: "dotfiles", Repo: "alice/backups"}, "old", "new"); err == nil {
		t.Fatal("expected error with no backups")
	}
}

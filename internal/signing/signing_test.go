package signing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"termbackup/internal/tbkerr"
)

func testKeypair(t *testing.T) Keypair {
	t.Helper()
	dir := t.TempDir()
	return Keypair{
		PrivatePath: filepath.Join(dir, "signing_key.sealed"),
		PublicPath:  filepath.Join(dir, "signing_key.pub"),
	}
}

func TestGenerateSignVerify(t *testing.T) {
	kp := testKeypair(t)
	if kp.Exists() {
		t.Fatal("keypair should not exist before Generate")
	}
	if err := kp.Generate("hunter2"); err != nil {
		t.Fatal(err)
	}
	if !kp.Exists() {
		t.Fatal("keypair should exist after Generate")
	}

	info, err := os.Stat(kp.PrivatePath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("private key permissions = %o, want 600", perm)
	}

	archive := filepath.Join(t.TempDir(), "backup.tbk")
	if err := os.WriteFile(archive, []byte("archive bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	sig, err := kp.Sign(archive, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("signature length = %d, want %d", len(sig), SignatureLength)
	}

	ok, err := kp.Verify(archive, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("signature should verify")
	}
}

func TestVerifyRejectsTamperedFile(t *testing.T) {
	kp := testKeypair(t)
	if err := kp.Generate("hunter2"); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "backup.tbk")
	if err := os.WriteFile(archive, []byte("original"), 0o600); err != nil {
		t.Fatal(err)
	}
	sig, err := kp.Sign(archive, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(archive, []byte("tampered"), 0o600); err != nil {
		t.Fatal(err)
	}
	ok, err := kp.Verify(archive, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("signature should not verify after tampering")
	}
}

func TestSignWrongPassword(t *testing.T) {
	kp := testKeypair(t)
	if err := kp.Generate("hunter2"); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "backup.tbk")
	if err := os.WriteFile(archive, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := kp.Sign(archive, "wrong"); !errors.Is(err, tbkerr.ErrCrypto) {
		t.Fatalf("expected crypto error, got %v", err)
	}
}

func TestGenerateRefusesOverwrite(t *testing.T) {
	kp := testKeypair(t)
	if err := kp.Generate("hunter2"); err != nil {
		t.Fatal(err)
	}
	if err := kp.Generate("hunter2"); err == nil {
		t.Fatal("expected error when keypair already exists")
	}
}

func TestSignMissingKey(t *testing.T) {
	kp := testKeypair(t)
	_, err := kp.Sign(filepath.Join(t.TempDir(), "backup.tbk"), "pw")
	if err == nil {
		t.Fatal("expected error without a keypair")
	}
	if tbkerr.HintOf(err) == "" {
		t.Fatal("missing key error should carry a hint")
	}
}

func TestUnsealRejectsCorruptedFile(t *testing.T) {
	kp := testKeypair(t)
	if err := os.WriteFile(kp.PrivatePath, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "backup.tbk")
	if err := os.WriteFile(archive, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := kp.Sign(archive, "pw"); !errors.Is(err, tbkerr.ErrCrypto) {
		t.Fatalf("expected crypto error, got %v", err)
	}
}

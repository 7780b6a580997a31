package tbkerr_test

import (
	"errors"
	"fmt"
	"testing"

	"termbackup/internal/tbkerr"
)

func TestKindMatching(t *testing.T) {
	err := tbkerr.New(tbkerr.KindCrypto, "decryption failed").WithHint("check your password")

	if !errors.Is(err, tbkerr.ErrCrypto) {
		t.Fatal("expected crypto kind match")
	}
	if errors.Is(err, tbkerr.ErrArchive) {
		t.Fatal("unexpected archive kind match")
	}
	if got := tbkerr.HintOf(err); got != "check your password" {
		t.Fatalf("unexpected hint: %q", got)
	}
}

func TestWrappedKindSurvivesFmtErrorf(t *testing.T) {
	inner := tbkerr.New(tbkerr.KindGitHub, "upload failed").WithStatus(403)
	outer := fmt.Errorf("run backup: %w", inner)

	if !errors.Is(outer, tbkerr.ErrGitHub) {
		t.Fatal("expected github kind through wrapping")
	}
	if got := tbkerr.StatusOf(outer); got != 403 {
		t.Fatalf("unexpected status: %d", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("tag mismatch")
	err := tbkerr.Wrap(tbkerr.KindCrypto, cause, "decrypt archive")

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
	if err.Error() != "decrypt archive: tag mismatch" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestHintOfPlainError(t *testing.T) {
	if got := tbkerr.HintOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty hint, got %q", got)
	}
}

package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"termbackup/internal/github"
)

func TestDetectTokenType(t *testing.T) {
	cases := []struct {
		token string
		want  github.TokenType
	}{
		{"ghp_abc123", github.TokenClassic},
		{"github_pat_abc123", github.TokenFineGrained},
		{"gho_abc123", github.TokenClassic},
		{"ghs_abc123", github.TokenClassic},
		{"ghu_abc123", github.TokenClassic},
		{strings.Repeat("a1", 20), github.TokenClassic},
		{"random-token", github.TokenUnknown},
		{"", github.TokenUnknown},
	}
	for _, tc := range cases {
		if got := github.DetectTokenType(tc.token); got != tc.want {
			t.Fatalf("DetectTokenType(%q) = %q, want %q", tc.token, got, tc.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	cases := []struct {
		token string
		want  string
	}{
		{"short", "****"},
		{"ghp_abcdefgh1234", "ghp_****1234"},
		{"github_pat_abcdefgh1234", "github_pat_****1234"},
		{"plainlongtoken99", "plai****en99"},
	}
	for _, tc := range cases {
		if got := github.MaskToken(tc.token); got != tc.want {
			t.Fatalf("MaskToken(%q) = %q, want %q", tc.token, got, tc.want)
		}
	}
}

func TestValidateClassicTokenWithRepoScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OAuth-Scopes", "repo, gist")
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Limit", "5000")
		json.NewEncoder(w).Encode(map[string]any{"login": "alice", "id": 42})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := github.NewValidator(srv.URL, nil)
	info := v.Validate(context.Background(), "ghp_valid")

	if info.Status != github.StatusValid {
		t.Fatalf("expected valid, got %q (%s)", info.Status, info.Message)
	}
	if info.Username != "alice" || info.UserID != 42 {
		t.Fatalf("unexpected user info: %+v", info)
	}
	if len(info.Scopes) != 2 || info.Scopes[0] != "repo" {
		t.Fatalf("unexpected scopes %v", info.Scopes)
	}
	if info.RateLimitRemaining != 4999 || info.RateLimitTotal != 5000 {
		t.Fatalf("unexpected rate limits: %+v", info)
	}
}

func TestValidateClassicTokenMissingScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OAuth-Scopes", "gist")
		json.NewEncoder(w).Encode(map[string]any{"login": "alice"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info := github.NewValidator(srv.URL, nil).Validate(context.Background(), "ghp_limited")
	if info.Status != github.StatusInsufficientScope {
		t.Fatalf("expected insufficient scope, got %q", info.Status)
	}
	if len(info.MissingScopes) != 1 || info.MissingScopes[0] != "repo" {
		t.Fatalf("unexpected missing scopes %v", info.MissingScopes)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"message": "Token expired"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info := github.NewValidator(srv.URL, nil).Validate(context.Background(), "ghp_old")
	if info.Status != github.StatusExpired {
		t.Fatalf("expected expired, got %q", info.Status)
	}
}

func TestValidateInvalidToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"message": "Bad credentials"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info := github.NewValidator(srv.URL, nil).Validate(context.Background(), "ghp_bad")
	if info.Status != github.StatusInvalid {
		t.Fatalf("expected invalid, got %q", info.Status)
	}
}

func TestValidateEmptyToken(t *testing.T) {
	info := github.NewValidator("http://unused.invalid", nil).Validate(context.Background(), "  ")
	if info.Status != github.StatusInvalid {
		t.Fatalf("expected invalid for empty token, got %q", info.Status)
	}
}

func TestValidateFineGrainedToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"login": "alice"})
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info := github.NewValidator(srv.URL, nil).Validate(context.Background(), "github_pat_fine")
	if info.Status != github.StatusValid {
		t.Fatalf("expected valid, got %q (%s)", info.Status, info.Message)
	}
	if info.TokenType != github.TokenFineGrained {
		t.Fatalf("unexpected token type %q", info.TokenType)
	}
}

func TestValidateForRepoReadOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OAuth-Scopes", "repo")
		json.NewEncoder(w).Encode(map[string]any{"login": "alice"})
	})
	mux.HandleFunc("/repos/alice/backups", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"permissions": map[string]any{"push": false},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info := github.NewValidator(srv.URL, nil).ValidateForRepo(context.Background(), "ghp_ro", "alice/backups")
	if info.Status != github.StatusInsufficientScope {
		t.Fatalf("expected insufficient scope for read-only access, got %q", info.Status)
	}
}

func TestValidateForRepoWithPush(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OAuth-Scopes", "repo")
		json.NewEncoder(w).Encode(map[string]any{"login": "alice"})
	})
	mux.HandleFunc("/repos/alice/backups", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"permissions": map[string]any{"push": true},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info := github.NewValidator(srv.URL, nil).ValidateForRepo(context.Background(), "ghp_rw", "alice/backups")
	if info.Status != github.StatusValid {
		t.Fatalf("expected valid, got %q (%s)", info.Status, info.Message)
	}
}

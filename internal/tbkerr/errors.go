package tbkerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a termbackup failure so callers can branch on the
// category without matching message text.
type Kind string

const (
	KindConfig    Kind = "config"
	KindProfile   Kind = "profile"
	KindCrypto    Kind = "crypto"
	KindArchive   Kind = "archive"
	KindGitHub    Kind = "github"
	KindToken     Kind = "token"
	KindRestore   Kind = "restore"
	KindBackup    Kind = "backup"
	KindIntegrity Kind = "integrity"
)

// Error is the structured error used across the tool. Every Error carries a
// Kind, an optional operator Hint that the CLI prints below the message, and
// for GitHub API failures the HTTP status code.
type Error struct {
	Kind       Kind
	Message    string
	Hint       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, &Error{Kind: KindCrypto}) works
// alongside the exported kind sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Kind == e.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrConfig    = &Error{Kind: KindConfig}
	ErrProfile   = &Error{Kind: KindProfile}
	ErrCrypto    = &Error{Kind: KindCrypto}
	ErrArchive   = &Error{Kind: KindArchive}
	ErrGitHub    = &Error{Kind: KindGitHub}
	ErrToken     = &Error{Kind: KindToken}
	ErrRestore   = &Error{Kind: KindRestore}
	ErrBackup    = &Error{Kind: KindBackup}
	ErrIntegrity = &Error{Kind: KindIntegrity}
)

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithHint returns a copy of the error carrying an operator hint.
func (e *Error) WithHint(hint string) *Error {
	clone := *e
	clone.Hint = strings.TrimSpace(hint)
	return &clone
}

// WithStatus returns a copy of the error carrying an HTTP status code.
func (e *Error) WithStatus(code int) *Error {
	clone := *e
	clone.StatusCode = code
	return &clone
}

// HintOf extracts the hint from err when it wraps an *Error.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// StatusOf extracts the HTTP status code from err when it wraps an *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

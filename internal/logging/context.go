package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldProfile is the standardized structured logging key for backup profile names.
	FieldProfile = "profile"
	// FieldRepo is the standardized structured logging key for GitHub repository slugs.
	FieldRepo = "repo"
	// FieldBackupID is the standardized structured logging key for backup identifiers.
	FieldBackupID = "backup_id"
	// FieldRunID is the standardized structured logging key for run correlation identifiers.
	FieldRunID = "run_id"
)

type contextKey int

const (
	profileContextKey contextKey = iota
	repoContextKey
	runIDContextKey
)

// WithProfile annotates the context with the active profile name.
func WithProfile(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, profileContextKey, name)
}

// ProfileFromContext extracts the active profile name, if any.
func ProfileFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(profileContextKey).(string)
	return name, ok && name != ""
}

// WithRepo annotates the context with the target repository slug.
func WithRepo(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, repoContextKey, repo)
}

// RepoFromContext extracts the target repository slug, if any.
func RepoFromContext(ctx context.Context) (string, bool) {
	repo, ok := ctx.Value(repoContextKey).(string)
	return repo, ok && repo != ""
}

// WithRunID annotates the context with a run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDContextKey, id)
}

// RunIDFromContext extracts the run correlation identifier, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDContextKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if name, ok := ProfileFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldProfile, name))
	}
	if repo, ok := RepoFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRepo, repo))
	}
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

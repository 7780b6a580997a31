// Package logging provides slog-based structured logging for termbackup.
//
// The console handler produces compact human-readable lines for interactive
// use; the JSON handler produces machine-readable output for daemon mode.
// Context helpers carry the active profile, repository, and run identifier so
// every subsystem logs with consistent correlation fields.
package logging

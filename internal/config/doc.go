// Package config loads, normalizes, and validates termbackup configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TERMBACKUP_GITHUB_TOKEN. The Config type centralizes every knob the CLI and
// daemon need, including the data directory layout (profiles, temp archives,
// audit log, signing keys, run history).
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

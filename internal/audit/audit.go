// Package audit keeps an append-only JSONL record of operations. Writes are
// advisory: an unwritable audit log logs a warning and never fails the
// operation it records.
package audit

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"termbackup/internal/logging"
)

// Statuses recorded for operations.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one audit log line.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Operation string         `json:"operation"`
	Profile   string         `json:"profile"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log appends JSONL entries to a file.
type Log struct {
	path    string
	enabled bool
	logger  *slog.Logger
}

// NewLog returns an audit log writing to path. A disabled log drops every
// entry silently.
func NewLog(path string, enabled bool, logger *slog.Logger) *Log {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Log{path: path, enabled: enabled, logger: logger}
}

// Record appends one entry. Operation is one of backup, restore, verify,
// prune, rotate-key, or schedule.
func (l *Log) Record(operation, profile, status string, details map[string]any) {
	if !l.enabled {
		return
	}
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Operation: operation,
		Profile:   profile,
		Status:    status,
		Details:   details,
	}
	if err := l.append(entry); err != nil {
		l.logger.Warn("could not write audit log", logging.Error(err))
	}
}

func (l *Log) append(entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Filter narrows ReadEntries results. Zero values match everything.
type Filter struct {
	Operation string
	Profile   string
	Limit     int
}

// ReadEntries returns the newest matching entries, most recent first.
// Unparseable lines are skipped. A missing log file yields no entries.
func (l *Log) ReadEntries(filter Filter) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if filter.Operation != "" && entry.Operation != filter.Operation {
			continue
		}
		if filter.Profile != "" && entry.Profile != filter.Profile {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

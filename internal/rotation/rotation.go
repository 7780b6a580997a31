// Package rotation decides which backups fall outside the retention policy.
package rotation

import (
	"sort"
	"time"

	"termbackup/internal/ledger"
)

// Policy holds the retention limits for a profile. A nil or non-positive
// limit disables that rule.
type Policy struct {
	MaxBackups    *int
	RetentionDays *int
}

// Prune returns the backups removed by the policy, newest first. The two
// rules are independent: MaxBackups keeps only the newest N entries, and
// RetentionDays removes everything created before the cutoff. A backup
// matched by either rule is pruned.
func Prune(backups []ledger.Entry, policy Policy, now time.Time) []ledger.Entry {
	if len(backups) == 0 {
		return nil
	}

	sorted := make([]ledger.Entry, len(backups))
	copy(sorted, backups)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt > sorted[j].CreatedAt })

	prune := make(map[string]bool)

	if policy.MaxBackups != nil && *policy.MaxBackups > 0 {
		for _, entry := range sorted[min(*policy.MaxBackups, len(sorted)):] {
			prune[entry.ID] = true
		}
	}

	if policy.RetentionDays != nil && *policy.RetentionDays > 0 {
		cutoff := now.UTC().Add(-time.Duration(*policy.RetentionDays) * 24 * time.Hour)
		for _, entry := range sorted {
			created, err := time.Parse(time.RFC3339, entry.CreatedAt)
			if err != nil {
				// Entries with unreadable timestamps are never pruned
				// automatically.
				continue
			}
			if created.Before(cutoff) {
				prune[entry.ID] = true
			}
		}
	}

	var pruned []ledger.Entry
	for _, entry := range sorted {
		if prune[entry.ID] {
			pruned = append(pruned, entry)
		}
	}
	return pruned
}

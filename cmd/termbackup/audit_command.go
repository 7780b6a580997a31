package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"termbackup/internal/audit"
	"termbackup/internal/ui"
)

func newAuditLogCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var operation string
	var profileName string

	cmd := &cobra.Command{
		Use:   "audit-log",
		Short: "Show recent entries from the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.auditLog()
			if err != nil {
				return err
			}
			entries, err := log.ReadEntries(audit.Filter{
				Operation: operation,
				Profile:   profileName,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				ctx.console.Note("No audit entries match.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					formatTimestamp(entry.Timestamp),
					entry.Operation,
					entry.Profile,
					entry.Status,
					formatAuditDetails(entry.Details),
				})
			}
			fmt.Fprintln(ctx.console.Writer(), ui.RenderTable(
				[]string{"Timestamp", "Operation", "Profile", "Status", "Details"},
				rows,
				[]ui.Alignment{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVarP(&operation, "operation", "o", "", "Filter by operation (backup, restore, verify, prune, rotate-key, schedule)")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Filter by profile name")
	return cmd
}

// formatAuditDetails flattens the details map into "key=value" pairs in a
// stable order, shortening backup IDs along the way.
func formatAuditDetails(details map[string]any) string {
	if len(details) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := fmt.Sprintf("%v", details[key])
		if key == "backup_id" {
			value = shortID(value)
		}
		parts = append(parts, key+"="+value)
	}
	return strings.Join(parts, " ")
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"termbackup/internal/ledger"
	"termbackup/internal/ui"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <profile>",
		Short: "List all backups for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.getProfile(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			ctx.console.Header("Backup Ledger")
			ctx.console.KeyValue("Profile", target.Name)
			ctx.console.KeyValue("Repository", target.Repo)

			content, _, found, err := client.GetMetadata(cmd.Context(), target.Repo)
			if err != nil {
				return err
			}
			if !found {
				printNoBackups(ctx.console, target.Name)
				return nil
			}
			led, err := ledger.Parse(content)
			if err != nil {
				return err
			}
			if len(led.Backups) == 0 {
				printNoBackups(ctx.console, target.Name)
				return nil
			}

			rows := make([][]string, 0, len(led.Backups))
			for _, entry := range led.Backups {
				status := "PENDING"
				if entry.Verified {
					status = "VERIFIED"
				}
				rows = append(rows, []string{
					shortID(entry.ID),
					entry.Filename,
					formatTimestamp(entry.CreatedAt),
					ui.Bytes(entry.Size),
					strconv.Itoa(entry.FileCount),
					status,
				})
			}
			fmt.Fprintln(ctx.console.Writer(), ui.RenderTable(
				[]string{"ID", "Filename", "Created", "Size", "Files", "Status"}, rows,
				[]ui.Alignment{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight, ui.AlignRight, ui.AlignLeft}))
			ctx.console.Note("Total: %d backup(s)", len(led.Backups))
			return nil
		},
	}
}

func printNoBackups(console *ui.Console, profileName string) {
	console.Note("No backups found for profile %q.", profileName)
	console.Hint(fmt.Sprintf("run 'termbackup run %s' to create your first backup", profileName))
}

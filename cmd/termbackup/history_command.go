package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"termbackup/internal/history"
	"termbackup/internal/ui"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var sinceDays int

	cmd := &cobra.Command{
		Use:   "history [profile]",
		Short: "Show recent backup runs recorded locally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryDBPath())
			if err != nil {
				return err
			}
			defer store.Close()

			profileName := ""
			if len(args) == 1 {
				profileName = args[0]
			}

			runs, err := store.Recent(cmd.Context(), profileName, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				ctx.console.Note("No runs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				backupID := "-"
				if run.BackupID != "" {
					backupID = shortID(run.BackupID)
				}
				rows = append(rows, []string{
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					run.Profile,
					run.Trigger,
					run.Status,
					backupID,
					strconv.Itoa(run.FileCount),
					ui.Bytes(run.ArchiveSize),
					formatDuration(run.Duration),
				})
			}
			fmt.Fprintln(ctx.console.Writer(), ui.RenderTable(
				[]string{"Started", "Profile", "Trigger", "Status", "Backup", "Files", "Size", "Duration"},
				rows,
				[]ui.Alignment{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight, ui.AlignRight, ui.AlignRight}))

			since := time.Now().AddDate(0, 0, -sinceDays)
			summary, err := store.Summarize(cmd.Context(), profileName, since)
			if err == nil && summary.Total > 0 {
				ctx.console.Note("Last %d day(s): %d run(s), %d succeeded, %d failed",
					sinceDays, summary.Total, summary.Successes, summary.Failures)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().IntVar(&sinceDays, "since-days", 7, "Window for the summary line")
	return cmd
}

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"termbackup/internal/diff"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

// formatTimestamp renders an RFC 3339 timestamp for table display. Values
// that fail to parse are shown as-is.
func formatTimestamp(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func formatDuration(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}

// renderDiff prints the changes between two backups grouped by kind.
func renderDiff(console *ui.Console, changes *diff.Changes) {
	rows := make([][]string, 0, changes.Total())
	for _, f := range changes.Added {
		rows = append(rows, []string{"added", f.RelativePath, ui.Bytes(f.Size)})
	}
	for _, f := range changes.Modified {
		rows = append(rows, []string{"modified", f.RelativePath, ui.Bytes(f.Size)})
	}
	for _, f := range changes.Deleted {
		rows = append(rows, []string{"deleted", f.RelativePath, ui.Bytes(f.Size)})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][1] < rows[j][1] })

	if len(rows) == 0 {
		console.Note("No differences: %d file(s) unchanged.", len(changes.Unchanged))
		return
	}
	fmt.Fprintln(console.Writer(), ui.RenderTable(
		[]string{"Change", "Path", "Size"}, rows,
		[]ui.Alignment{ui.AlignLeft, ui.AlignLeft, ui.AlignRight}))
	console.Note("%d added, %d modified, %d deleted, %d unchanged",
		len(changes.Added), len(changes.Modified), len(changes.Deleted), len(changes.Unchanged))
}

// requireConfirmedPassword prompts twice and fails on mismatch.
func requireConfirmedPassword(prompt string) (string, error) {
	password, err := ui.ReadPasswordConfirmed(prompt)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", tbkerr.New(tbkerr.KindCrypto, "password must not be empty")
	}
	return password, nil
}

// confirmPrompt asks a yes/no question on the command's stdin.
func confirmPrompt(cmd *cobra.Command, ctx *commandContext, question string) (bool, error) {
	return ui.Confirm(cmd.InOrStdin(), ctx.console.Writer(), question)
}

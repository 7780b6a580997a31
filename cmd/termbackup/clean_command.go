package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"termbackup/internal/ui"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover temporary files from interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tempDir := cfg.TempDir()
			entries, err := os.ReadDir(tempDir)
			if err != nil {
				if os.IsNotExist(err) {
					ctx.console.Note("Nothing to clean.")
					return nil
				}
				return err
			}
			if len(entries) == 0 {
				ctx.console.Note("Nothing to clean.")
				return nil
			}

			var total int64
			for _, entry := range entries {
				info, err := entry.Info()
				size := int64(0)
				if err == nil {
					size = info.Size()
				}
				total += size
				ctx.console.KeyValue(entry.Name(), ui.Bytes(size))
			}
			ctx.console.Note("%d file(s), %s total", len(entries), ui.Bytes(total))

			if !yes {
				ok, err := confirmPrompt(cmd, ctx, "Delete these files?")
				if err != nil {
					return err
				}
				if !ok {
					ctx.console.Note("Nothing deleted.")
					return nil
				}
			}

			removed := 0
			for _, entry := range entries {
				path := filepath.Join(tempDir, entry.Name())
				if err := os.RemoveAll(path); err != nil {
					ctx.console.Warning("could not remove %s: %v", entry.Name(), err)
					continue
				}
				removed++
			}
			ctx.console.Success("Removed %d file(s)", removed)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking for confirmation")
	return cmd
}

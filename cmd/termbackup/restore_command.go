package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/restore"
	"termbackup/internal/ui"
)

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var profileName string
	var dryRun bool
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore a backup to its original location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.getProfile(profileName)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			auditLog, err := ctx.auditLog()
			if err != nil {
				return err
			}

			password, err := ui.ReadPassword("Backup password: ")
			if err != nil {
				return err
			}

			restorer := restore.NewRestorer(restore.Options{
				API:     client,
				TempDir: cfg.TempDir(),
				Console: ctx.console,
				Audit:   auditLog,
				Confirm: func(relPath string) (bool, error) {
					return ui.Confirm(cmd.InOrStdin(), ctx.console.Writer(),
						"Overwrite "+relPath+"?")
				},
			})
			result, err := restorer.Run(cmd.Context(), restore.Request{
				Profile:  target,
				BackupID: args[0],
				Password: password,
				DryRun:   dryRun,
				Force:    force,
			})
			if err != nil {
				return err
			}
			if !result.DryRun {
				ctx.console.Success("Restored %d file(s), skipped %d.", result.Restored, result.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile to restore from")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List files without restoring")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files without asking")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/diff"
	"termbackup/internal/ui"
)

func newDiffCommand(ctx *commandContext) *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "diff <older-id> <newer-id>",
		Short: "Compare two backups and show file differences",
		Args:  cobra.ExactArgs(2),
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

			password, err := ui.ReadPassword("Backup password: ")
			if err != nil {
				return err
			}

			changes, err := diff.NewService(client, cfg.TempDir()).
				DiffBackups(cmd.Context(), target.Repo, args[0], args[1], password)
			if err != nil {
				return err
			}
			renderDiff(ctx.console, changes)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile to compare backups from")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

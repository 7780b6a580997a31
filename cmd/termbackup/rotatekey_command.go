package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/rotatekey"
	"termbackup/internal/ui"
)

func newRotateKeyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <profile>",
		Short: "Re-encrypt all backups with a new password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.getProfile(args[0])
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

			oldPassword, err := ui.ReadPassword("Current backup password: ")
			if err != nil {
				return err
			}
			newPassword, err := requireConfirmedPassword("New backup password: ")
			if err != nil {
				return err
			}

			rotator := rotatekey.NewRotator(rotatekey.Options{
				API:              client,
				Audit:            auditLog,
				TempDir:          cfg.TempDir(),
				Console:          ctx.console,
				CompressionLevel: target.CompressionLevel,
			})
			result, err := rotator.Run(cmd.Context(), target, oldPassword, newPassword)
			if err != nil {
				return err
			}
			ctx.console.Note("Re-encrypted %d of %d backup(s).", result.ReEncrypted, result.Total)
			return nil
		},
	}
}

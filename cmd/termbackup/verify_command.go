package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
	"termbackup/internal/verify"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "verify <backup-id>",
		Short: "Verify the integrity of a backup",
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
			keypair, err := ctx.keypair()
			if err != nil {
				return err
			}

			password, err := ui.ReadPassword("Backup password: ")
			if err != nil {
				return err
			}

			verifier := verify.NewVerifier(verify.Options{
				API:     client,
				Audit:   auditLog,
				Keypair: keypair,
				TempDir: cfg.TempDir(),
				Console: ctx.console,
			})
			result, err := verifier.Run(cmd.Context(), target, args[0], password)
			if err != nil {
				return err
			}
			if !result.Passed() {
				return tbkerr.New(tbkerr.KindIntegrity, "verification failed for backup %s", shortID(result.BackupID))
			}
			ctx.console.Success("Backup %s verified.", shortID(result.BackupID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile to verify from")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"
)

func newGenerateKeyCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate an Ed25519 signing keypair for backup signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keypair, err := ctx.keypair()
			if err != nil {
				return err
			}
			if keypair.Exists() && !force {
				ok, err := confirmPrompt(cmd, ctx, "A signing keypair already exists. Overwrite it?")
				if err != nil {
					return err
				}
				if !ok {
					ctx.console.Note("Keeping the existing keypair.")
					return nil
				}
			}

			password, err := requireConfirmedPassword("Key password: ")
			if err != nil {
				return err
			}
			if err := keypair.Generate(password); err != nil {
				return err
			}

			ctx.console.Success("Signing keypair generated")
			ctx.console.KeyValue("Private Key", keypair.PrivatePath)
			ctx.console.KeyValue("Public Key", keypair.PublicPath)
			ctx.console.Hint("future backups will be signed automatically; existing backups stay unsigned")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing keypair without asking")
	return cmd
}

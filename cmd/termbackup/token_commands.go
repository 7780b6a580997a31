package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"termbackup/internal/credentials"
	"termbackup/internal/github"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move the GitHub token from the config file into the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			token := strings.TrimSpace(cfg.GitHub.Token)
			if token == "" {
				ctx.console.Note("No token found in the config file; nothing to migrate.")
				return nil
			}

			validator, err := ctx.validator()
			if err != nil {
				return err
			}
			info := validator.Validate(cmd.Context(), token)
			if info.Status != github.StatusValid && info.Status != github.StatusNetworkError {
				return tbkerr.New(tbkerr.KindToken, "config file token is %s, refusing to migrate", info.Status).
					WithHint("run 'termbackup update-token' to store a fresh token")
			}

			if err := credentials.SaveToken(token); err != nil {
				return err
			}
			cfg.GitHub.Token = ""
			if err := cfg.Save(ctx.configPath); err != nil {
				return err
			}
			ctx.console.Success("Token moved to the OS keyring and removed from %s", ctx.configPath)
			return nil
		},
	}
}

func newUpdateTokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update-token",
		Short: "Store a new GitHub token in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			token, err := ui.ReadPassword("GitHub token: ")
			if err != nil {
				return err
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return tbkerr.New(tbkerr.KindToken, "token must not be empty")
			}

			validator, err := ctx.validator()
			if err != nil {
				return err
			}
			info := validator.Validate(cmd.Context(), token)
			switch info.Status {
			case github.StatusValid:
				ctx.console.Success("Token validated: %s token, user %s", info.TokenType, info.Username)
			case github.StatusNetworkError:
				ctx.console.Warning("Could not reach GitHub to validate the token; storing it anyway")
			default:
				return tbkerr.New(tbkerr.KindToken, "token rejected by GitHub: %s", info.Status)
			}

			if err := credentials.SaveToken(token); err != nil {
				return err
			}
			ctx.console.Success("Token stored in the OS keyring")
			return nil
		},
	}
}

func newTokenInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "token-info",
		Short: "Show details about the configured GitHub token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := ctx.token()
			if err != nil {
				return err
			}
			validator, err := ctx.validator()
			if err != nil {
				return err
			}
			info := validator.Validate(cmd.Context(), token)

			ctx.console.Header("Token Info")
			ctx.console.KeyValue("Token", github.MaskToken(token))
			ctx.console.KeyValue("Type", string(info.TokenType))
			ctx.console.KeyValue("Status", string(info.Status))
			if info.Username != "" {
				ctx.console.KeyValue("User", info.Username)
			}
			if len(info.Scopes) > 0 {
				ctx.console.KeyValue("Scopes", strings.Join(info.Scopes, ", "))
			}
			if len(info.MissingScopes) > 0 {
				ctx.console.KeyValue("Missing Scopes", strings.Join(info.MissingScopes, ", "))
			}
			if info.RateLimitTotal > 0 {
				ctx.console.KeyValue("Rate Limit", fmt.Sprintf("%d/%d remaining", info.RateLimitRemaining, info.RateLimitTotal))
				if info.RateLimitReset != "" {
					ctx.console.KeyValue("Rate Limit Reset", info.RateLimitReset)
				}
			}
			if info.Message != "" {
				ctx.console.KeyValue("Detail", info.Message)
			}
			if info.Status != github.StatusValid {
				return tbkerr.New(tbkerr.KindToken, "token is not usable: %s", info.Status)
			}
			return nil
		},
	}
}

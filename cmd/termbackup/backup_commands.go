package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/config"
	"termbackup/internal/credentials"
	"termbackup/internal/engine"
	"termbackup/internal/history"
	"termbackup/internal/logging"
	"termbackup/internal/rotation"
	"termbackup/internal/tbkerr"
	"termbackup/internal/webhooks"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			ctx.console.Success("Configuration written to %s", path)
			ctx.console.Hint("edit the file and set github.token and github.default_repo")
			return nil
		},
	}
}

// buildRunner wires an engine runner with the full ambient stack. The
// returned cleanup closes the history store.
func buildRunner(ctx *commandContext) (*engine.Runner, func(), error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := ctx.client()
	if err != nil {
		return nil, nil, err
	}
	auditLog, err := ctx.auditLog()
	if err != nil {
		return nil, nil, err
	}
	keypair, err := ctx.keypair()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	historyStore, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		// Run history is supplemental; a broken local DB must not block
		// backups.
		ctx.console.Warning("Run history unavailable: %v", err)
		historyStore = nil
	} else {
		cleanup = func() { historyStore.Close() }
	}

	runner := engine.NewRunner(engine.Options{
		API:      client,
		Audit:    auditLog,
		Notifier: webhooks.NewNotifier(logger),
		History:  historyStore,
		Keypair:  keypair,
		TempDir:  cfg.TempDir(),
		Console:  ctx.console,
		Logger:   logger,
	})
	return runner, cleanup, nil
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var scheduled bool

	cmd := &cobra.Command{
		Use:   "run <profile>",
		Short: "Run a backup for the given profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.getProfile(args[0])
			if err != nil {
				return err
			}

			var password string
			if scheduled {
				stored, found, err := credentials.ProfilePassword(target.Name)
				if err != nil {
					return err
				}
				if !found {
					return tbkerr.New(tbkerr.KindCrypto, "no stored password for scheduled run").
						WithHint("store one with 'termbackup schedule-enable' or 'termbackup daemon --store-password'")
				}
				password = stored
			} else {
				password, err = requireConfirmedPassword("Backup password: ")
				if err != nil {
					return err
				}
			}

			runner, cleanup, err := buildRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			trigger := history.TriggerCLI
			if scheduled {
				trigger = history.TriggerScheduled
			}
			result, err := runner.Run(cmd.Context(), engine.Request{
				Profile:  target,
				Password: password,
				DryRun:   dryRun,
				Trigger:  trigger,
			})
			if err != nil {
				return err
			}
			if !result.DryRun && !result.Skipped {
				ctx.console.Note("Backup completed in %s", formatDuration(result.Duration))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate without uploading")
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "Read the password from the OS keyring")
	_ = cmd.Flags().MarkHidden("scheduled")
	return cmd
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var maxBackups int
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "prune <profile>",
		Short: "Prune old backups based on a retention policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.getProfile(args[0])
			if err != nil {
				return err
			}

			// Flags override the profile's stored policy.
			policy := rotation.Policy{
				MaxBackups:    target.MaxBackups,
				RetentionDays: target.RetentionDays,
			}
			if maxBackups > 0 {
				policy.MaxBackups = &maxBackups
			}
			if retentionDays > 0 {
				policy.RetentionDays = &retentionDays
			}
			if policy.MaxBackups == nil && policy.RetentionDays == nil {
				return tbkerr.New(tbkerr.KindConfig, "no retention policy specified").
					WithHint("use --max-backups or --retention-days, or set a policy on the profile")
			}

			runner, cleanup, err := buildRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			pruned, err := runner.Prune(cmd.Context(), target, policy)
			if err != nil {
				return err
			}
			if len(pruned) == 0 {
				ctx.console.Success("Nothing to prune.")
				return nil
			}
			for _, id := range pruned {
				ctx.console.KeyValue("Pruned", shortID(id))
			}
			ctx.console.Success("Pruned %d backup(s).", len(pruned))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxBackups, "max-backups", 0, "Maximum number of backups to keep")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Maximum backup age in days")
	return cmd
}


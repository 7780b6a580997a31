package main

import (
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"termbackup/internal/credentials"
	"termbackup/internal/daemon"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var intervalMinutes int
	var storePassword bool

	cmd := &cobra.Command{
		Use:   "daemon <profile>",
		Short: "Run backups in a continuous loop",
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

			if storePassword {
				password, err := requireConfirmedPassword("Backup password (stored in keyring): ")
				if err != nil {
					return err
				}
				if err := credentials.SaveProfilePassword(target.Name, password); err != nil {
					return err
				}
				ctx.console.Success("Password stored in OS keyring.")
			}
			password, found, err := credentials.ProfilePassword(target.Name)
			if err != nil {
				return err
			}
			if !found {
				return tbkerr.New(tbkerr.KindCrypto, "no stored password for profile %q", target.Name).
					WithHint("store one with 'termbackup daemon --store-password' or 'termbackup schedule-enable'")
			}

			runner, cleanup, err := buildRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			interval := time.Duration(cfg.Daemon.IntervalMinutes) * time.Minute
			if intervalMinutes > 0 {
				interval = time.Duration(intervalMinutes) * time.Minute
			}
			d, err := daemon.New(daemon.Options{
				Profile:       target,
				Password:      password,
				Backuper:      runner,
				Console:       ctx.console,
				Interval:      interval,
				RetryInterval: time.Duration(cfg.Daemon.ErrorRetryMinutes) * time.Minute,
				LockPath:      cfg.LockPath(),
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := d.Run(runCtx)
			if err != nil {
				return err
			}
			renderDaemonSummary(ctx.console, summary)
			return nil
		},
	}

	cmd.Flags().IntVarP(&intervalMinutes, "interval", "i", 0, "Minutes between backups (overrides config)")
	cmd.Flags().BoolVar(&storePassword, "store-password", false, "Prompt for the password and store it in the keyring first")
	return cmd
}

func renderDaemonSummary(console *ui.Console, summary *daemon.Summary) {
	console.Header("Daemon Stopped")
	console.KeyValue("Uptime", summary.Uptime.Round(time.Second).String())
	console.KeyValue("Iterations", strconv.Itoa(summary.Iterations))
	console.KeyValue("Successes", strconv.Itoa(summary.Successes))
	console.KeyValue("Failures", strconv.Itoa(summary.Failures))
}

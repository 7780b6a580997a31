package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/credentials"
	"termbackup/internal/scheduler"
)

func newScheduleCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newScheduleEnableCommand(ctx),
		newScheduleDisableCommand(ctx),
		newScheduleStatusCommand(ctx),
	}
}

func buildScheduler(ctx *commandContext) (*scheduler.Scheduler, error) {
	log, err := ctx.auditLog()
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Options{Audit: log})
}

func newScheduleEnableCommand(ctx *commandContext) *cobra.Command {
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule-enable <profile>",
		Short: "Register a crontab entry that runs scheduled backups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.getProfile(args[0])
			if err != nil {
				return err
			}
			sched, err := buildScheduler(ctx)
			if err != nil {
				return err
			}

			if _, found, err := credentials.ProfilePassword(p.Name); err != nil {
				return err
			} else if !found {
				password, err := requireConfirmedPassword("Backup password for scheduled runs: ")
				if err != nil {
					return err
				}
				if err := credentials.SaveProfilePassword(p.Name, password); err != nil {
					return err
				}
				ctx.console.Note("Password stored in the OS keyring for scheduled runs.")
			}

			if err := sched.Enable(p.Name, cronExpr); err != nil {
				return err
			}
			ctx.console.Success("Scheduled backups enabled for %q (%s)", p.Name, cronExpr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cronExpr, "schedule", "s", "0 2 * * *", "Cron expression for the backup run")
	return cmd
}

func newScheduleDisableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule-disable <profile>",
		Short: "Remove the crontab entry for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			sched, err := buildScheduler(ctx)
			if err != nil {
				return err
			}
			if err := sched.Disable(args[0]); err != nil {
				return err
			}
			ctx.console.Success("Scheduled backups disabled for %q", args[0])
			return nil
		},
	}
}

func newScheduleStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule-status <profile>",
		Short: "Show whether a profile has a crontab entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			sched, err := buildScheduler(ctx)
			if err != nil {
				return err
			}
			entry, scheduled, err := sched.Status(args[0])
			if err != nil {
				return err
			}
			if !scheduled {
				ctx.console.Note("No schedule configured for %q.", args[0])
				return nil
			}
			ctx.console.Success("Scheduled backups are enabled for %q", args[0])
			ctx.console.Plain("%s", entry)
			return nil
		},
	}
}

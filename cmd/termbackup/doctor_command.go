package main

import (
	"github.com/spf13/cobra"

	"termbackup/internal/doctor"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run system health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The doctor reports configuration problems instead of failing
			// on them.
			cfg, err := ctx.ensureConfig()

			d := doctor.New(doctor.Options{
				Config:      cfg,
				ConfigPath:  ctx.configPath,
				ConfigFound: ctx.configFound,
				ConfigErr:   err,
				Console:     ctx.console,
				Version:     appVersion,
			})
			d.Render(d.Run(cmd.Context()))
			return nil
		},
	}
}

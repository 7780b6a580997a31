package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"termbackup/internal/profile"
	"termbackup/internal/ui"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage backup profiles",
	}
	cmd.AddCommand(
		newProfileCreateCommand(ctx),
		newProfileListCommand(ctx),
		newProfileShowCommand(ctx),
		newProfileDeleteCommand(ctx),
		newProfileExportCommand(ctx),
		newProfileImportCommand(ctx),
	)
	return cmd
}

func newProfileCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceDir        string
		repo             string
		excludes         []string
		compressionLevel int
		maxBackups       int
		retentionDays    int
		backupMode       string
		webhookURL       string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new backup profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.profiles()
			if err != nil {
				return err
			}

			if repo == "" {
				repo = cfg.GitHub.DefaultRepo
			}
			p := &profile.Profile{
				Name:             args[0],
				SourceDir:        sourceDir,
				Repo:             repo,
				Excludes:         excludes,
				CompressionLevel: compressionLevel,
				BackupMode:       profile.Mode(backupMode),
				WebhookURL:       webhookURL,
			}
			if cmd.Flags().Changed("max-backups") {
				p.MaxBackups = &maxBackups
			}
			if cmd.Flags().Changed("retention-days") {
				p.RetentionDays = &retentionDays
			}

			if err := store.Create(p); err != nil {
				return err
			}
			ctx.console.Success("Profile %q created", p.Name)
			renderProfile(ctx.console, p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "source-dir", "s", "", "Directory to back up")
	cmd.Flags().StringVarP(&repo, "repo", "r", "", "GitHub repository (owner/name), defaults to github.default_repo")
	cmd.Flags().StringSliceVarP(&excludes, "exclude", "e", nil, "Glob pattern to exclude (repeatable)")
	cmd.Flags().IntVar(&compressionLevel, "compression-level", 6, "Gzip compression level (0-9)")
	cmd.Flags().IntVar(&maxBackups, "max-backups", 0, "Keep at most this many backups")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Delete backups older than this many days")
	cmd.Flags().StringVar(&backupMode, "backup-mode", "full", "Backup mode: full or incremental")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Webhook to notify after each run")
	_ = cmd.MarkFlagRequired("source-dir")
	return cmd
}

func newProfileListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.profiles()
			if err != nil {
				return err
			}
			profiles, err := store.List()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				ctx.console.Note("No profiles configured.")
				ctx.console.Hint("create one with 'termbackup profile create <name> --source-dir <dir>'")
				return nil
			}

			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				rows = append(rows, []string{
					p.Name,
					p.SourceDir,
					p.Repo,
					string(p.BackupMode),
					describePolicy(p),
				})
			}
			fmt.Fprintln(ctx.console.Writer(), ui.RenderTable(
				[]string{"Name", "Source", "Repository", "Mode", "Rotation"},
				rows,
				[]ui.Alignment{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignLeft}))
			return nil
		},
	}
}

func newProfileShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one profile in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.getProfile(args[0])
			if err != nil {
				return err
			}
			ctx.console.Header("Profile: " + p.Name)
			renderProfile(ctx.console, p)
			return nil
		},
	}
}

func newProfileDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.profiles()
			if err != nil {
				return err
			}
			if _, err := store.Get(args[0]); err != nil {
				return err
			}
			if !yes {
				ok, err := confirmPrompt(cmd, ctx, fmt.Sprintf("Delete profile %q? Backups in GitHub are kept.", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					ctx.console.Note("Nothing deleted.")
					return nil
				}
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			ctx.console.Success("Profile %q deleted", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking for confirmation")
	return cmd
}

func newProfileExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export a profile to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.profiles()
			if err != nil {
				return err
			}
			path, err := store.Export(args[0], output)
			if err != nil {
				return err
			}
			ctx.console.Success("Profile exported to %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to <name>.json)")
	return cmd
}

func newProfileImportCommand(ctx *commandContext) *cobra.Command {
	var sourceDir string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a profile from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.profiles()
			if err != nil {
				return err
			}
			p, err := store.Import(args[0], sourceDir)
			if err != nil {
				return err
			}
			ctx.console.Success("Profile %q imported", p.Name)
			renderProfile(ctx.console, p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "source-dir", "s", "", "Override the source directory from the file")
	return cmd
}

func renderProfile(console *ui.Console, p *profile.Profile) {
	console.KeyValue("Source", p.SourceDir)
	console.KeyValue("Repository", p.Repo)
	console.KeyValue("Mode", string(p.BackupMode))
	console.KeyValue("Compression", strconv.Itoa(p.CompressionLevel))
	if len(p.Excludes) > 0 {
		console.KeyValue("Excludes", strings.Join(p.Excludes, ", "))
	}
	console.KeyValue("Rotation", describePolicy(p))
	if p.WebhookURL != "" {
		console.KeyValue("Webhook", p.WebhookURL)
	}
}

func describePolicy(p *profile.Profile) string {
	parts := make([]string, 0, 2)
	if p.MaxBackups != nil {
		parts = append(parts, fmt.Sprintf("keep %d", *p.MaxBackups))
	}
	if p.RetentionDays != nil {
		parts = append(parts, fmt.Sprintf("%d days", *p.RetentionDays))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

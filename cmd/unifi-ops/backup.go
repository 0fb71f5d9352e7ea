package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/unifi-ops/internal/backup"
	"github.com/yourusername/unifi-ops/internal/models"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage controller backup artifacts",
	}
	cmd.AddCommand(newBackupCreateCmd(a))
	cmd.AddCommand(newBackupListCmd(a))
	cmd.AddCommand(newBackupShowCmd(a))
	cmd.AddCommand(newBackupDownloadCmd(a))
	cmd.AddCommand(newBackupValidateCmd(a))
	cmd.AddCommand(newBackupDeleteCmd(a))
	cmd.AddCommand(newBackupPruneCmd(a))
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	var (
		backupType string
		retention  int
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Trigger a new backup and wait for the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := backup.TriggerOptions{
				Type:          models.BackupType(backupType),
				RetentionDays: retention,
				DryRun:        dryRun,
			}
			if !dryRun {
				if !confirm(fmt.Sprintf("Create %s backup for site %q?", backupType, a.site())) {
					return fmt.Errorf("aborted")
				}
				opts.Confirm = true
			}

			artifact, err := a.orchestrator().Trigger(ctxOf(cmd), a.site(), opts)
			if err != nil {
				return err
			}
			if emit(artifact) {
				return nil
			}
			if artifact.DryRun {
				fmt.Printf("Dry run: would create %s backup for site %q (retention %s)\n",
					artifact.Type, a.site(), retentionLabel(artifact.RetentionDays))
				return nil
			}
			fmt.Printf("Created %s (%s, %s backup)\n",
				artifact.Filename, sizeLabel(artifact.SizeBytes), artifact.Type)
			return nil
		},
	}
	cmd.Flags().StringVar(&backupType, "type", "network", "backup type: network or system")
	cmd.Flags().IntVar(&retention, "retention", 30, "retention in days, -1 for indefinite")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview without creating anything")
	return cmd
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup artifacts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			artifacts, err := reg.List(ctxOf(cmd), a.site())
			if err != nil {
				return err
			}
			if emit(artifacts) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILENAME\tTYPE\tSIZE\tCREATED\tRETENTION\tCLOUD")
			for _, art := range artifacts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
					art.Filename, art.Type, sizeLabel(art.SizeBytes),
					art.CreatedAt.Format(time.RFC3339),
					retentionLabel(art.RetentionDays), art.CloudSynced)
			}
			return w.Flush()
		},
	}
}

func newBackupShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <filename>",
		Short: "Show one artifact's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			art, err := reg.Details(ctxOf(cmd), a.site(), args[0])
			if err != nil {
				return err
			}
			if emit(art) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Filename:\t%s\n", art.Filename)
			fmt.Fprintf(w, "Type:\t%s\n", art.Type)
			fmt.Fprintf(w, "Size:\t%s\n", sizeLabel(art.SizeBytes))
			fmt.Fprintf(w, "Created:\t%s\n", art.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Retention:\t%s\n", retentionLabel(art.RetentionDays))
			fmt.Fprintf(w, "Cloud synced:\t%v\n", art.CloudSynced)
			if art.Checksum != "" {
				fmt.Fprintf(w, "Checksum:\t%s\n", art.Checksum)
			}
			return w.Flush()
		},
	}
}

func newBackupDownloadCmd(a *app) *cobra.Command {
	var (
		dest     string
		noVerify bool
	)
	cmd := &cobra.Command{
		Use:   "download <filename>",
		Short: "Download an artifact with checksum verification",
		Long: `Download streams a backup artifact to a destination: a local path,
an s3://bucket/prefix URL, or an sftp://user@host/path URL. The content
hash is verified against the controller's digest unless --no-verify is
given; a mismatched file is removed, never kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			res, err := reg.Download(ctxOf(cmd), a.site(), args[0], backup.DownloadOptions{
				Destination:    dest,
				VerifyChecksum: !noVerify,
			})
			if err != nil {
				return err
			}
			if emit(res) {
				return nil
			}
			fmt.Printf("Downloaded %s to %s (%s", res.Filename, res.OutputPath, sizeLabel(res.SizeBytes))
			if res.Verified {
				fmt.Printf(", checksum %s verified", shortChecksum(res.Checksum))
			}
			fmt.Println(")")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", ".", "destination path or URL")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip checksum verification")
	return cmd
}

func newBackupValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <filename>",
		Short: "Validate an artifact's integrity and compatibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			res, err := reg.Validate(ctxOf(cmd), a.site(), args[0])
			if err != nil {
				return err
			}
			if emit(res) {
				return nil
			}
			printValidation(res)
			if !res.IsValid {
				return fmt.Errorf("%s failed validation", res.Filename)
			}
			return nil
		},
	}
}

func newBackupDeleteCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a backup artifact from the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun && !confirm(fmt.Sprintf("Permanently delete %s from site %q?", args[0], a.site())) {
				return fmt.Errorf("aborted")
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}
			err = reg.Delete(ctxOf(cmd), a.site(), args[0], backup.DeleteOptions{
				Confirm: !dryRun,
				DryRun:  dryRun,
			})
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Printf("Dry run: would delete %s\n", args[0])
				return nil
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without deleting")
	return cmd
}

func newBackupPruneCmd(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old artifacts beyond a kept count",
		Long: `Prune deletes the oldest expirable backups so at most --keep remain.
Artifacts with indefinite retention are never pruned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1")
			}
			if !confirm(fmt.Sprintf("Prune backups for site %q down to %d?", a.site(), keep)) {
				return fmt.Errorf("aborted")
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}
			deleted, err := reg.EnforceRetention(ctxOf(cmd), a.site(), keep)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d artifact(s)\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "number of artifacts to retain")
	return cmd
}

func printValidation(res *models.ValidationResult) {
	status := "VALID"
	if !res.IsValid {
		status = "INVALID"
	}
	fmt.Printf("%s: %s\n", res.Filename, status)
	fmt.Printf("  checksum: %v  format: %v  version: %v\n",
		res.ChecksumOK, res.FormatOK, res.VersionCompatible)
	for _, warning := range res.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	for _, msg := range res.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}

func retentionLabel(days int) string {
	if days == models.RetentionIndefinite {
		return "indefinite"
	}
	return fmt.Sprintf("%dd", days)
}

func sizeLabel(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGT"[exp])
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/unifi-ops/internal/backup"
)

func newRestoreCmd(a *app) *cobra.Command {
	var (
		skipPreBackup bool
		dryRun        bool
	)
	cmd := &cobra.Command{
		Use:   "restore <filename>",
		Short: "Restore a site from a backup artifact",
		Long: `Restore validates the artifact, creates a pre-restore safety backup
(unless --skip-pre-backup), then applies the restore. The safety backup
is recorded before the restore starts, so a rollback point exists even
if the restore fails. One restore runs per site at a time.

With --dry-run the artifact is validated and the plan is reported, but
nothing on the controller changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun {
				warning := fmt.Sprintf("Restore site %q from %s? This overwrites the current configuration.", a.site(), args[0])
				if skipPreBackup {
					warning += " No safety backup will be taken."
				}
				if !confirm(warning) {
					return fmt.Errorf("aborted")
				}
			}

			restorer, err := a.restorer()
			if err != nil {
				return err
			}
			op, err := restorer.Restore(ctxOf(cmd), a.site(), args[0], backup.RestoreOptions{
				Confirm:                !dryRun,
				CreatePreRestoreBackup: !skipPreBackup,
				DryRun:                 dryRun,
			})
			if err != nil {
				if op != nil && op.CanRollback {
					fmt.Fprintf(os.Stderr, "Restore failed; pre-restore backup %s is available for rollback.\n", op.PreBackupFilename)
				}
				return err
			}
			if emit(op) {
				return nil
			}
			if op.DryRun {
				fmt.Printf("Dry run: %s is a valid restore target for site %q", op.TargetFilename, a.site())
				if op.PreBackupRequested {
					fmt.Print(" (a safety backup would be taken first)")
				}
				fmt.Println()
				return nil
			}
			fmt.Printf("Restore %s completed for site %q", op.ID, a.site())
			if op.PreBackupFilename != "" {
				fmt.Printf(" (pre-restore backup: %s)", op.PreBackupFilename)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPreBackup, "skip-pre-backup", false, "do not create a safety backup first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without restoring")
	cmd.AddCommand(newRestoreHistoryCmd(a))
	return cmd
}

func newRestoreHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past restore operations for the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			restorer, err := a.restorer()
			if err != nil {
				return err
			}
			ops, err := restorer.History(ctxOf(cmd), a.site(), limit)
			if err != nil {
				return err
			}
			if emit(ops) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTARGET\tSTATE\tSTARTED\tPRE-BACKUP\tROLLBACK")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
					op.ID, op.TargetFilename, op.State,
					op.StartedAt.Format(time.RFC3339),
					op.PreBackupFilename, op.CanRollback)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum operations to show")
	return cmd
}

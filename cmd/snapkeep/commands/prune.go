package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/retention"
)

var pruneBindings = map[string]string{
	config.KeyDestination:   "destination",
	config.KeyRetentionDays: "retention-days",
	config.KeyDryRun:        "dry-run",
}

func init() {
	f := pruneCmd.Flags()
	f.StringP("destination", "d", "", "directory that holds snapshots")
	f.StringP("retention-days", "r", "", "remove snapshots older than this many days (default 7)")
	f.BoolP("dry-run", "n", false, "list expired snapshots without removing them")
	rootCmd.AddCommand(pruneCmd)
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired snapshots without taking a new one",
	Long: `Apply the retention policy to the destination directory.

Only entries whose names start with backup_ are considered. An entry is
removed when its modification time is older than the retention period.`,
	Example: `  # Preview what a 14 day policy would remove
  snapkeep prune -d /backups -r 14 --dry-run

  See Also: snapkeep list, snapkeep run`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func runPrune(cmd *cobra.Command, _ []string) error {
	raw, err := loadConfig(cmd, pruneBindings)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if quiet {
		w = io.Discard
	}
	return runPruneWithWriter(cmd.Context(), *raw, time.Now(), w, retention.New())
}

// runPruneWithWriter allows injecting a writer, clock and sweeper for testing.
func runPruneWithWriter(ctx context.Context, raw config.Raw, now time.Time, w io.Writer, sw *retention.Sweeper) error {
	r, errs := config.ValidateRetention(raw)
	if len(errs) > 0 {
		return errors.NewConfigError(errors.NewValidationError(errs))
	}

	fi, err := os.Stat(r.Destination)
	if err != nil || !fi.IsDir() {
		return errors.NewUserError(errors.Newf("destination %s is not a directory", r.Destination),
			"Check the --destination path")
	}

	report, err := sw.Sweep(ctx, retention.Request{
		Dir:           r.Destination,
		RetentionDays: r.RetentionDays,
		DryRun:        r.DryRun,
		Now:           now,
	})
	if err != nil {
		return errors.NewSystemError(err, "Check that the destination is readable")
	}

	verb := "Removed"
	names := report.Removed
	if report.DryRun {
		verb = "Would remove"
		names = report.Eligible
	}
	fmt.Fprintf(w, "%s %d snapshot(s) older than %s\n", verb, len(names), report.Cutoff.Format(time.DateTime))
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}

	if err := report.Err(); err != nil {
		return errors.NewSystemError(err, "Check permissions on the snapshots listed above")
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/runner"
)

// runBindings maps viper keys to the flags shared by run and schedule.
var runBindings = map[string]string{
	config.KeySource:        "source",
	config.KeyDestination:   "destination",
	config.KeyMethod:        "method",
	config.KeyRetentionDays: "retention-days",
	config.KeyExcludeFile:   "exclude-file",
	config.KeyCompress:      "compress",
	config.KeyDryRun:        "dry-run",
	config.KeyMirrorEngine:  "mirror-engine",
	config.KeyMetricsFile:   "metrics-file",
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// addRunFlags defines the snapshot flags. Defaults live in viper, so the
// flags carry empty defaults and only override when set.
func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringP("source", "s", "", "directory to snapshot")
	f.StringP("destination", "d", "", "directory that holds snapshots")
	f.StringP("method", "m", "", "snapshot method: archive, mirror (default archive)")
	f.StringP("retention-days", "r", "", "remove snapshots older than this many days (default 7)")
	f.StringP("exclude-file", "e", "", "file of glob patterns to leave out")
	f.Bool("compress", true, "gzip archives (.tar.gz)")
	f.BoolP("dry-run", "n", false, "report what would happen without writing or removing anything")
	f.String("mirror-engine", "", "mirror engine: native, rsync (default native)")
	f.String("metrics-file", "", "write Prometheus textfile metrics to this path")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take a snapshot and apply the retention policy",
	Long: `Take one snapshot of the source directory and then remove snapshots in
the destination that are older than the retention period.

The archive method writes backup_<timestamp>.tar.gz (or .tar with
--compress=false). The mirror method copies the source into a
backup_<timestamp> directory.

Expired snapshots are only removed after the new snapshot succeeded. A
failure to remove one is reported as a warning and does not fail the run.

Exit codes:
  0 - Snapshot taken
  1 - Configuration invalid
  2 - Snapshot could not be made`,
	Example: `  # Archive with the defaults (gzip, 7 days)
  snapkeep run -s ~/docs -d /backups

  # Uncompressed archive, keep 30 days, skip temp files
  snapkeep run -s ~/docs -d /backups --compress=false -r 30 -e ~/.snapkeep-exclude

  # Preview a mirror run
  snapkeep run -s ~/docs -d /backups -m mirror -n

  See Also: snapkeep prune, snapkeep schedule`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	raw, err := loadConfig(cmd, runBindings)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if quiet {
		w = io.Discard
	}
	return executeRun(cmd.Context(), *raw, w)
}

// executeRun performs one run and prints its summary to w.
func executeRun(ctx context.Context, raw config.Raw, w io.Writer, opts ...runner.Option) error {
	out := runner.New(opts...).Run(ctx, raw)
	if out.Failed() {
		return out.ExitError()
	}
	printOutcome(w, out)
	return nil
}

func printOutcome(w io.Writer, o *runner.Outcome) {
	res := o.Result
	name := filepath.Base(res.Path)

	if res.DryRun {
		fmt.Fprintf(w, "Would create %s snapshot %s (%d entries)\n", res.Method, name, res.Entries)
	} else {
		fmt.Fprintf(w, "Created %s snapshot %s (%d entries, %s)\n",
			res.Method, name, res.Entries, humanize.IBytes(uint64(res.Size)))
	}
	if n := len(res.Excluded); n > 0 {
		fmt.Fprintf(w, "  excluded: %d\n", n)
	}
	if res.Engine != "" {
		fmt.Fprintf(w, "  engine:   %s (%d changes)\n", res.Engine, len(res.Actions))
	}

	switch {
	case o.SweepErr != nil:
		fmt.Fprintf(w, "Retention sweep failed: %v\n", o.SweepErr)
		if o.Sweep != nil && len(o.Sweep.Removed) > 0 {
			fmt.Fprintf(w, "  removed before failing: %d\n", len(o.Sweep.Removed))
		}
	case o.Sweep != nil && o.Sweep.DryRun:
		fmt.Fprintf(w, "Would remove %d expired snapshot(s)\n", len(o.Sweep.Eligible))
	case o.Sweep != nil:
		fmt.Fprintf(w, "Removed %d expired snapshot(s)\n", len(o.Sweep.Removed))
		for _, f := range o.Sweep.Failures {
			fmt.Fprintf(w, "  warning: %v\n", f)
		}
	}
}

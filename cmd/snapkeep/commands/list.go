package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/retention"
)

var listJSON bool

var listBindings = map[string]string{
	config.KeyDestination:   "destination",
	config.KeyRetentionDays: "retention-days",
}

func init() {
	f := listCmd.Flags()
	f.StringP("destination", "d", "", "directory that holds snapshots")
	f.StringP("retention-days", "r", "", "retention period used to flag expired snapshots (default 7)")
	f.BoolVar(&listJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots in the destination",
	Long: `List the snapshots found in the destination directory with their kind,
creation time, size, and whether the retention policy would remove them.`,
	Example: `  snapkeep list -d /backups
  snapkeep list --json

  See Also: snapkeep prune`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// listEntry is the JSON form of one snapshot.
type listEntry struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Taken    *time.Time `json:"taken,omitempty"`
	Modified time.Time  `json:"modified"`
	Size     int64      `json:"size"`
	Expired  bool       `json:"expired"`
}

func runList(cmd *cobra.Command, _ []string) error {
	raw, err := loadConfig(cmd, listBindings)
	if err != nil {
		return err
	}
	return runListWithWriter(*raw, time.Now(), cmd.OutOrStdout())
}

// runListWithWriter allows injecting a writer and clock for testing.
func runListWithWriter(raw config.Raw, now time.Time, w io.Writer) error {
	r, errs := config.ValidateRetention(raw)
	if len(errs) > 0 {
		return errors.NewConfigError(errors.NewValidationError(errs))
	}

	if fi, err := os.Stat(r.Destination); err != nil || !fi.IsDir() {
		return errors.NewUserError(errors.Newf("destination %s is not a directory", r.Destination),
			"Check the --destination path")
	}

	entries, err := retention.Scan(r.Destination)
	if err != nil {
		return errors.NewSystemError(err, "Check that the destination is readable")
	}

	cutoff := retention.Request{RetentionDays: r.RetentionDays, Now: now}.Cutoff()
	out := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		le := listEntry{
			Name:     e.Name,
			Kind:     "unknown",
			Modified: e.ModTime,
			Expired:  e.ModTime.Before(cutoff),
		}
		if e.Info != nil {
			le.Kind = e.Info.Method.String()
			taken := e.Info.Taken
			le.Taken = &taken
		}
		if n, err := e.Size(); err == nil {
			le.Size = n
		}
		out = append(out, le)
	}

	if listJSON {
		return outputListJSON(w, out)
	}
	return outputListText(w, out)
}

func outputListJSON(w io.Writer, entries []listEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return errors.Wrap(err, "encoding JSON")
	}
	return nil
}

func outputListText(w io.Writer, entries []listEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tMODIFIED\tSIZE\tSTATUS")
	for _, e := range entries {
		status := "kept"
		if e.Expired {
			status = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Kind, humanize.Time(e.Modified), humanize.IBytes(uint64(e.Size)), status)
	}
	return errors.Wrap(tw.Flush(), "writing table")
}

package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	buildinfo "github.com/thoreinstein/snapkeep/cmd"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version, commit, build date and Go runtime of snapkeep.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		runVersionWithWriter(cmd.OutOrStdout())
	},
}

func runVersionWithWriter(w io.Writer) {
	fmt.Fprintf(w, "snapkeep version %s\n", buildinfo.Version)
	fmt.Fprintf(w, "  commit:  %s\n", buildinfo.Commit)
	fmt.Fprintf(w, "  built:   %s\n", buildinfo.Date)
	fmt.Fprintf(w, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

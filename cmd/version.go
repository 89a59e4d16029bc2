// Package cmd holds build metadata for snapkeep binaries. Release builds set
// it with -ldflags "-X github.com/thoreinstein/snapkeep/cmd.Version=v1.2.3".
package cmd

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

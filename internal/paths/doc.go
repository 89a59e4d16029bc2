// Package paths resolves snapkeep's own file locations and normalizes
// user-supplied paths.
//
// # XDG Base Directory Compliance
//
// Default locations come from github.com/adrg/xdg:
//
//	paths.ConfigFile()     // ~/.config/snapkeep/config.yaml
//	paths.DefaultLogFile() // ~/.local/state/snapkeep/snapkeep.log
//
// # User Paths
//
// [Absolute] expands a leading "~" and makes paths absolute so the rest of
// the program only ever sees absolute source and destination paths.
package paths

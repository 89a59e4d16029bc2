// Package main is the entry point for the snapkeep CLI.
package main

import (
	"fmt"
	"os"

	"github.com/thoreinstein/snapkeep/cmd/snapkeep/commands"
	"github.com/thoreinstein/snapkeep/internal/errors"
)

func main() {
	err := commands.Execute()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var exitErr *errors.ExitError
	if errors.As(err, &exitErr) && exitErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", exitErr.Suggestion)
	}
	os.Exit(errors.ExitCode(err))
}

package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	buildinfo "github.com/thoreinstein/snapkeep/cmd"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/paths"
)

var (
	genDocDir    string
	genDocFormat string
)

var genDocCmd = &cobra.Command{
	Use:    "gen-doc",
	Short:  "Generate reference documentation for the CLI",
	Long:   `Write one Markdown page or man page per command into --dir.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runGenDocWithWriter(cmd.Root(), genDocDir, genDocFormat, cmd.OutOrStdout())
	},
}

func init() {
	genDocCmd.Flags().StringVarP(&genDocDir, "dir", "d", "", "output directory for documentation")
	genDocCmd.Flags().StringVar(&genDocFormat, "format", "markdown", "output format: markdown or man")
	rootCmd.AddCommand(genDocCmd)
}

func runGenDocWithWriter(root *cobra.Command, dir, format string, w io.Writer) error {
	if dir == "" {
		return errors.NewUserError(errors.New("output directory is required"), "Pass --dir <path>")
	}
	if err := paths.EnsureDir(dir, paths.DefaultDirPerm); err != nil {
		return errors.NewSystemError(errors.Wrap(err, "creating output directory"), "")
	}

	// keep regenerated pages diffable
	root.DisableAutoGenTag = true

	switch format {
	case "markdown", "md":
		if err := doc.GenMarkdownTreeCustom(root, dir, filePrepender, linkHandler); err != nil {
			return errors.NewSystemError(errors.Wrap(err, "generating markdown"), "")
		}
	case "man":
		header := &doc.GenManHeader{
			Title:   strings.ToUpper(root.Name()),
			Section: "1",
			Source:  root.Name() + " " + buildinfo.Version,
			Manual:  "snapkeep manual",
		}
		if err := doc.GenManTree(root, header, dir); err != nil {
			return errors.NewSystemError(errors.Wrap(err, "generating man pages"), "")
		}
	default:
		return errors.NewUserError(errors.Newf("unknown doc format %q", format), "Use --format markdown or --format man")
	}

	fmt.Fprintf(w, "Documentation generated in %s\n", dir)
	return nil
}

// filePrepender adds Doks front matter; snapkeep_config_show.md gets the
// title "snapkeep config show".
func filePrepender(filename string) string {
	name := filepath.Base(filename)
	title := strings.ReplaceAll(strings.TrimSuffix(name, filepath.Ext(name)), "_", " ")

	return fmt.Sprintf(`---
title: "%s"
description: "Reference for %s command"
draft: false
toc: true
---
`, title, title)
}

func linkHandler(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return "/docs/reference/" + strings.ToLower(base) + "/"
}

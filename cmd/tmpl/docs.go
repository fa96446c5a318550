package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

//go:embed docs/templating.md
var templatingDoc string

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Show the templating reference",
	Long:  `Render the built-in templating reference: configuration keys, path expressions and template functions.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			fmt.Fprint(cmd.OutOrStdout(), templatingDoc)
			return
		}
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			fmt.Fprint(cmd.OutOrStdout(), templatingDoc)
			return
		}
		rendered, err := renderer.Render(templatingDoc)
		if err != nil {
			fmt.Fprint(cmd.OutOrStdout(), templatingDoc)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), rendered)
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
}

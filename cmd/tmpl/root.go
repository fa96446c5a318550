package main

import (
	"fmt"
	"os"

	"github.com/arthur-debert/tmpl/internal/version"
	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/core"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/ui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagOutput       string
	flagBaseDir      string
	flagWorkDir      string
	flagDryRun       bool
	flagDelete       bool
	flagExclude      []string
	flagStdin        bool
	flagNoColor      bool
	flagLogFile      string
	flagLogLevel     string
	flagLogMode      string
	flagRsyncPath    string
	flagBlockStart   string
	flagBlockEnd     string
	flagVarStart     string
	flagVarEnd       string
	flagCommentStart string
	flagCommentEnd   string
	flagTrimBlocks   bool

	rootCmd = &cobra.Command{
		Use:   "tmpl [template-configuration]",
		Short: "A host-aware configuration file generator",
		Long: `tmpl renders a set of template files described by a YAML configuration
document into an output directory, reconciling the result against what
is already there. The configuration argument is either a document path
or a directory searched for a document matching this host's name; it
defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(cmd)
			if err != nil {
				return err
			}
			if err := logging.Setup(opts.LogLevel, opts.LogFile, opts.LogMode); err != nil {
				return err
			}
			log.Debug().Str("command", cmd.Name()).Msg("Command started")

			confPath := "."
			if len(args) == 1 {
				confPath = args[0]
			}

			if opts.Stdin {
				return core.RenderStdin(confPath, opts, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			printer := ui.New(opts.Color, false)
			if err := core.Generate(confPath, opts, printer); err != nil {
				printer.Error("%v", err)
				return err
			}
			return nil
		},
	}
)

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// resolveOptions layers the three option sources: defaults, TMPL_*
// environment variables, then any flag the user set explicitly.
func resolveOptions(cmd *cobra.Command) (config.Options, error) {
	opts, err := config.LoadOptionsFromEnv()
	if err != nil {
		return opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		opts.Output = flagOutput
	}
	if flags.Changed("base-dir") {
		opts.BaseDir = flagBaseDir
	}
	if flags.Changed("working-dir") {
		opts.WorkDir = flagWorkDir
	}
	if flags.Changed("dry-run") {
		opts.DryRun = flagDryRun
	}
	if flags.Changed("delete") {
		opts.Delete = flagDelete
	}
	if flags.Changed("exclude") {
		opts.Exclude = flagExclude
	}
	if flags.Changed("stdin") {
		opts.Stdin = flagStdin
	}
	if flags.Changed("no-color") {
		opts.Color = !flagNoColor
	}
	if flags.Changed("log-file") {
		opts.LogFile = flagLogFile
	}
	if flags.Changed("log-level") {
		opts.LogLevel = flagLogLevel
	}
	if flags.Changed("log-mode") {
		opts.LogMode = flagLogMode
	}
	if flags.Changed("rsync-executable") {
		opts.RsyncPath = flagRsyncPath
	}
	if flags.Changed("block-start-str") {
		opts.BlockStart = flagBlockStart
	}
	if flags.Changed("block-end-str") {
		opts.BlockEnd = flagBlockEnd
	}
	if flags.Changed("var-start-str") {
		opts.VarStart = flagVarStart
	}
	if flags.Changed("var-end-str") {
		opts.VarEnd = flagVarEnd
	}
	if flags.Changed("comment-start-str") {
		opts.CommentStart = flagCommentStart
	}
	if flags.Changed("comment-end-str") {
		opts.CommentEnd = flagCommentEnd
	}
	if flags.Changed("trim-blocks") {
		opts.TrimBlocks = flagTrimBlocks
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func addGenerationFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&flagOutput, "output", "o", "", "Output directory (default: current directory)")
	flags.StringVarP(&flagBaseDir, "base-dir", "b", "", "Resolve template sources against this directory instead of the configuration's")
	flags.StringVar(&flagWorkDir, "working-dir", "", "Staging directory for rendered files before transfer")
	flags.BoolVar(&flagDryRun, "dry-run", false, "Report what would change without touching the output directory")
	flags.BoolVar(&flagDelete, "delete", false, "Delete files in the output directory that are not part of the rendered set")
	flags.StringSliceVarP(&flagExclude, "exclude", "e", nil, "Protect matching output paths from deletion (repeatable)")
	flags.StringVar(&flagLogFile, "log-file", "", "Write a structured log to this file")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level: info or debug")
	flags.StringVar(&flagLogMode, "log-mode", "", "Log file mode: append or overwrite")
	flags.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	flags.StringVar(&flagRsyncPath, "rsync-executable", "", "Transfer with this rsync binary instead of the in-process reconciler")
	flags.StringVar(&flagBlockStart, "block-start-str", "", "Block statement opening delimiter")
	flags.StringVar(&flagBlockEnd, "block-end-str", "", "Block statement closing delimiter")
	flags.StringVar(&flagVarStart, "var-start-str", "", "Variable expression opening delimiter")
	flags.StringVar(&flagVarEnd, "var-end-str", "", "Variable expression closing delimiter")
	flags.StringVar(&flagCommentStart, "comment-start-str", "", "Comment opening delimiter")
	flags.StringVar(&flagCommentEnd, "comment-end-str", "", "Comment closing delimiter")
	flags.BoolVar(&flagTrimBlocks, "trim-blocks", true, "Remove the first newline after a block statement")
}

func init() {
	addGenerationFlags(rootCmd)
	rootCmd.Flags().BoolVar(&flagStdin, "stdin", false, "Render a single template from standard input to standard output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information for tmpl`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tmpl version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate shell completion script",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			err = cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			err = cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		if err != nil {
			log.Error().Err(err).Str("shell", args[0]).Msg("Failed to generate completion")
			fmt.Fprintln(os.Stderr, "unable to generate completion script")
		}
	},
}

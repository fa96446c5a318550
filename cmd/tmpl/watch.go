package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/tmpl/pkg/core"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/ui"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// Events arriving within this window collapse into one regeneration;
// editors tend to fire several writes per save.
const watchDebounce = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch [template-configuration]",
	Short: "Regenerate whenever the configuration directory changes",
	Long: `Watch runs a full generation, then keeps watching the configuration
directory and regenerates on every change. A failing regeneration is
reported and watching continues.`,
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
		logger := logging.GetLogger("watch")

		confPath := "."
		if len(args) == 1 {
			confPath = args[0]
		}
		watchDir, err := filepath.Abs(confPath)
		if err != nil {
			return errors.Wrap(err, errors.ErrPreflight, "unable to resolve watch path")
		}
		if info, statErr := os.Stat(watchDir); statErr != nil || !info.IsDir() {
			watchDir = filepath.Dir(watchDir)
		}

		printer := ui.New(opts.Color, false)
		if err := core.Generate(confPath, opts, printer); err != nil {
			printer.Error("%v", err)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.Wrap(err, errors.ErrPreflight, "unable to initialize filesystem watcher")
		}
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(watchDir); err != nil {
			return errors.Wrapf(err, errors.ErrPreflight, "unable to watch %q", watchDir)
		}
		printer.Step("Watching %s...", watchDir)

		var timer *time.Timer
		pending := make(chan struct{}, 1)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Change detected")
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case pending <- struct{}{}:
					default:
					}
				})
			case <-pending:
				printer.Step("Change detected, regenerating...")
				if err := core.Generate(confPath, opts, printer); err != nil {
					printer.Error("%v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn().Err(err).Msg("Watcher error")
			}
		}
	},
}

func init() {
	addGenerationFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

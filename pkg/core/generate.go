// Package core wires the full generation pipeline: configuration,
// capability modules, mapping resolution, rendering and output
// synchronization.
package core

import (
	"io"
	"os"
	"path/filepath"

	"github.com/arthur-debert/tmpl/pkg/capability"
	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/mapping"
	"github.com/arthur-debert/tmpl/pkg/meta"
	"github.com/arthur-debert/tmpl/pkg/pathspec"
	"github.com/arthur-debert/tmpl/pkg/render"
	"github.com/arthur-debert/tmpl/pkg/syncer"
	"github.com/arthur-debert/tmpl/pkg/ui"
)

// Generate runs the whole pipeline for the configuration at confPath
// (a file, or a directory searched by hostname). Each stage runs to
// completion before the next; the first failure aborts the run.
func Generate(confPath string, opts config.Options, printer *ui.Printer) error {
	logger := logging.GetLogger("core")

	info, err := meta.Collect(confPath, opts.Output)
	if err != nil {
		return err
	}
	logger.Info().Str("run_id", info.RunID).Str("hostname", info.Hostname).Msg("Starting generation run")

	printer.Step("Parsing template configuration...")
	doc, err := config.Load(confPath, config.LoadOptions{
		Hostname:     info.Hostname,
		RequireFiles: true,
	})
	if err != nil {
		return err
	}
	info.ConfPath = doc.Path
	printer.Substep(doc.Path)

	printer.Step("Setting-up templating environment...")
	env, err := buildEnvironment(doc, opts, info, printer)
	if err != nil {
		return err
	}

	printer.Step("Computing template file mappings...")
	resolved, err := mapping.Build(doc, opts.BaseDir)
	if err != nil {
		return err
	}
	logger.Info().Int("count", len(resolved)).Msg("Resolved mappings")

	stageDir, err := prepareStage(opts.WorkDir, info.RunID)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(stageDir); err != nil {
			logger.Warn().Err(err).Str("stage", stageDir).Msg("Unable to clean staging directory")
		}
	}()

	printer.Step("Translating templates...")
	if _, err := render.Run(env.engine, env.ns, resolved, stageDir, printer); err != nil {
		return err
	}

	if opts.DryRun {
		printer.Step("Checking output files (dry run)...")
	} else {
		printer.Step("Writing output files...")
	}
	report, err := syncer.Sync(stageDir, opts.Output, syncer.Options{
		Delete:    opts.Delete,
		Exclude:   opts.Exclude,
		DryRun:    opts.DryRun,
		RsyncPath: opts.RsyncPath,
	})
	if err != nil {
		return err
	}
	printReport(printer, report)

	if err := syncer.ApplyAttrs(opts.Output, resolved, opts.DryRun); err != nil {
		return err
	}

	printer.Success("Done.")
	return nil
}

// RenderStdin translates a single template from in to out using the
// same namespace a file render would see, minus the per-entry binding.
func RenderStdin(confPath string, opts config.Options, in io.Reader, out io.Writer) error {
	info, err := meta.Collect(confPath, opts.Output)
	if err != nil {
		return err
	}

	doc, err := config.Load(confPath, config.LoadOptions{Hostname: info.Hostname})
	if err != nil {
		return err
	}
	info.ConfPath = doc.Path

	// Stdin mode keeps stdout clean for the rendered result.
	env, err := buildEnvironment(doc, opts, info, nil)
	if err != nil {
		return err
	}
	return render.RenderStdin(env.engine, env.ns, in, out)
}

type environment struct {
	engine *render.Engine
	ns     *render.Namespace
}

func buildEnvironment(doc *config.Document, opts config.Options, info meta.Info, printer *ui.Printer) (*environment, error) {
	libs, err := libraryPaths(doc)
	if err != nil {
		return nil, err
	}
	reg, err := capability.LoadModules(libs)
	if err != nil {
		return nil, err
	}

	templateDir := doc.Dir
	if opts.BaseDir != "" {
		templateDir = opts.BaseDir
	}
	engine, err := render.NewEngine(templateDir, opts)
	if err != nil {
		return nil, err
	}

	ns := render.BuildContext(doc, reg, &info, render.Builtins(doc.Dir, printer))
	return &environment{engine: engine, ns: ns}, nil
}

// libraryPaths expands the document's lib entries, which may carry the
// same path expressions as file sources.
func libraryPaths(doc *config.Document) ([]string, error) {
	var paths []string
	for _, lib := range doc.Lib {
		spec := pathspec.Resolve(lib, doc.Dir)
		matches, err := pathspec.Expand(spec)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCapabilityLoad,
				"unable to expand capability module path %q", lib)
		}
		if len(matches) == 0 {
			return nil, errors.Newf(errors.ErrCapabilityLoad,
				"capability module path %q matches no files", lib)
		}
		for _, m := range matches {
			paths = append(paths, m.Path)
		}
	}
	return paths, nil
}

// prepareStage creates a fresh per-run staging tree under workDir.
func prepareStage(workDir, runID string) (string, error) {
	stageDir := filepath.Join(workDir, runID)
	if err := os.RemoveAll(stageDir); err != nil {
		return "", errors.Wrapf(err, errors.ErrRender,
			"unable to clear staging directory %q", stageDir)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", errors.Wrapf(err, errors.ErrRender,
			"unable to create staging directory %q", stageDir)
	}
	return stageDir, nil
}

func printReport(printer *ui.Printer, report *syncer.Report) {
	for _, line := range report.Output {
		printer.Detail(line)
	}
	if len(report.Transferred) == 0 && len(report.Deleted) == 0 {
		return
	}
	rows := make([][]string, 0, len(report.Transferred)+len(report.Deleted))
	for _, rel := range report.Transferred {
		rows = append(rows, []string{"write", rel})
	}
	for _, rel := range report.Deleted {
		rows = append(rows, []string{"delete", rel})
	}
	printer.Table([]string{"Action", "Path"}, rows)
}

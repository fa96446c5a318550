package render

import (
	"io"
	"os"
	"path/filepath"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/mapping"
	"github.com/arthur-debert/tmpl/pkg/ui"
)

// Result summarizes one render run over the staging tree.
type Result struct {
	Rendered []string
	Copied   []string
}

// Run materializes every mapping into stageDir: translated entries are
// rendered with their own bound context, untranslated entries are
// copied byte for byte. Symlink entries are skipped here; they are
// applied directly to the output tree after synchronization.
func Run(engine *Engine, ns *Namespace, mappings []mapping.Resolved, stageDir string, printer *ui.Printer) (*Result, error) {
	logger := logging.GetLogger("render")
	result := &Result{}

	for _, m := range mappings {
		if m.Symlink != "" {
			continue
		}
		if printer != nil {
			printer.Substep(m.Dst)
		}

		target := filepath.Join(stageDir, m.Dst)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrRender,
				"unable to create staging directory for %q", m.Dst)
		}

		if !m.Translate {
			logger.Info().Str("src", m.Src).Str("dst", m.Dst).Msg("Copying file verbatim")
			if err := copyFile(m.Src, target); err != nil {
				return nil, errors.Wrapf(err, errors.ErrRender,
					"unable to copy %q into the staging tree", m.Src)
			}
			result.Copied = append(result.Copied, m.Dst)
			continue
		}

		logger.Info().Str("src", m.Src).Str("dst", m.Dst).Msg("Translating template")
		source, err := os.ReadFile(m.Src)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrRender,
				"unable to read template %q", m.Src)
		}

		ctx := ns.Bind(m.This, filepath.Base(m.Dst))
		rendered, err := engine.Render(string(source), ctx)
		if err != nil {
			return nil, errors.WithDetail(err, "template", m.Src)
		}

		if err := os.WriteFile(target, []byte(rendered), 0o644); err != nil {
			return nil, errors.Wrapf(err, errors.ErrRender,
				"unable to write rendered file %q", target)
		}
		result.Rendered = append(result.Rendered, m.Dst)
	}
	return result, nil
}

// RenderStdin translates a single template read from in and writes the
// result, with a trailing newline, to out.
func RenderStdin(engine *Engine, ns *Namespace, in io.Reader, out io.Writer) error {
	source, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, errors.ErrStdinRender, "unable to read standard input")
	}

	rendered, err := engine.Render(string(source), ns.Bind(nil, ""))
	if err != nil {
		return errors.Wrap(err, errors.ErrStdinRender, "unable to render standard input")
	}

	if _, err := io.WriteString(out, rendered+"\n"); err != nil {
		return errors.Wrap(err, errors.ErrStdinRender, "unable to write to standard output")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Package render drives template translation: it owns the template
// engine, the render namespace, and the per-entry staging of rendered
// output.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/flosch/pongo2/v6"
)

// abortError carries a deliberate template failure (raise, require, a
// failed builtin) out of the engine via panic; Engine.render recovers
// it into an error.
type abortError struct {
	msg string
}

func abortf(format string, args ...interface{}) {
	panic(&abortError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))})
}

var trimBlocksRe = regexp.MustCompile(`%\}\n`)

// Engine wraps a template set rooted at the template source directory.
// Custom delimiters are normalized to the canonical ones in a source
// pre-pass, so included templates must use the canonical delimiters.
type Engine struct {
	set        *pongo2.TemplateSet
	normalize  *strings.Replacer
	trimBlocks bool
}

// NewEngine builds the engine for templates under baseDir.
func NewEngine(baseDir string, opts config.Options) (*Engine, error) {
	loader, err := pongo2.NewLocalFileSystemLoader(baseDir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrEngineInit,
			"unable to initialize template loader for %q", baseDir)
	}
	set := pongo2.NewSet("tmpl", loader)

	e := &Engine{set: set, trimBlocks: opts.TrimBlocks}

	pairs := make([]string, 0, 12)
	for _, d := range [][2]string{
		{opts.BlockStart, "{%"},
		{opts.BlockEnd, "%}"},
		{opts.VarStart, "{{"},
		{opts.VarEnd, "}}"},
		{opts.CommentStart, "{#"},
		{opts.CommentEnd, "#}"},
	} {
		if d[0] != "" && d[0] != d[1] {
			pairs = append(pairs, d[0], d[1])
		}
	}
	if len(pairs) > 0 {
		e.normalize = strings.NewReplacer(pairs...)
	}
	return e, nil
}

// Render translates a template source string against ctx.
func (e *Engine) Render(source string, ctx pongo2.Context) (string, error) {
	source = e.prepare(source)
	tpl, err := e.set.FromString(source)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrRender, "unable to load template")
	}
	return e.execute(tpl, ctx)
}

func (e *Engine) prepare(source string) string {
	if e.normalize != nil {
		source = e.normalize.Replace(source)
	}
	if e.trimBlocks {
		source = trimBlocksRe.ReplaceAllString(source, "%}")
	}
	return source
}

func (e *Engine) execute(tpl *pongo2.Template, ctx pongo2.Context) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ab, ok := r.(*abortError)
			if !ok {
				panic(r)
			}
			err = errors.New(errors.ErrRender, ab.msg)
		}
	}()
	out, execErr := tpl.Execute(ctx)
	if execErr != nil {
		logger := logging.GetLogger("render")
		logger.Debug().Err(execErr).Msg("Template execution failed")
		return "", errors.Wrap(execErr, errors.ErrRender, "unable to render template")
	}
	return out, nil
}

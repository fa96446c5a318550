// Package mapping turns the files entries of a configuration document
// into concrete source/destination pairs, expanding path expressions on
// both sides.
package mapping

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/pathspec"
)

// Resolved is one concrete unit of work for the render stage. Src is an
// absolute path to the source template; Dst is relative to the output
// root. Symlink entries carry no Src.
type Resolved struct {
	Src       string
	Dst       string
	Translate bool
	Chmod     string
	Chown     string
	Symlink   string
	// This is the entry's own mapping with src and dst replaced by
	// their concrete values, exposed to templates as "this".
	This map[string]interface{}
}

// Build resolves every files entry of doc. Sources are resolved
// relative to baseDir when set, otherwise relative to the document's
// directory.
func Build(doc *config.Document, baseDir string) ([]Resolved, error) {
	logger := logging.GetLogger("mapping")

	srcRoot := doc.Dir
	if baseDir != "" {
		srcRoot = baseDir
	}

	var out []Resolved
	for i, entry := range doc.Files {
		resolved, err := buildEntry(entry, srcRoot)
		if err != nil {
			return nil, errors.WithDetail(err, "entry", i+1)
		}
		for _, r := range resolved {
			logger.Debug().Str("src", r.Src).Str("dst", r.Dst).Msg("Resolved mapping")
		}
		out = append(out, resolved...)
	}
	return out, nil
}

func buildEntry(entry config.Entry, srcRoot string) ([]Resolved, error) {
	if filepath.IsAbs(entry.Dst) {
		return nil, errors.Newf(errors.ErrMappingResolution,
			"destination %q must be relative to the output directory", entry.Dst)
	}

	if entry.Symlink != "" {
		return buildSymlink(entry)
	}

	srcSpec := entry.Src
	if srcSpec == "" {
		srcSpec = filepath.Base(strings.TrimSuffix(entry.Dst, "/"))
	}
	srcSpec = pathspec.Resolve(srcSpec, srcRoot)

	srcKind, err := pathspec.Detect(srcSpec)
	if err != nil {
		return nil, err
	}
	dstKind, err := pathspec.Detect(entry.Dst)
	if err != nil {
		return nil, err
	}

	pairs, err := pairPaths(srcSpec, srcKind, entry.Dst, dstKind)
	if err != nil {
		return nil, err
	}

	out := make([]Resolved, 0, len(pairs))
	for _, p := range pairs {
		if err := checkSource(p.src); err != nil {
			return nil, err
		}
		out = append(out, Resolved{
			Src:       p.src,
			Dst:       p.dst,
			Translate: entry.Translate,
			Chmod:     entry.Chmod,
			Chown:     entry.Chown,
			This:      entryPayload(entry, p.src, p.dst),
		})
	}
	return out, nil
}

func buildSymlink(entry config.Entry) ([]Resolved, error) {
	if pathspec.HasSubstitution(entry.Dst) || pathspec.HasSubstitution(entry.Symlink) {
		return nil, errors.Newf(errors.ErrMappingResolution,
			"symlink entry %q does not support path expressions", entry.Dst)
	}
	return []Resolved{{
		Dst:     entry.Dst,
		Symlink: entry.Symlink,
		Chown:   entry.Chown,
		This:    entryPayload(entry, "", entry.Dst),
	}}, nil
}

type pair struct {
	src string
	dst string
}

// pairPaths applies the expansion rules:
//
//   - a wildcard destination is filled with the token matched on the
//     source side, so the source must carry an expression of its own
//   - expressions on both sides expand positionally and must produce
//     the same number of paths
//   - an expression on the source side alone fans every source in onto
//     the single destination, in declaration order
//   - a list or range on the destination side alone fans the one
//     source out to every destination
func pairPaths(srcSpec string, srcKind pathspec.Kind, dstSpec string, dstKind pathspec.Kind) ([]pair, error) {
	switch {
	case dstKind == pathspec.KindWildcard:
		if srcKind == pathspec.KindLiteral {
			return nil, errors.Newf(errors.ErrMappingResolution,
				"destination %q contains a wildcard but source %q has no expression to substitute", dstSpec, srcSpec)
		}
		matches, err := expandSources(srcSpec)
		if err != nil {
			return nil, err
		}
		pairs := make([]pair, 0, len(matches))
		for _, m := range matches {
			dst, err := pathspec.Substitute(dstSpec, m.Token)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair{src: m.Path, dst: dst})
		}
		return pairs, nil

	case srcKind != pathspec.KindLiteral && dstKind != pathspec.KindLiteral:
		srcMatches, err := expandSources(srcSpec)
		if err != nil {
			return nil, err
		}
		dstMatches, err := pathspec.Expand(dstSpec)
		if err != nil {
			return nil, err
		}
		if len(srcMatches) != len(dstMatches) {
			return nil, errors.Newf(errors.ErrExpansionMismatch,
				"source %q and destination %q expand to different counts (%d vs %d)",
				srcSpec, dstSpec, len(srcMatches), len(dstMatches))
		}
		pairs := make([]pair, 0, len(srcMatches))
		for i := range srcMatches {
			pairs = append(pairs, pair{src: srcMatches[i].Path, dst: dstMatches[i].Path})
		}
		return pairs, nil

	case srcKind != pathspec.KindLiteral:
		matches, err := expandSources(srcSpec)
		if err != nil {
			return nil, err
		}
		pairs := make([]pair, 0, len(matches))
		for _, m := range matches {
			pairs = append(pairs, pair{src: m.Path, dst: dstSpec})
		}
		return pairs, nil

	case dstKind != pathspec.KindLiteral:
		dstMatches, err := pathspec.Expand(dstSpec)
		if err != nil {
			return nil, err
		}
		pairs := make([]pair, 0, len(dstMatches))
		for _, m := range dstMatches {
			pairs = append(pairs, pair{src: srcSpec, dst: m.Path})
		}
		return pairs, nil

	default:
		return []pair{{src: srcSpec, dst: dstSpec}}, nil
	}
}

// expandSources expands a source-side expression. An empty expansion is
// fatal: a mistyped wildcard must never quietly contribute nothing and
// leave a delete pass to remove previously generated output.
func expandSources(srcSpec string) ([]pathspec.Match, error) {
	matches, err := pathspec.Expand(srcSpec)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.Newf(errors.ErrMappingResolution,
			"source %q does not resolve to any valid source paths", srcSpec)
	}
	return matches, nil
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrMappingResolution,
			"source file %q does not exist", path)
	}
	if info.IsDir() {
		return errors.Newf(errors.ErrMappingResolution,
			"source %q is a directory", path)
	}
	return nil
}

func entryPayload(entry config.Entry, src, dst string) map[string]interface{} {
	payload := make(map[string]interface{}, len(entry.Raw)+2)
	for k, v := range entry.Raw {
		payload[k] = v
	}
	if src != "" {
		payload["src"] = src
	}
	payload["dst"] = dst
	return payload
}

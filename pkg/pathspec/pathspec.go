// Package pathspec expands path specifiers carrying at most one
// sub-expression into concrete paths.
//
// Supported sub-expressions:
//
//	/foo/bar*.txt      wildcard, matched against the filesystem
//	/foo/bar[1,2].txt  list of literal alternatives
//	/foo/bar[1-3].txt  inclusive ascending integer range
//
// Each expansion records the match token that replaced the sub-expression,
// which the mapping builder uses to pair source and destination sets.
package pathspec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/errors"
)

// Kind classifies the sub-expression found in a specifier.
type Kind int

const (
	KindLiteral Kind = iota
	KindWildcard
	KindList
	KindRange
)

// Match is one concrete expansion of a specifier. Token is the literal
// value that replaced the sub-expression, empty for literal specifiers.
type Match struct {
	Path  string
	Token string
}

var (
	listRegex  = regexp.MustCompile(`^[\w/. -]*(?P<expr>\[(?P<inner>[\w/. ,-]+)\])[\w/. -]*$`)
	rangeRegex = regexp.MustCompile(`^[\w/. -]*(?P<expr>\[(?P<lower>\d+)-(?P<upper>\d+)\])[\w/. -]*$`)
)

// Detect classifies spec and rejects specifiers carrying more than one
// sub-expression marker.
func Detect(spec string) (Kind, error) {
	stars := strings.Count(spec, "*")
	opens := strings.Count(spec, "[")
	closes := strings.Count(spec, "]")

	if stars == 0 && opens == 0 && closes == 0 {
		return KindLiteral, nil
	}
	if stars > 0 && (opens > 0 || closes > 0) {
		return 0, errors.Newf(errors.ErrMultipleSubstitution,
			"path specification %q contains more than one substitution expression", spec)
	}
	if stars > 1 {
		return 0, errors.Newf(errors.ErrMultipleSubstitution,
			"path specification %q contains more than one wildcard", spec)
	}
	if stars == 1 {
		return KindWildcard, nil
	}
	if opens > 1 || closes > 1 {
		return 0, errors.Newf(errors.ErrMultipleSubstitution,
			"path specification %q contains more than one bracket expression", spec)
	}
	if opens != closes {
		return 0, errors.Newf(errors.ErrMappingResolution,
			"path specification %q does not have balanced brackets", spec)
	}

	inner := spec[strings.Index(spec, "[")+1 : strings.Index(spec, "]")]
	switch {
	case strings.Contains(inner, ","):
		if !listRegex.MatchString(spec) {
			return 0, errors.Newf(errors.ErrMappingResolution,
				"path specification %q does not contain a valid list expression", spec)
		}
		return KindList, nil
	case strings.Contains(inner, "-"):
		if !rangeRegex.MatchString(spec) {
			return 0, errors.Newf(errors.ErrMappingResolution,
				"path specification %q does not contain a valid range expression", spec)
		}
		return KindRange, nil
	default:
		return 0, errors.Newf(errors.ErrMappingResolution,
			"path specification %q does not specify a range or list expression", spec)
	}
}

// HasSubstitution reports whether spec carries a sub-expression. Malformed
// specifiers count as substitutions; Expand surfaces the real error.
func HasSubstitution(spec string) bool {
	kind, err := Detect(spec)
	return err != nil || kind != KindLiteral
}

// Expand resolves spec into its ordered concrete paths. Wildcards are
// enumerated against the filesystem in lexicographic order and may yield
// an empty set; list and range expansions are purely computed.
func Expand(spec string) ([]Match, error) {
	kind, err := Detect(spec)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindLiteral:
		return []Match{{Path: spec}}, nil

	case KindWildcard:
		paths, err := filepath.Glob(spec)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMappingResolution,
				"path specification %q globbing failed", spec)
		}
		sort.Strings(paths)
		star := strings.Index(spec, "*")
		prefix, suffix := spec[:star], spec[star+1:]
		matches := make([]Match, 0, len(paths))
		for _, p := range paths {
			matches = append(matches, Match{
				Path:  p,
				Token: strings.TrimSuffix(strings.TrimPrefix(p, prefix), suffix),
			})
		}
		return matches, nil

	case KindList:
		groups := namedGroups(listRegex, spec)
		expr := groups["expr"]
		var matches []Match
		for _, part := range strings.Split(groups["inner"], ",") {
			if part == "" {
				continue
			}
			matches = append(matches, Match{
				Path:  strings.Replace(spec, expr, part, 1),
				Token: part,
			})
		}
		return matches, nil

	case KindRange:
		groups := namedGroups(rangeRegex, spec)
		expr := groups["expr"]
		lower, _ := strconv.Atoi(groups["lower"])
		upper, _ := strconv.Atoi(groups["upper"])
		if upper < lower {
			return nil, errors.Newf(errors.ErrMappingResolution,
				"upperbound in range expression of %q is smaller than the lowerbound", spec)
		}
		matches := make([]Match, 0, upper-lower+1)
		for i := lower; i <= upper; i++ {
			token := strconv.Itoa(i)
			matches = append(matches, Match{
				Path:  strings.Replace(spec, expr, token, 1),
				Token: token,
			})
		}
		return matches, nil
	}
	return nil, errors.Newf(errors.ErrInternal, "unhandled specifier kind %d", kind)
}

// Substitute rewrites the sub-expression in spec with a concrete token.
// Literal specifiers are returned unchanged.
func Substitute(spec, token string) (string, error) {
	kind, err := Detect(spec)
	if err != nil {
		return "", err
	}
	switch kind {
	case KindLiteral:
		return spec, nil
	case KindWildcard:
		return strings.Replace(spec, "*", token, 1), nil
	case KindList:
		return strings.Replace(spec, namedGroups(listRegex, spec)["expr"], token, 1), nil
	case KindRange:
		return strings.Replace(spec, namedGroups(rangeRegex, spec)["expr"], token, 1), nil
	}
	return "", errors.Newf(errors.ErrInternal, "unhandled specifier kind %d", kind)
}

// Resolve turns a document-relative path into a usable one: absolute paths
// pass through, ~ expands to the user home, everything else is joined onto
// base and cleaned.
func Resolve(path, base string) string {
	switch {
	case strings.HasPrefix(path, "/"):
		return filepath.Clean(path)
	case path == "~" || strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	default:
		return filepath.Clean(filepath.Join(base, path))
	}
}

func namedGroups(re *regexp.Regexp, s string) map[string]string {
	match := re.FindStringSubmatch(s)
	if match == nil {
		// Callers only reach here after a successful Detect.
		panic(fmt.Sprintf("pathspec: %q no longer matches %s", s, re.String()))
	}
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups
}

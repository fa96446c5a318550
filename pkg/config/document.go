// Package config loads and merges template configuration documents.
//
// A document is YAML (or TOML, by extension) with three recognized keys:
// include, lib and files. Everything else is an opaque user variable that
// flows untyped into the render namespace.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/pathspec"
	"github.com/davecgh/go-spew/spew"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Entry is one declared source→destination rule from the files key.
type Entry struct {
	Dst       string
	Src       string // empty means derived from Dst
	Translate bool
	Chmod     string
	Chown     string
	Symlink   string

	// Raw preserves the full entry payload verbatim for template access
	// through the `this` binding.
	Raw map[string]interface{}
}

// Document is a fully merged configuration.
type Document struct {
	Path    string // resolved primary document path
	Dir     string // directory containing the primary document
	Vars    map[string]interface{}
	Files   []Entry
	Lib     []string
	Include []string
}

// LoadOptions controls document loading.
type LoadOptions struct {
	// Hostname is the short hostname used to select a document when the
	// given path is a directory.
	Hostname string
	// RequireFiles demands a files key; stdin mode loads without one.
	RequireFiles bool
}

// Load reads the primary document at path (a file or a directory, see
// Locate), merges its includes in order and validates the result.
func Load(path string, opts LoadOptions) (*Document, error) {
	logger := logging.GetLogger("config")

	primary, err := Locate(path, opts.Hostname)
	if err != nil {
		return nil, err
	}
	docDir := filepath.Dir(primary)

	merged, err := parseFile(primary)
	if err != nil {
		return nil, err
	}

	includes, err := includePaths(merged, docDir)
	if err != nil {
		return nil, err
	}
	for _, inc := range includes {
		logger.Debug().Str("include", inc).Msg("Merging include document")
		sub, err := parseFile(inc)
		if err != nil {
			return nil, err
		}
		// Includes are not recursive: a nested include key is dropped.
		if _, ok := sub["include"]; ok {
			logger.Debug().Str("include", inc).Msg("Ignoring nested include key")
			delete(sub, "include")
		}
		merged = mergeValues(merged, sub).(map[string]interface{})
	}

	doc, err := buildDocument(primary, docDir, merged, opts)
	if err != nil {
		return nil, err
	}
	if e := logger.Trace(); e.Enabled() {
		e.Str("document", spew.Sdump(merged)).Msg("Merged configuration")
	}
	return doc, nil
}

func parseFile(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigRead,
			"unable to read template configuration file %q", path)
	}
	var data map[string]interface{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(raw, &data)
	} else {
		err = yaml.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse,
			"unable to parse template configuration file %q", path)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

// includePaths expands the include key of the primary document into
// concrete file paths, relative to the document directory.
func includePaths(doc map[string]interface{}, docDir string) ([]string, error) {
	raw, ok := doc["include"]
	if !ok {
		return nil, nil
	}
	specs, err := stringSlice(raw, "include")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, spec := range specs {
		matches, err := pathspec.Expand(pathspec.Resolve(spec, docDir))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigRead,
				"unable to expand include specification %q", spec)
		}
		for _, m := range matches {
			if _, err := os.Stat(m.Path); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigRead,
					"include %q is not a path to an existing file", m.Path)
			}
			paths = append(paths, m.Path)
		}
	}
	return paths, nil
}

// mergeValues deep-merges b over a: maps recurse, everything else
// (scalars and sequences alike) is replaced by the later document.
func mergeValues(a, b interface{}) interface{} {
	am, aok := a.(map[string]interface{})
	bm, bok := b.(map[string]interface{})
	if !aok || !bok {
		return b
	}
	out := make(map[string]interface{}, len(am)+len(bm))
	for k, v := range am {
		out[k] = v
	}
	for k, v := range bm {
		if prev, ok := out[k]; ok {
			out[k] = mergeValues(prev, v)
		} else {
			out[k] = v
		}
	}
	return out
}

func buildDocument(path, dir string, merged map[string]interface{}, opts LoadOptions) (*Document, error) {
	doc := &Document{
		Path: path,
		Dir:  dir,
		Vars: make(map[string]interface{}, len(merged)),
	}

	for key, val := range merged {
		switch key {
		case "include":
			specs, err := stringSlice(val, "include")
			if err != nil {
				return nil, err
			}
			doc.Include = specs
		case "lib":
			specs, err := stringSlice(val, "lib")
			if err != nil {
				return nil, err
			}
			doc.Lib = specs
		case "files":
			entries, err := parseEntries(val)
			if err != nil {
				return nil, err
			}
			doc.Files = entries
		default:
			doc.Vars[key] = val
		}
	}

	if opts.RequireFiles && doc.Files == nil {
		return nil, errors.New(errors.ErrConfigInvalid,
			`invalid template configuration - "files" specification not found`)
	}
	return doc, nil
}

func parseEntries(val interface{}) ([]Entry, error) {
	items, ok := val.([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrConfigInvalid,
			`invalid template configuration - "files" specification is not a list of mappings`)
	}
	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrConfigInvalid,
				`invalid template configuration - "files" entry %d is not a mapping`, i)
		}
		entry := Entry{Translate: true, Raw: raw}

		dst, ok := raw["dst"].(string)
		if !ok || dst == "" {
			return nil, errors.Newf(errors.ErrConfigInvalid,
				`invalid template configuration - "files" entry %d does not specify a destination`, i)
		}
		entry.Dst = dst

		var err error
		if entry.Src, err = optionalString(raw, "src", i); err != nil {
			return nil, err
		}
		if entry.Chmod, err = optionalString(raw, "chmod", i); err != nil {
			return nil, err
		}
		if entry.Chown, err = optionalString(raw, "chown", i); err != nil {
			return nil, err
		}
		if entry.Symlink, err = optionalString(raw, "symlink", i); err != nil {
			return nil, err
		}
		if v, ok := raw["translate"]; ok {
			b, ok := v.(bool)
			if !ok {
				return nil, errors.Newf(errors.ErrConfigInvalid,
					`invalid template configuration - "translate" of entry %d is not a boolean`, i)
			}
			entry.Translate = b
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func optionalString(raw map[string]interface{}, key string, index int) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Newf(errors.ErrConfigInvalid,
			`invalid template configuration - %q of entry %d is not a string`, key, index)
	}
	return s, nil
}

func stringSlice(val interface{}, key string) ([]string, error) {
	items, ok := val.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrConfigInvalid,
			`invalid template configuration - %q specification is not a list of file paths`, key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Newf(errors.ErrConfigInvalid,
				`invalid template configuration - %q specification is not a list of file paths`, key)
		}
		out = append(out, s)
	}
	return out, nil
}

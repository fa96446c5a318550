package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix shared by all environment fallbacks.
const EnvPrefix = "TMPL_"

// Options is the full invocation option set. Every field has a
// TMPL_*-prefixed environment fallback; command-line flags win on
// conflict (applied by the CLI layer after LoadOptions).
type Options struct {
	BaseDir      string   `koanf:"base_dir"`
	BlockStart   string   `koanf:"block_start_str"`
	BlockEnd     string   `koanf:"block_end_str"`
	VarStart     string   `koanf:"var_start_str"`
	VarEnd       string   `koanf:"var_end_str"`
	CommentStart string   `koanf:"comment_start_str"`
	CommentEnd   string   `koanf:"comment_end_str"`
	TrimBlocks   bool     `koanf:"trim_blocks"`
	DryRun       bool     `koanf:"dry_run"`
	Delete       bool     `koanf:"delete"`
	Exclude      []string `koanf:"exclude"`
	LogFile      string   `koanf:"log_file"`
	LogLevel     string   `koanf:"log_level"`
	LogMode      string   `koanf:"log_mode"`
	Color        bool     `koanf:"color"`
	Output       string   `koanf:"output"`
	RsyncPath    string   `koanf:"rsync_path"`
	Stdin        bool     `koanf:"stdin"`
	WorkDir      string   `koanf:"working_dir"`
}

// DefaultOptions returns the built-in defaults: output to the current
// directory, staging under the XDG cache dir, Jinja-style delimiters,
// trim-blocks on, in-process transfer (empty rsync path).
func DefaultOptions() Options {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Options{
		BlockStart:   "{%",
		BlockEnd:     "%}",
		VarStart:     "{{",
		VarEnd:       "}}",
		CommentStart: "{#",
		CommentEnd:   "#}",
		TrimBlocks:   true,
		Color:        true,
		LogLevel:     "info",
		LogMode:      "append",
		Output:       cwd,
		WorkDir:      filepath.Join(xdg.CacheHome, "tmpl"),
	}
}

// LoadOptionsFromEnv layers TMPL_* environment variables over the
// defaults.
func LoadOptionsFromEnv() (Options, error) {
	defaults := DefaultOptions()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"block_start_str":   defaults.BlockStart,
		"block_end_str":     defaults.BlockEnd,
		"var_start_str":     defaults.VarStart,
		"var_end_str":       defaults.VarEnd,
		"comment_start_str": defaults.CommentStart,
		"comment_end_str":   defaults.CommentEnd,
		"trim_blocks":       defaults.TrimBlocks,
		"color":             defaults.Color,
		"log_level":         defaults.LogLevel,
		"log_mode":          defaults.LogMode,
		"output":            defaults.Output,
		"working_dir":       defaults.WorkDir,
	}, "."), nil); err != nil {
		return defaults, errors.Wrap(err, errors.ErrPreflight, "unable to load option defaults")
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "exclude" {
			// TMPL_EXCLUDE is a space-separated path list.
			return key, strings.Fields(value)
		}
		return key, value
	}), nil); err != nil {
		return defaults, errors.Wrap(err, errors.ErrPreflight, "unable to load environment options")
	}

	opts := defaults
	if err := k.Unmarshal("", &opts); err != nil {
		return defaults, errors.Wrap(err, errors.ErrPreflight, "unable to decode options")
	}
	opts.Output = expandUser(opts.Output)
	opts.WorkDir = expandUser(opts.WorkDir)
	return opts, nil
}

// Validate checks the option set before the pipeline starts.
func (o *Options) Validate() error {
	switch o.LogLevel {
	case "info", "debug":
	default:
		return errors.Newf(errors.ErrPreflight, "invalid log level %q (expected info or debug)", o.LogLevel)
	}
	switch o.LogMode {
	case "append", "overwrite":
	default:
		return errors.Newf(errors.ErrPreflight, "invalid log mode %q (expected append or overwrite)", o.LogMode)
	}
	if o.BaseDir != "" {
		if info, err := os.Stat(o.BaseDir); err != nil || !info.IsDir() {
			return errors.Newf(errors.ErrPreflight, "specified template base directory %q does not exist", o.BaseDir)
		}
	}
	if o.RsyncPath != "" {
		if info, err := os.Stat(o.RsyncPath); err != nil || info.IsDir() {
			return errors.Newf(errors.ErrPreflight, "specified rsync executable %q does not exist", o.RsyncPath)
		}
	}
	if info, err := os.Stat(o.WorkDir); err == nil && !info.IsDir() {
		return errors.Newf(errors.ErrPreflight, "specified working directory %q is an existing file", o.WorkDir)
	}
	return nil
}

func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}

package config_test

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := config.DefaultOptions()

	assert.Equal(t, "{{", opts.VarStart)
	assert.Equal(t, "}}", opts.VarEnd)
	assert.Equal(t, "{%", opts.BlockStart)
	assert.Equal(t, "%}", opts.BlockEnd)
	assert.True(t, opts.TrimBlocks)
	assert.True(t, opts.Color)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, "append", opts.LogMode)
	assert.Empty(t, opts.RsyncPath)
	assert.NotEmpty(t, opts.WorkDir)
}

func TestLoadOptionsFromEnv(t *testing.T) {
	t.Setenv("TMPL_OUTPUT", "/srv/generated")
	t.Setenv("TMPL_VAR_START_STR", "<<")
	t.Setenv("TMPL_VAR_END_STR", ">>")
	t.Setenv("TMPL_EXCLUDE", ".git keepme.conf")
	t.Setenv("TMPL_LOG_LEVEL", "debug")
	t.Setenv("TMPL_WORKING_DIR", "/tmp/tmpl-test")

	opts, err := config.LoadOptionsFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/srv/generated", opts.Output)
	assert.Equal(t, "<<", opts.VarStart)
	assert.Equal(t, ">>", opts.VarEnd)
	assert.Equal(t, []string{".git", "keepme.conf"}, opts.Exclude)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.Equal(t, "/tmp/tmpl-test", opts.WorkDir)

	// Untouched options keep their defaults.
	assert.Equal(t, "{%", opts.BlockStart)
}

func TestOptionsValidate(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid_defaults", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.WorkDir = filepath.Join(dir, "work")
		require.NoError(t, opts.Validate())
	})

	t.Run("bad_log_level", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.LogLevel = "verbose"
		err := opts.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrPreflight))
	})

	t.Run("bad_log_mode", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.LogMode = "rotate"
		require.Error(t, opts.Validate())
	})

	t.Run("missing_base_dir", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.BaseDir = filepath.Join(dir, "missing")
		require.Error(t, opts.Validate())
	})

	t.Run("missing_rsync_executable", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.RsyncPath = filepath.Join(dir, "no-rsync")
		require.Error(t, opts.Validate())
	})

	t.Run("working_dir_is_a_file", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.WorkDir = writeFile(t, dir, "workfile", "occupied\n")
		require.Error(t, opts.Validate())
	})
}

package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestSyncTransfersStagedTree(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	seed(t, stage, map[string]string{
		"etc/motd":        "hello\n",
		"etc/nginx/a.cfg": "server {}\n",
	})

	report, err := Sync(stage, out, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"etc/motd", "etc/nginx/a.cfg"}, report.Transferred)
	assert.Empty(t, report.Deleted)

	content, err := os.ReadFile(filepath.Join(out, "etc/nginx/a.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "server {}\n", string(content))
}

func TestSyncOverwritesChangedFiles(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	seed(t, stage, map[string]string{"motd": "new\n"})
	seed(t, out, map[string]string{"motd": "old\n"})

	_, err := Sync(stage, out, Options{})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(out, "motd"))
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(content))
}

func TestSyncDeleteWithExclusions(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	seed(t, stage, map[string]string{"a": "a\n"})
	seed(t, out, map[string]string{"a": "a\n", "b": "b\n", "c": "c\n"})

	report, err := Sync(stage, out, Options{Delete: true, Exclude: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, report.Deleted)

	_, err = os.Stat(filepath.Join(out, "b"))
	assert.True(t, os.IsNotExist(err), "extraneous file is removed")
	_, err = os.Stat(filepath.Join(out, "c"))
	assert.NoError(t, err, "excluded file survives deletion")
	_, err = os.Stat(filepath.Join(out, "a"))
	assert.NoError(t, err)
}

func TestSyncWithoutDeleteKeepsExtraneous(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	seed(t, stage, map[string]string{"a": "a\n"})
	seed(t, out, map[string]string{"stray": "s\n"})

	report, err := Sync(stage, out, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Deleted)

	_, err = os.Stat(filepath.Join(out, "stray"))
	assert.NoError(t, err)
}

func TestSyncDeleteMatchesDirectoriesAndGlobs(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	seed(t, stage, map[string]string{"keep": "k\n"})
	seed(t, out, map[string]string{
		"keep":          "k\n",
		".git/config":   "x\n",
		"notes/todo.md": "x\n",
		"cache.tmp":     "x\n",
	})

	report, err := Sync(stage, out, Options{Delete: true, Exclude: []string{".git", "*.tmp"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/todo.md"}, report.Deleted)

	_, err = os.Stat(filepath.Join(out, ".git/config"))
	assert.NoError(t, err, "directory exclusions protect their contents")
	_, err = os.Stat(filepath.Join(out, "cache.tmp"))
	assert.NoError(t, err, "glob exclusions match base names")
	_, err = os.Stat(filepath.Join(out, "notes"))
	assert.True(t, os.IsNotExist(err), "emptied directories are pruned")
}

func TestSyncDryRunDoesNotMutate(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	seed(t, stage, map[string]string{"new.conf": "n\n"})
	seed(t, out, map[string]string{"old.conf": "o\n"})

	report, err := Sync(stage, out, Options{Delete: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"new.conf"}, report.Transferred)
	assert.Equal(t, []string{"old.conf"}, report.Deleted)

	_, err = os.Stat(filepath.Join(out, "new.conf"))
	assert.True(t, os.IsNotExist(err), "dry-run must not transfer")
	_, err = os.Stat(filepath.Join(out, "old.conf"))
	assert.NoError(t, err, "dry-run must not delete")
}

func TestSyncPreservesStagedMode(t *testing.T) {
	stage := t.TempDir()
	out := t.TempDir()
	path := filepath.Join(stage, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	_, err := Sync(stage, out, Options{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(out, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestRsyncArgs(t *testing.T) {
	args := rsyncArgs("/work/stage", "/srv/out", Options{
		Delete:  true,
		DryRun:  true,
		Exclude: []string{".git", "keep.conf"},
	})
	assert.Equal(t, []string{
		"-a", "-h", "--dry-run", "-v", "--delete",
		"--exclude=.git", "--exclude=keep.conf",
		"/work/stage/", "/srv/out",
	}, args)

	args = rsyncArgs("/work/stage/", "/srv/out", Options{})
	assert.Equal(t, []string{"-a", "-h", "/work/stage/", "/srv/out"}, args)
}

func TestApplyAttrsChmod(t *testing.T) {
	out := t.TempDir()
	seed(t, out, map[string]string{"secret.conf": "s\n"})

	err := ApplyAttrs(out, []mapping.Resolved{
		{Dst: "secret.conf", Chmod: "0600"},
	}, false)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(out, "secret.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestApplyAttrsSymlink(t *testing.T) {
	out := t.TempDir()

	require.NoError(t, ApplyAttrs(out, []mapping.Resolved{
		{Dst: "current", Symlink: "releases/v1"},
	}, false))

	target, err := os.Readlink(filepath.Join(out, "current"))
	require.NoError(t, err)
	assert.Equal(t, "releases/v1", target)

	// Re-pointing an existing link succeeds.
	require.NoError(t, ApplyAttrs(out, []mapping.Resolved{
		{Dst: "current", Symlink: "releases/v2"},
	}, false))
	target, err = os.Readlink(filepath.Join(out, "current"))
	require.NoError(t, err)
	assert.Equal(t, "releases/v2", target)
}

func TestApplyAttrsSymlinkRefusesRegularFile(t *testing.T) {
	out := t.TempDir()
	seed(t, out, map[string]string{"current": "not a link\n"})

	err := ApplyAttrs(out, []mapping.Resolved{
		{Dst: "current", Symlink: "releases/v1"},
	}, false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPermissionApply))

	content, readErr := os.ReadFile(filepath.Join(out, "current"))
	require.NoError(t, readErr)
	assert.Equal(t, "not a link\n", string(content), "existing file is never clobbered")
}

func TestApplyAttrsAccumulatesFailures(t *testing.T) {
	out := t.TempDir()
	seed(t, out, map[string]string{"a.conf": "a\n", "b.conf": "b\n"})

	err := ApplyAttrs(out, []mapping.Resolved{
		{Dst: "a.conf", Chown: "no-such-user-zz"},
		{Dst: "b.conf", Chmod: "0640"},
	}, false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPermissionApply))
	assert.Equal(t, 1, errors.GetErrorDetails(err)["failures"])

	// The failing entry does not stop the rest of the pass.
	info, statErr := os.Stat(filepath.Join(out, "b.conf"))
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestApplyAttrsDryRun(t *testing.T) {
	out := t.TempDir()
	seed(t, out, map[string]string{"a.conf": "a\n"})

	require.NoError(t, ApplyAttrs(out, []mapping.Resolved{
		{Dst: "a.conf", Chmod: "0600"},
		{Dst: "current", Symlink: "a.conf"},
	}, true))

	info, err := os.Stat(filepath.Join(out, "a.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	_, err = os.Lstat(filepath.Join(out, "current"))
	assert.True(t, os.IsNotExist(err))
}

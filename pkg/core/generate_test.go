package core_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/core"
	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type run struct {
	confDir string
	outDir  string
	opts    config.Options
	printer *ui.Printer
	stdout  *bytes.Buffer
}

func newRun(t *testing.T) *run {
	t.Helper()
	stdout := &bytes.Buffer{}
	opts := config.DefaultOptions()
	opts.Output = t.TempDir()
	opts.WorkDir = t.TempDir()
	return &run{
		confDir: t.TempDir(),
		outDir:  opts.Output,
		opts:    opts,
		printer: ui.NewWriterPrinter(stdout, &bytes.Buffer{}, false),
		stdout:  stdout,
	}
}

func (r *run) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(r.confDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateEndToEnd(t *testing.T) {
	r := newRun(t)
	r.write(t, "extra.yaml", "owner: ops\n")
	r.write(t, "motd.tmpl", "Welcome to {{ name }}, run by {{ this.owner }}\n")
	r.write(t, "blob.bin", "{{ untouched }}")
	r.write(t, "worker1.conf", "worker {{ name }}\n")
	r.write(t, "worker2.conf", "worker {{ name }}\n")
	conf := r.write(t, "tmpl.yaml", `
name: web1
include: [extra.yaml]
files:
  - dst: etc/motd
    src: motd.tmpl
    owner: "{{ owner }}"
    chmod: "0640"
  - dst: opt/blob.bin
    src: blob.bin
    translate: false
  - dst: units/worker*.conf
    src: worker[1-2].conf
`)

	require.NoError(t, core.Generate(conf, r.opts, r.printer))

	motd, err := os.ReadFile(filepath.Join(r.outDir, "etc/motd"))
	require.NoError(t, err)
	assert.Equal(t, "Welcome to web1, run by {{ owner }}\n", string(motd),
		"this values are entry literals, not re-rendered")

	blob, err := os.ReadFile(filepath.Join(r.outDir, "opt/blob.bin"))
	require.NoError(t, err)
	assert.Equal(t, "{{ untouched }}", string(blob))

	info, err := os.Stat(filepath.Join(r.outDir, "etc/motd"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	for _, rel := range []string{"units/worker1.conf", "units/worker2.conf"} {
		content, err := os.ReadFile(filepath.Join(r.outDir, rel))
		require.NoError(t, err)
		assert.Equal(t, "worker web1\n", string(content))
	}

	// The per-run staging tree is cleaned up afterwards.
	entries, err := os.ReadDir(r.opts.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Contains(t, r.stdout.String(), ":: Translating templates...")
	assert.Contains(t, r.stdout.String(), "Done.")
}

func TestGenerateDeleteWithExclude(t *testing.T) {
	r := newRun(t)
	r.write(t, "keep.conf", "k\n")
	conf := r.write(t, "tmpl.yaml", `
files:
  - dst: keep.conf
`)
	require.NoError(t, os.WriteFile(filepath.Join(r.outDir, "stray.conf"), []byte("s\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(r.outDir, "protected.conf"), []byte("p\n"), 0o644))

	r.opts.Delete = true
	r.opts.Exclude = []string{"protected.conf"}
	require.NoError(t, core.Generate(conf, r.opts, r.printer))

	_, err := os.Stat(filepath.Join(r.outDir, "stray.conf"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(r.outDir, "protected.conf"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(r.outDir, "keep.conf"))
	assert.NoError(t, err)
}

func TestGenerateDryRun(t *testing.T) {
	r := newRun(t)
	r.write(t, "motd.tmpl", "hello\n")
	conf := r.write(t, "tmpl.yaml", `
files:
  - dst: etc/motd
    src: motd.tmpl
`)
	require.NoError(t, os.WriteFile(filepath.Join(r.outDir, "stray.conf"), []byte("s\n"), 0o644))

	r.opts.DryRun = true
	r.opts.Delete = true
	require.NoError(t, core.Generate(conf, r.opts, r.printer))

	_, err := os.Stat(filepath.Join(r.outDir, "etc/motd"))
	assert.True(t, os.IsNotExist(err), "dry run must not write")
	_, err = os.Stat(filepath.Join(r.outDir, "stray.conf"))
	assert.NoError(t, err, "dry run must not delete")

	assert.Contains(t, r.stdout.String(), "etc/motd")
	assert.Contains(t, r.stdout.String(), "stray.conf")
}

func TestGenerateSymlinkEntry(t *testing.T) {
	r := newRun(t)
	r.write(t, "app.conf", "cfg\n")
	conf := r.write(t, "tmpl.yaml", `
files:
  - dst: releases/v1/app.conf
    src: app.conf
  - dst: current
    symlink: releases/v1
`)

	require.NoError(t, core.Generate(conf, r.opts, r.printer))

	target, err := os.Readlink(filepath.Join(r.outDir, "current"))
	require.NoError(t, err)
	assert.Equal(t, "releases/v1", target)
}

func TestGenerateWithCapabilityModule(t *testing.T) {
	r := newRun(t)
	r.write(t, "helpers.star", "def shout(s):\n    return s.upper()\n")
	r.write(t, "motd.tmpl", "{{ shout(name) }}\n")
	conf := r.write(t, "tmpl.yaml", `
name: web1
lib: [helpers.star]
files:
  - dst: motd
    src: motd.tmpl
`)

	require.NoError(t, core.Generate(conf, r.opts, r.printer))

	motd, err := os.ReadFile(filepath.Join(r.outDir, "motd"))
	require.NoError(t, err)
	assert.Equal(t, "WEB1\n", string(motd))
}

func TestGenerateSrcFanInLastWriterWins(t *testing.T) {
	r := newRun(t)
	r.write(t, "part1.conf", "one\n")
	r.write(t, "part2.conf", "two\n")
	conf := r.write(t, "tmpl.yaml", `
files:
  - dst: combined.conf
    src: part[1-2].conf
`)

	require.NoError(t, core.Generate(conf, r.opts, r.printer))

	content, err := os.ReadFile(filepath.Join(r.outDir, "combined.conf"))
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(content),
		"sources fanned in onto one destination render in order, last wins")
}

func TestGenerateHostnameSelection(t *testing.T) {
	r := newRun(t)
	hostname, err := os.Hostname()
	require.NoError(t, err)
	short := strings.Split(hostname, ".")[0]

	r.write(t, "motd.tmpl", "host config\n")
	r.write(t, short+".yaml", `
files:
  - dst: motd
    src: motd.tmpl
`)

	require.NoError(t, core.Generate(r.confDir, r.opts, r.printer))

	motd, err := os.ReadFile(filepath.Join(r.outDir, "motd"))
	require.NoError(t, err)
	assert.Equal(t, "host config\n", string(motd))
}

func TestGenerateErrors(t *testing.T) {
	t.Run("missing_configuration", func(t *testing.T) {
		r := newRun(t)
		err := core.Generate(filepath.Join(r.confDir, "nope.yaml"), r.opts, r.printer)
		require.Error(t, err)
		assert.Equal(t, errors.ExitConfigRead, errors.ExitCodeFor(err))
	})

	t.Run("missing_files_key", func(t *testing.T) {
		r := newRun(t)
		conf := r.write(t, "tmpl.yaml", "name: web1\n")
		err := core.Generate(conf, r.opts, r.printer)
		require.Error(t, err)
		assert.Equal(t, errors.ExitConfigInvalid, errors.ExitCodeFor(err))
	})

	t.Run("render_failure", func(t *testing.T) {
		r := newRun(t)
		r.write(t, "bad.tmpl", `{{ raise("boom") }}`)
		conf := r.write(t, "tmpl.yaml", "files:\n  - dst: bad\n    src: bad.tmpl\n")
		err := core.Generate(conf, r.opts, r.printer)
		require.Error(t, err)
		assert.Equal(t, errors.ExitRender, errors.ExitCodeFor(err))
	})

	t.Run("missing_capability_module", func(t *testing.T) {
		r := newRun(t)
		r.write(t, "a.tmpl", "x\n")
		conf := r.write(t, "tmpl.yaml", "lib: [ghost.star]\nfiles:\n  - dst: a\n    src: a.tmpl\n")
		err := core.Generate(conf, r.opts, r.printer)
		require.Error(t, err)
		assert.Equal(t, errors.ExitCapabilityLoad, errors.ExitCodeFor(err))
	})
}

func TestRenderStdinEndToEnd(t *testing.T) {
	r := newRun(t)
	conf := r.write(t, "tmpl.yaml", "name: World\n")

	var out bytes.Buffer
	err := core.RenderStdin(conf, r.opts, strings.NewReader("Hello {{ name }}"), &out)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", out.String())
}

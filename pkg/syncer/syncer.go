// Package syncer reconciles the staged output tree against the real
// output directory: transfer, extraneous-file deletion, dry-run
// reporting, and post-transfer permission and symlink application.
//
// Two transports are available: an in-process reconciler (the default)
// and an external rsync invocation when an executable is configured.
// Both honor the same delete, exclude and dry-run semantics.
package syncer

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
)

// Options controls one synchronization run.
type Options struct {
	// Delete removes files under the output directory that have no
	// counterpart in the staging tree.
	Delete bool
	// Exclude protects matching paths from deletion. Patterns match
	// the path relative to the output directory, its base name, or a
	// leading directory.
	Exclude []string
	// DryRun reports what would change without touching the output.
	DryRun bool
	// RsyncPath switches the transfer to an external rsync binary.
	RsyncPath string
}

// Report lists what a synchronization run did (or, under dry-run,
// would have done). Paths are relative to the output directory and
// sorted.
type Report struct {
	Transferred []string
	Deleted     []string
	// Output holds the raw external tool output when rsync is used.
	Output []string
}

// Sync reconciles outDir with stageDir.
func Sync(stageDir, outDir string, opts Options) (*Report, error) {
	if opts.RsyncPath != "" {
		return rsyncTransfer(stageDir, outDir, opts)
	}
	return nativeTransfer(stageDir, outDir, opts)
}

func nativeTransfer(stageDir, outDir string, opts Options) (*Report, error) {
	logger := logging.GetLogger("syncer")

	staged, err := listFiles(stageDir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSyncTransfer,
			"unable to scan staging directory %q", stageDir)
	}

	report := &Report{Transferred: staged}

	if opts.Delete {
		existing, err := listFiles(outDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.ErrSyncTransfer,
				"unable to scan output directory %q", outDir)
		}
		stagedSet := make(map[string]struct{}, len(staged))
		for _, rel := range staged {
			stagedSet[rel] = struct{}{}
		}
		for _, rel := range existing {
			if _, ok := stagedSet[rel]; ok {
				continue
			}
			if excluded(rel, opts.Exclude) {
				logger.Debug().Str("path", rel).Msg("Extraneous file excluded from deletion")
				continue
			}
			report.Deleted = append(report.Deleted, rel)
		}
		sort.Strings(report.Deleted)
	}

	if opts.DryRun {
		return report, nil
	}

	for _, rel := range staged {
		src := filepath.Join(stageDir, rel)
		dst := filepath.Join(outDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrSyncTransfer,
				"unable to create output directory for %q", rel)
		}
		if err := copyFile(src, dst); err != nil {
			return nil, errors.Wrapf(err, errors.ErrSyncTransfer,
				"unable to transfer %q", rel)
		}
		logger.Debug().Str("path", rel).Msg("Transferred file")
	}

	for _, rel := range report.Deleted {
		path := filepath.Join(outDir, rel)
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrapf(err, errors.ErrSyncTransfer,
				"unable to delete extraneous file %q", rel)
		}
		logger.Info().Str("path", rel).Msg("Deleted extraneous file")
		pruneEmptyParents(filepath.Dir(path), outDir)
	}

	return report, nil
}

func rsyncTransfer(stageDir, outDir string, opts Options) (*Report, error) {
	logger := logging.GetLogger("syncer")

	args := rsyncArgs(stageDir, outDir, opts)
	logger.Info().Str("rsync", opts.RsyncPath).Strs("args", args).Msg("Invoking external transfer")

	out, err := exec.Command(opts.RsyncPath, args...).CombinedOutput()
	lines := splitLines(string(out))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSyncTransfer,
			"external transfer failed: %s", strings.Join(lines, " / "))
	}
	return &Report{Output: lines}, nil
}

// rsyncArgs mirrors the conventional archive invocation: a trailing
// slash on the source so the staging tree's contents, not the tree
// itself, land in the output directory.
func rsyncArgs(stageDir, outDir string, opts Options) []string {
	args := []string{"-a", "-h"}
	if opts.DryRun {
		args = append(args, "--dry-run", "-v")
	}
	if opts.Delete {
		args = append(args, "--delete")
	}
	for _, pattern := range opts.Exclude {
		args = append(args, "--exclude="+pattern)
	}
	return append(args, strings.TrimSuffix(stageDir, "/")+"/", outDir)
}

// listFiles returns the sorted relative paths of all regular files
// under root.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func excluded(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/")+"/") {
			return true
		}
	}
	return false
}

func pruneEmptyParents(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

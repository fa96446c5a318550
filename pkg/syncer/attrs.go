package syncer

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/mapping"
)

var octalModeRe = regexp.MustCompile(`^[0-7]{3,4}$`)

// ApplyAttrs applies per-entry symlinks, modes and ownership to the
// output tree after transfer. Failures do not abort the pass; every
// entry is attempted and the failures are reported together.
func ApplyAttrs(outDir string, mappings []mapping.Resolved, dryRun bool) error {
	logger := logging.GetLogger("syncer")

	var failures []string
	for _, m := range mappings {
		target := filepath.Join(outDir, m.Dst)

		if m.Symlink != "" {
			if dryRun {
				logger.Info().Str("link", m.Dst).Str("target", m.Symlink).Msg("Would create symlink")
				continue
			}
			if err := applySymlink(target, m.Symlink); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", m.Dst, err))
			}
			continue
		}

		if dryRun {
			continue
		}
		if m.Chmod != "" {
			if err := applyChmod(target, m.Chmod); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", m.Dst, err))
			}
		}
		if m.Chown != "" {
			if err := applyChown(target, m.Chown); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", m.Dst, err))
			}
		}
	}

	if len(failures) > 0 {
		return errors.New(errors.ErrPermissionApply,
			"unable to apply file attributes: "+strings.Join(failures, "; ")).
			WithDetail("failures", len(failures))
	}
	return nil
}

// applySymlink creates (or replaces) a symbolic link. An existing
// non-link at the destination is never removed.
func applySymlink(path, target string) error {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("destination exists and is not a symlink")
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("unable to replace existing symlink: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, path)
}

// applyChmod handles octal modes natively and falls back to the chmod
// binary for symbolic ones (u+rwX and friends).
func applyChmod(path, mode string) error {
	if octalModeRe.MatchString(mode) {
		parsed, err := strconv.ParseUint(mode, 8, 32)
		if err != nil {
			return fmt.Errorf("invalid mode %q", mode)
		}
		return os.Chmod(path, os.FileMode(parsed))
	}
	if out, err := exec.Command("chmod", mode, path).CombinedOutput(); err != nil {
		return fmt.Errorf("chmod %s failed: %s", mode, strings.TrimSpace(string(out)))
	}
	return nil
}

// applyChown accepts "user", "user:group" or numeric ids.
func applyChown(path, spec string) error {
	userPart, groupPart, _ := strings.Cut(spec, ":")

	uid := -1
	if userPart != "" {
		id, err := lookupUID(userPart)
		if err != nil {
			return err
		}
		uid = id
	}
	gid := -1
	if groupPart != "" {
		id, err := lookupGID(groupPart)
		if err != nil {
			return err
		}
		gid = id
	}
	return os.Chown(path, uid, gid)
}

func lookupUID(name string) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return -1, fmt.Errorf("unknown user %q", name)
	}
	return strconv.Atoi(u.Uid)
}

func lookupGID(name string) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, fmt.Errorf("unknown group %q", name)
	}
	return strconv.Atoi(g.Gid)
}

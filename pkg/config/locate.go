package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
)

// Locate resolves the primary document path. A file path is returned as
// given. For a directory, tmpl.yaml/tmpl.yml wins if present; otherwise
// the .yaml/.yml file whose stem best matches the short hostname is
// chosen: an exact stem match first, then the longest common prefix,
// ties broken by shortest filename then lexicographic order. Two distinct
// stems tied on both score and length are ambiguous and rejected.
func Locate(path, hostname string) (string, error) {
	logger := logging.GetLogger("config.locate")

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrConfigRead,
			"specified template configuration path %q does not exist", path)
	}
	if !info.IsDir() {
		return path, nil
	}

	dirents, err := os.ReadDir(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrConfigRead,
			"unable to list template configuration directory %q", path)
	}

	var names []string
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, de.Name())
		}
	}

	for _, preferred := range []string{"tmpl.yaml", "tmpl.yml"} {
		for _, name := range names {
			if name == preferred {
				logger.Debug().Str("file", name).Msg("Selected canonical configuration file")
				return filepath.Join(path, name), nil
			}
		}
	}

	type candidate struct {
		name  string
		stem  string
		score int
	}
	var candidates []candidate
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		score := commonPrefixLen(stem, hostname)
		if stem == hostname {
			// An exact stem match outranks any prefix match.
			score = len(hostname) + 1
		}
		if score > 0 {
			candidates = append(candidates, candidate{name: name, stem: stem, score: score})
		}
	}
	if len(candidates) == 0 {
		return "", errors.Newf(errors.ErrConfigRead,
			"directory %q contains no configuration file matching hostname %q", path, hostname)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if len(candidates[i].name) != len(candidates[j].name) {
			return len(candidates[i].name) < len(candidates[j].name)
		}
		return candidates[i].name < candidates[j].name
	})

	best := candidates[0]
	if len(candidates) > 1 {
		next := candidates[1]
		if next.score == best.score && len(next.name) == len(best.name) && next.stem != best.stem {
			return "", errors.Newf(errors.ErrConfigRead,
				"ambiguous configuration selection for hostname %q: %q and %q match equally well",
				hostname, best.name, next.name)
		}
	}
	logger.Debug().Str("file", best.name).Str("hostname", hostname).Msg("Selected configuration file by hostname")
	return filepath.Join(path, best.name), nil
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// Package meta captures per-invocation environment facts once, at startup.
// Stages receive this value explicitly instead of reaching into ambient
// process state.
package meta

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/google/uuid"
)

// Info is the immutable invocation metadata.
type Info struct {
	Hostname  string // short hostname, first label only
	FQDN      string
	RunID     string // unique per invocation, used in log context
	ConfPath  string // absolute path to the template configuration file
	OutputDir string // absolute output directory
}

// Collect resolves hostname, FQDN and absolute paths. FQDN resolution is
// best-effort: a host without reverse DNS keeps its plain hostname.
func Collect(confPath, outputDir string) (Info, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Info{}, errors.Wrap(err, errors.ErrPreflight, "unable to discern hostname")
	}

	absConf, err := filepath.Abs(confPath)
	if err != nil {
		return Info{}, errors.Wrapf(err, errors.ErrPreflight, "unable to resolve configuration path %q", confPath)
	}
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return Info{}, errors.Wrapf(err, errors.ErrPreflight, "unable to resolve output directory %q", outputDir)
	}

	return Info{
		Hostname:  strings.SplitN(hostname, ".", 2)[0],
		FQDN:      lookupFQDN(hostname),
		RunID:     uuid.NewString(),
		ConfPath:  absConf,
		OutputDir: absOut,
	}, nil
}

func lookupFQDN(hostname string) string {
	if strings.Contains(hostname, ".") {
		return hostname
	}
	addrs, err := net.LookupIP(hostname)
	if err != nil {
		return hostname
	}
	for _, addr := range addrs {
		names, err := net.LookupAddr(addr.String())
		if err != nil {
			continue
		}
		for _, name := range names {
			name = strings.TrimSuffix(name, ".")
			if strings.Contains(name, ".") {
				return name
			}
		}
	}
	return hostname
}

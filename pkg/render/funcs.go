package render

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/tmpl/pkg/logging"
	"github.com/arthur-debert/tmpl/pkg/pathspec"
	"github.com/arthur-debert/tmpl/pkg/ui"
	"github.com/beevik/etree"
	"github.com/flosch/pongo2/v6"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type builtinFunc func(args ...*pongo2.Value) *pongo2.Value

// Builtins returns the built-in template functions. File-reading
// builtins resolve relative paths against docDir; print writes through
// the printer and the log.
func Builtins(docDir string, printer *ui.Printer) map[string]interface{} {
	logger := logging.GetLogger("render")

	funcs := map[string]builtinFunc{
		"domain_join": func(args ...*pongo2.Value) *pongo2.Value {
			parts := make([]string, 0, len(args))
			for _, a := range args {
				parts = append(parts, strings.Trim(a.String(), "."))
			}
			return pongo2.AsValue(strings.Join(parts, "."))
		},

		"env": func(args ...*pongo2.Value) *pongo2.Value {
			if len(args) < 1 || len(args) > 2 {
				abortf("env() expects a variable name and an optional default")
			}
			if value, ok := os.LookupEnv(args[0].String()); ok {
				return pongo2.AsValue(value)
			}
			if len(args) == 2 {
				return args[1]
			}
			return pongo2.AsValue(nil)
		},

		"file_ext": func(args ...*pongo2.Value) *pongo2.Value {
			base := filepath.Base(argString(args, 0, "file_ext"))
			if idx := strings.Index(base, "."); idx >= 0 {
				return pongo2.AsValue(base[idx+1:])
			}
			return pongo2.AsValue("")
		},

		"file_name": func(args ...*pongo2.Value) *pongo2.Value {
			base := filepath.Base(argString(args, 0, "file_name"))
			if idx := strings.Index(base, "."); idx >= 0 {
				return pongo2.AsValue(base[:idx])
			}
			return pongo2.AsValue(base)
		},

		"get_host": func(args ...*pongo2.Value) *pongo2.Value {
			ip := argString(args, 0, "get_host")
			names, err := net.LookupAddr(ip)
			if err != nil || len(names) == 0 {
				abortf("get_host(%q) - unable to obtain host for specified IP address", ip)
			}
			return pongo2.AsValue(strings.TrimSuffix(names[0], "."))
		},

		"get_ip": func(args ...*pongo2.Value) *pongo2.Value {
			host := argString(args, 0, "get_ip")
			ips, err := net.LookupIP(host)
			if err != nil || len(ips) == 0 {
				abortf("get_ip(%q) - unable to obtain IP address for specified host", host)
			}
			for _, ip := range ips {
				if v4 := ip.To4(); v4 != nil {
					return pongo2.AsValue(v4.String())
				}
			}
			return pongo2.AsValue(ips[0].String())
		},

		"get_output": func(args ...*pongo2.Value) *pongo2.Value {
			cmdline := argString(args, 0, "get_output")
			out, err := exec.Command("sh", "-c", cmdline).Output()
			if err != nil {
				abortf("unable to get output from command %q - %v", cmdline, err)
			}
			return pongo2.AsValue(strings.TrimRight(string(out), "\n"))
		},

		"parse_yaml": func(args ...*pongo2.Value) *pongo2.Value {
			var parsed interface{}
			if err := yaml.Unmarshal([]byte(argString(args, 0, "parse_yaml")), &parsed); err != nil {
				abortf("unable to parse YAML string - %v", err)
			}
			return pongo2.AsValue(parsed)
		},

		"parse_toml": func(args ...*pongo2.Value) *pongo2.Value {
			var parsed map[string]interface{}
			if err := toml.Unmarshal([]byte(argString(args, 0, "parse_toml")), &parsed); err != nil {
				abortf("unable to parse TOML string - %v", err)
			}
			return pongo2.AsValue(parsed)
		},

		"xml_text": func(args ...*pongo2.Value) *pongo2.Value {
			if len(args) != 2 {
				abortf("xml_text() expects an XML string and an element path")
			}
			doc := etree.NewDocument()
			if err := doc.ReadFromString(args[0].String()); err != nil {
				abortf("unable to parse XML string - %v", err)
			}
			elem := doc.FindElement(args[1].String())
			if elem == nil {
				abortf("xml_text(%q) - element not found", args[1].String())
			}
			return pongo2.AsValue(elem.Text())
		},

		"path_basename": func(args ...*pongo2.Value) *pongo2.Value {
			return pongo2.AsValue(filepath.Base(argString(args, 0, "path_basename")))
		},

		"path_dirname": func(args ...*pongo2.Value) *pongo2.Value {
			return pongo2.AsValue(filepath.Dir(argString(args, 0, "path_dirname")))
		},

		"path_join": func(args ...*pongo2.Value) *pongo2.Value {
			parts := make([]string, 0, len(args))
			for _, a := range args {
				parts = append(parts, a.String())
			}
			return pongo2.AsValue(filepath.Join(parts...))
		},

		"print": func(args ...*pongo2.Value) *pongo2.Value {
			msg := argString(args, 0, "print")
			if printer != nil {
				printer.Detail(msg)
			}
			logger.Info().Msg(msg)
			return pongo2.AsValue("")
		},

		"raise": func(args ...*pongo2.Value) *pongo2.Value {
			abortf("%s", argString(args, 0, "raise"))
			return nil
		},

		"read_file": func(args ...*pongo2.Value) *pongo2.Value {
			path := pathspec.Resolve(argString(args, 0, "read_file"), docDir)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				abortf("cannot read file %q - specified file path does not exist", path)
			}
			contents, err := os.ReadFile(path)
			if err != nil {
				abortf("cannot read file %q - %v", path, err)
			}
			return pongo2.AsValue(string(contents))
		},
	}

	out := make(map[string]interface{}, len(funcs))
	for name, fn := range funcs {
		out[name] = fn
	}
	return out
}

func argString(args []*pongo2.Value, idx int, name string) string {
	if idx >= len(args) {
		abortf("%s() is missing a required argument", name)
	}
	return args[idx].String()
}

// Package capability loads user-supplied Starlark modules and exposes the
// functions they define to the render namespace.
//
// A capability module is a plain Starlark source file; every top-level
// function it defines is exported under its own name. Modules load in
// declaration order and a later module silently overrides an earlier
// function of the same name (no namespacing).
package capability

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/tmpl/pkg/errors"
	"github.com/arthur-debert/tmpl/pkg/logging"
	"go.starlark.net/starlark"
)

// Registry is the immutable capability table built once at startup.
type Registry struct {
	funcs map[string]starlark.Callable
}

// LoadModules executes each module file and collects its exported
// functions. Any read or evaluation failure is pipeline-fatal.
func LoadModules(paths []string) (*Registry, error) {
	logger := logging.GetLogger("capability")
	reg := &Registry{funcs: make(map[string]starlark.Callable)}

	for _, path := range paths {
		logger.Debug().Str("module", path).Msg("Loading capability module")
		thread := &starlark.Thread{
			Name: "tmpl:" + path,
			Print: func(_ *starlark.Thread, msg string) {
				logger.Info().Str("module", path).Msg(msg)
			},
		}
		globals, err := starlark.ExecFile(thread, path, nil, nil)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCapabilityLoad,
				"unable to load capability module %q", path)
		}

		exported := 0
		for name, value := range globals {
			fn, ok := value.(starlark.Callable)
			if !ok {
				continue
			}
			if _, exists := reg.funcs[name]; exists {
				logger.Debug().Str("function", name).Str("module", path).Msg("Overriding capability function")
			}
			reg.funcs[name] = fn
			exported++
		}
		if exported == 0 {
			logger.Warn().Str("module", path).Msg("Capability module defines no functions")
		}
	}
	return reg, nil
}

// Names returns the sorted exported function names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes a capability function with native Go argument values and
// returns a native result.
func (r *Registry) Call(name string, args ...interface{}) (interface{}, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("capability function %q is not defined", name)
	}
	tuple := make(starlark.Tuple, 0, len(args))
	for _, arg := range args {
		sv, err := toStarlark(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		tuple = append(tuple, sv)
	}
	thread := &starlark.Thread{Name: "tmpl:call:" + name}
	result, err := starlark.Call(thread, fn, tuple, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return fromStarlark(result)
}

// Each yields every exported function name.
func (r *Registry) Each(fn func(name string)) {
	for _, name := range r.Names() {
		fn(name)
	}
}

func toStarlark(v interface{}) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []interface{}:
		elems := make([]starlark.Value, 0, len(x))
		for _, e := range x {
			se, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, se)
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(x))
		for k, e := range x {
			se, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), se); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}

func fromStarlark(v starlark.Value) (interface{}, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		return x.String(), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case *starlark.List:
		out := make([]interface{}, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			e, err := fromStarlark(x.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			e, err := fromStarlark(x.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, x.Len())
		for _, item := range x.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			val, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	default:
		return v.String(), nil
	}
}

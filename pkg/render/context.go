package render

import (
	"strings"

	"github.com/arthur-debert/tmpl/pkg/capability"
	"github.com/arthur-debert/tmpl/pkg/config"
	"github.com/arthur-debert/tmpl/pkg/meta"
	"github.com/flosch/pongo2/v6"
)

// Namespace is the shared render namespace: merged variables, builtin
// functions, capability functions, and host metadata. It is read-only
// after construction; per-entry bindings are layered on with Bind.
type Namespace struct {
	base pongo2.Context
}

// BuildContext assembles the namespace from the merged document
// variables, the builtins, and the capability registry. Capability
// functions override builtins of the same name, mirroring the load
// order of the underlying modules.
func BuildContext(doc *config.Document, reg *capability.Registry, info *meta.Info, builtins map[string]interface{}) *Namespace {
	base := make(pongo2.Context, len(doc.Vars)+len(builtins)+8)

	for k, v := range doc.Vars {
		base[k] = v
	}
	for k, v := range builtins {
		base[k] = v
	}
	if reg != nil {
		reg.Each(func(name string) {
			fn := name
			base[fn] = builtinFunc(func(args ...*pongo2.Value) *pongo2.Value {
				native := make([]interface{}, len(args))
				for i, a := range args {
					native[i] = a.Interface()
				}
				out, err := reg.Call(fn, native...)
				if err != nil {
					abortf("%v", err)
				}
				return pongo2.AsValue(out)
			})
		})
	}
	if info != nil {
		base["hostname"] = info.Hostname
		base["fqdn"] = info.FQDN
		base["output_directory"] = info.OutputDir
		base["template_configuration_file"] = info.ConfPath
	}
	return &Namespace{base: base}
}

// Bind layers the per-entry values onto the shared namespace: "this"
// (the entry's own mapping) and "file" (the destination's base name),
// plus the context-dependent get and require functions.
func (ns *Namespace) Bind(this map[string]interface{}, file string) pongo2.Context {
	ctx := make(pongo2.Context, len(ns.base)+4)
	for k, v := range ns.base {
		ctx[k] = v
	}
	if this != nil {
		ctx["this"] = this
	}
	if file != "" {
		ctx["file"] = file
	}

	ctx["get"] = builtinFunc(func(args ...*pongo2.Value) *pongo2.Value {
		name := argString(args, 0, "get")
		if v, ok := ctx[name]; ok {
			return pongo2.AsValue(v)
		}
		return pongo2.AsValue(nil)
	})

	ctx["require"] = builtinFunc(func(args ...*pongo2.Value) *pongo2.Value {
		if len(args) == 0 {
			abortf("require() expects at least one variable name")
		}
		for _, arg := range args {
			name := arg.String()
			if err := resolveRequired(ctx, name); err != "" {
				abortf("%s", err)
			}
		}
		return pongo2.AsValue("")
	})

	return ctx
}

// resolveRequired checks one (optionally dotted, one level deep)
// variable reference and returns a failure message when absent.
func resolveRequired(ctx pongo2.Context, name string) string {
	head, tail, nested := strings.Cut(name, ".")
	value, ok := ctx[head]
	if !ok {
		return "required variable \"" + head + "\" not found within the render context"
	}
	if !nested {
		return ""
	}
	mapping, ok := value.(map[string]interface{})
	if !ok {
		return "required variable \"" + name + "\" not found within the render context"
	}
	if _, ok := mapping[tail]; !ok {
		return "required variable \"" + name + "\" not found within the render context"
	}
	return ""
}

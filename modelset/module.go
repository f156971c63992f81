package modelset

import (
	"context"

	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/uri"
)

// SetModuleKey is the ModuleProvider key for modules that apply to every
// model of a set.
const SetModuleKey = "*"

// Capability is a named behavior made available to a model's handle.
type Capability struct {
	Name string
	Impl any
}

// Module describes what a handle can see: one writable graph, the readable
// graphs, namespace bindings and capabilities. Modules are values; Union
// returns a new module.
type Module struct {
	Writable     uri.URI
	Readable     []uri.URI
	Namespaces   []rdf.Namespace
	Capabilities []Capability
}

// Union adds other's readable graphs, namespaces and capabilities to m.
// Entries already in m win, so the first binding of a prefix is kept. The
// writable graph of other is ignored.
func (m Module) Union(other Module) Module {
	out := Module{Writable: m.Writable}
	out.Readable = appendURIs(append([]uri.URI(nil), m.Readable...), other.Readable)
	out.Namespaces = appendNamespaces(append([]rdf.Namespace(nil), m.Namespaces...), other.Namespaces)
	out.Capabilities = appendCapabilities(append([]Capability(nil), m.Capabilities...), other.Capabilities)
	return out
}

// CanRead reports whether g is one of the module's readable graphs.
func (m Module) CanRead(g uri.URI) bool {
	for _, r := range m.Readable {
		if r == g {
			return true
		}
	}
	return false
}

// Namespace returns the IRI bound to prefix.
func (m Module) Namespace(prefix string) (string, bool) {
	for _, ns := range m.Namespaces {
		if ns.Prefix == prefix {
			return ns.IRI, true
		}
	}
	return "", false
}

func appendURIs(dst, src []uri.URI) []uri.URI {
	for _, u := range src {
		found := false
		for _, have := range dst {
			if have == u {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, u)
		}
	}
	return dst
}

func appendNamespaces(dst, src []rdf.Namespace) []rdf.Namespace {
	for _, ns := range src {
		found := false
		for _, have := range dst {
			if have.Prefix == ns.Prefix {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, ns)
		}
	}
	return dst
}

func appendCapabilities(dst, src []Capability) []Capability {
	for _, c := range src {
		found := false
		for _, have := range dst {
			if have.Name == c.Name {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, c)
		}
	}
	return dst
}

// ModuleProvider supplies extra modules. Keys are model URIs, or SetModuleKey
// for modules shared by the whole set.
type ModuleProvider interface {
	Modules(ctx context.Context, key string) []Module
}

// ModuleProviderFunc adapts a function to ModuleProvider.
type ModuleProviderFunc func(ctx context.Context, key string) []Module

func (f ModuleProviderFunc) Modules(ctx context.Context, key string) []Module { return f(ctx, key) }

// StaticModules serves fixed modules per key.
type StaticModules map[string][]Module

func (s StaticModules) Modules(_ context.Context, key string) []Module { return s[key] }

// CapabilityAs returns the first capability of h implementing T.
func CapabilityAs[T any](h *Handle) (T, bool) {
	for _, c := range h.module.Capabilities {
		if impl, ok := c.Impl.(T); ok {
			return impl, true
		}
	}
	var zero T
	return zero, false
}

// Package exporter turns report graphs into candidate indicator rows and
// renders indicator feeds for downstream SIEMs.
package exporter

import (
	"fmt"
	"sort"

	"github.com/hive-corporation/actionables/internal/core/ports"
)

// Registry maps exporter names to implementations.
type Registry struct {
	byName map[string]ports.Exporter
}

func NewRegistry(exporters ...ports.Exporter) *Registry {
	r := &Registry{byName: make(map[string]ports.Exporter, len(exporters))}
	for _, e := range exporters {
		r.byName[e.Name()] = e
	}
	return r
}

// Builtins returns a registry holding every built-in exporter.
func Builtins() *Registry {
	return NewRegistry(
		HashExporter{},
		IPExporter{},
		FQDNExporter{},
		URLExporter{},
		EmailExporter{},
	)
}

func (r *Registry) Get(name string) (ports.Exporter, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Names lists registered exporters in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select resolves the configured exporter names in order.
func (r *Registry) Select(names []string) ([]ports.Exporter, error) {
	out := make([]ports.Exporter, 0, len(names))
	for _, n := range names {
		e, ok := r.byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown exporter %q", n)
		}
		out = append(out, e)
	}
	return out, nil
}

package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps ledger instance names to their routers.
type Registry struct {
	routers  map[string]*Router
	fallback string
}

// NewRegistry indexes routers by instance. defaultInstance must be one of them.
func NewRegistry(defaultInstance string, routers ...*Router) (*Registry, error) {
	reg := &Registry{
		routers:  make(map[string]*Router, len(routers)),
		fallback: strings.TrimSpace(defaultInstance),
	}
	for _, r := range routers {
		if r == nil {
			continue
		}
		name := r.Instance()
		if _, dup := reg.routers[name]; dup {
			return nil, fmt.Errorf("duplicate ledger instance %q", name)
		}
		reg.routers[name] = r
	}
	if _, ok := reg.routers[reg.fallback]; !ok {
		return nil, fmt.Errorf("default ledger instance %q has no router", reg.fallback)
	}
	return reg, nil
}

// Get returns the router for instance; an empty name selects the default.
func (g *Registry) Get(instance string) (*Router, bool) {
	if g == nil {
		return nil, false
	}
	name := strings.TrimSpace(instance)
	if name == "" {
		name = g.fallback
	}
	r, ok := g.routers[name]
	return r, ok
}

// Default returns the default instance router.
func (g *Registry) Default() *Router {
	r, _ := g.Get("")
	return r
}

// Names lists the registered instances in sorted order.
func (g *Registry) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.routers))
	for name := range g.routers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Routers returns every router in instance order.
func (g *Registry) Routers() []*Router {
	names := g.Names()
	out := make([]*Router, 0, len(names))
	for _, name := range names {
		out = append(out, g.routers[name])
	}
	return out
}

package plugin

import (
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/opnet-chain/opnetd/errors"
)

// Plugin is the full record the registry tracks for one installed
// plugin, per spec.md's "Plugin record" definition.
type Plugin struct {
	ID         string
	FilePath   string
	Metadata   *Metadata
	File       *PluginFile
	Lifecycle  *Lifecycle
	LoadOrder  int
	Dependencies []string
	Dependents   []string
	ErrorInfo    error
	LoadedAt     time.Time
	EnabledAt    time.Time

	// LastSyncedBlock supports the reindex protocol (spec.md §4.8);
	// persisted to the document store under a plugin-scoped state key.
	LastSyncedBlock uint64
}

// Registry tracks every discovered plugin and resolves their dependency
// DAG into load/unload orders.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]*Plugin)}
}

// Add registers a newly discovered plugin.
func (r *Registry) Add(p *Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID] = p
}

// Get returns a plugin by id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// All returns every registered plugin, unordered.
func (r *Registry) All() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}

// ResolveDependencies validates the full dependency graph and returns a
// load order: (a) rejects circular dependencies; (b) rejects missing
// dependencies; (c) rejects semver-range mismatches against installed
// dependency versions; (d) topologically sorts, breaking ties by each
// plugin's optional lifecycle.loadPriority (lower loads earlier).
func (r *Registry) ResolveDependencies() ([]*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		for _, dep := range p.Metadata.Dependencies {
			depPlugin, ok := r.plugins[dep.Name]
			if !ok {
				return nil, errors.NewMissingDependencyError("plugin %s depends on missing plugin %s", p.ID, dep.Name)
			}

			constraint, err := semver.NewConstraint(dep.VersionRange)
			if err != nil {
				return nil, errors.NewValidationError("plugin %s: invalid dependency range %q for %s", p.ID, dep.VersionRange, dep.Name)
			}
			depVersion, err := semver.NewVersion(depPlugin.Metadata.Version)
			if err != nil {
				return nil, errors.NewValidationError("plugin %s: installed dependency %s has invalid version %q", p.ID, dep.Name, depPlugin.Metadata.Version)
			}
			if !constraint.Check(depVersion) {
				return nil, errors.NewSemverMismatchError("plugin %s requires %s %s, installed %s", p.ID, dep.Name, dep.VersionRange, depPlugin.Metadata.Version)
			}
		}
	}

	order, err := topologicalOrder(r.plugins)
	if err != nil {
		return nil, err
	}

	for i, p := range order {
		p.LoadOrder = i
	}
	return order, nil
}

// GetUnloadOrder is ResolveDependencies's reverse: dependents unload
// before their dependencies.
func (r *Registry) GetUnloadOrder() ([]*Plugin, error) {
	order, err := r.ResolveDependencies()
	if err != nil {
		return nil, err
	}
	reversed := make([]*Plugin, len(order))
	for i, p := range order {
		reversed[len(order)-1-i] = p
	}
	return reversed, nil
}

// topologicalOrder first detects cycles via DFS (cycles are rejected
// regardless of loadPriority), then produces the actual load order with
// Kahn's algorithm: among all plugins whose dependencies have already
// been placed, the one with the lowest lifecycle.loadPriority (ties
// broken by id) is placed next. This keeps the result a true
// topological order while still honoring loadPriority as the
// tie-breaker the spec calls for, rather than letting priority override
// dependency ordering outright.
func topologicalOrder(plugins map[string]*Plugin) ([]*Plugin, error) {
	if err := detectCycles(plugins); err != nil {
		return nil, err
	}

	remaining := make(map[string][]string, len(plugins))
	for id, p := range plugins {
		deps := make([]string, len(p.Metadata.Dependencies))
		for i, d := range p.Metadata.Dependencies {
			deps[i] = d.Name
		}
		remaining[id] = deps
	}

	placed := make(map[string]bool, len(plugins))
	var order []*Plugin

	for len(order) < len(plugins) {
		var ready []string
		for id, deps := range remaining {
			if placed[id] {
				continue
			}
			if allPlaced(deps, placed) {
				ready = append(ready, id)
			}
		}

		if len(ready) == 0 {
			return nil, errors.NewCircularDependencyError("plugin dependency cycle detected among remaining plugins")
		}

		sort.Slice(ready, func(i, j int) bool {
			pi, pj := loadPriority(plugins[ready[i]]), loadPriority(plugins[ready[j]])
			if pi != pj {
				return pi < pj
			}
			return ready[i] < ready[j]
		})

		next := ready[0]
		placed[next] = true
		order = append(order, plugins[next])
	}

	return order, nil
}

func allPlaced(deps []string, placed map[string]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}

func detectCycles(plugins map[string]*Plugin) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(plugins))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return errors.NewCircularDependencyError("plugin dependency cycle detected: %v -> %s", path, id)
		}

		color[id] = gray
		p := plugins[id]
		deps := make([]string, len(p.Metadata.Dependencies))
		for i, d := range p.Metadata.Dependencies {
			deps[i] = d.Name
		}
		sort.Strings(deps)

		for _, dep := range deps {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}

		color[id] = black
		return nil
	}

	ids := make([]string, 0, len(plugins))
	for id := range plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return err
		}
	}
	return nil
}

func loadPriority(p *Plugin) int {
	if p.Metadata.Lifecycle == nil {
		return 0
	}
	return p.Metadata.Lifecycle.LoadPriority
}

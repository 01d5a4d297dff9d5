package check

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a Check from a raw configuration map.
// name is the name the check's state will be tracked under; env carries the
// helpers a check may need.
type Factory func(name string, config map[string]any, env Env) (Check, error)

// Registry holds registered check types and their factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a check type factory under the given type name.
// Returns an error if the name is already registered.
func (r *Registry) Register(typeName string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("check type %q is already registered", typeName)
	}
	r.factories[typeName] = factory
	return nil
}

// Create instantiates a Check of the given type using the provided config.
// Returns an error if the type is not registered or the factory fails.
func (r *Registry) Create(typeName, name string, config map[string]any, env Env) (Check, error) {
	r.mu.RLock()
	factory, exists := r.factories[typeName]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown check type %q", typeName)
	}
	return factory(name, config, env.withDefaults())
}

// Types returns the names of all registered check types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	return types
}

// Build creates one Descriptor per entry of configs, sorted by name.
//
// Each config may carry a "type" key selecting the factory; when absent the
// check name doubles as its type. A config with "enabled": false is skipped.
func (r *Registry) Build(configs map[string]map[string]any, env Env) ([]Descriptor, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		cfg := configs[name]
		enabled, err := Bool(cfg, "enabled", true)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", name, err)
		}
		if !enabled {
			env.withDefaults().Logger.Debugf("Check %s is disabled, skipping", name)
			continue
		}
		typeName, err := String(cfg, "type", name)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", name, err)
		}
		chk, err := r.Create(typeName, name, cfg, env)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", name, err)
		}
		descs = append(descs, Descriptor{Name: name, Check: chk})
	}
	return descs, nil
}

// Package registry holds the installable unit types known to the binary.
package registry

import (
	"fmt"
	"sort"
	"sync"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/plugin"
)

// StaticRegistry implements plugin.Registry with a map filled at startup.
type StaticRegistry struct {
	factories map[string]plugin.Factory
	mu        sync.RWMutex
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{factories: make(map[string]plugin.Factory)}
}

// Register associates a unit type name with its factory. Empty names, nil
// factories and duplicates are rejected.
func (r *StaticRegistry) Register(name string, factory plugin.Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return txerrors.NewConfigError("unit registration error: name cannot be empty", nil)
	}
	if factory == nil {
		return txerrors.NewConfigError(fmt.Sprintf("unit registration error for '%s': factory cannot be nil", name), nil)
	}
	if _, exists := r.factories[name]; exists {
		return txerrors.NewConfigError(fmt.Sprintf("unit registration error: duplicate unit type '%s'", name), nil)
	}
	r.factories[name] = factory
	return nil
}

// Get returns the factory registered under name.
func (r *StaticRegistry) Get(name string) (plugin.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, txerrors.NewUnitNotFoundError(name)
	}
	return factory, nil
}

// List returns the registered unit type names in sorted order.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	globalRegistry = NewStaticRegistry()

	_ plugin.Registry = (*StaticRegistry)(nil)
)

// Register adds a unit type to the process-wide registry. Unit packages call
// it from init; a registration error is a programming mistake and panics.
func Register(name string, factory plugin.Factory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(fmt.Errorf("failed to register unit type '%s' globally: %w", name, err))
	}
}

// Default is the process-wide registry filled by Register.
var Default plugin.Registry = globalRegistry

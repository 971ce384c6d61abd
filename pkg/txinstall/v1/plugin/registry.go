// Package plugin defines the contract between the installer engine and the
// installable unit types it can instantiate from a component manifest.
package plugin

import (
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
)

// Factory creates a new, unconfigured instance of an installable unit.
// Each unit type registers one factory under its type name.
type Factory func() installer.Installer

// Configurable is implemented by units that accept parameters from a
// component manifest.
type Configurable interface {
	// Configure receives the unit's params after template rendering. String
	// values have already been resolved against the install parameters.
	// Configure is called exactly once, before the unit joins the tree.
	// A returned error aborts discovery of the whole component.
	Configure(params map[string]interface{}) error
}

// Registry maps unit type names to factories.
type Registry interface {
	// Get retrieves the factory for a unit type.
	// It returns a txerrors.UnitNotFoundError if the name is not registered.
	Get(name string) (Factory, error)

	// Register associates a unit type name with its factory function.
	// Implementations must be concurrency-safe and reject an empty name,
	// a nil factory or a duplicate name.
	Register(name string, factory Factory) error

	// List returns the registered unit type names in sorted order.
	List() []string
}

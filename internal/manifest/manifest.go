// Package manifest loads component manifests: YAML documents that list the
// installable units of a component in install order.
package manifest

import "fmt"

// Manifest is the top-level structure of a component manifest.
type Manifest struct {
	SchemaVersion string `yaml:"schemaVersion"`
	Name          string `yaml:"name,omitempty"`
	Description   string `yaml:"description,omitempty"`
	Units         []Unit `yaml:"units"`

	// FilePath is the absolute path the manifest was read from.
	FilePath string `yaml:"-"`
}

// Unit declares one installable unit.
type Unit struct {
	Name string `yaml:"name,omitempty"`
	// Type is the registered unit type, such as "file" or "exec".
	Type string `yaml:"type"`
	// Enabled defaults to true when omitted.
	Enabled *bool                  `yaml:"enabled,omitempty"`
	Params  map[string]interface{} `yaml:"params,omitempty"`
}

// IsEnabled reports whether the unit takes part in installation.
func (u Unit) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// DisplayName returns the unit's name, or its type and position when it has
// no name.
func (u Unit) DisplayName(index int) string {
	if u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("%s#%d", u.Type, index)
}

// EnabledUnits returns the enabled units in declaration order.
func (m *Manifest) EnabledUnits() []Unit {
	out := make([]Unit, 0, len(m.Units))
	for _, u := range m.Units {
		if u.IsEnabled() {
			out = append(out, u)
		}
	}
	return out
}

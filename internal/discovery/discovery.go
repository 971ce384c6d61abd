// Package discovery turns component manifests into installer factories.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gxo-labs/txinstall/internal/manifest"
	"github.com/gxo-labs/txinstall/internal/secrets"
	"github.com/gxo-labs/txinstall/internal/template"
	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/plugin"
	txsecrets "github.com/gxo-labs/txinstall/pkg/txinstall/v1/secrets"
)

// ManifestExtensions are tried, in order, when a component is named instead
// of given by path.
var ManifestExtensions = []string{".yaml", ".yml"}

// ManifestDiscoverer implements installer.Discoverer by reading the YAML
// manifest at the component source. Unit params are rendered against the
// parameters of the install context carried by ctx, then handed to the unit's
// Configure method.
type ManifestDiscoverer struct {
	registry plugin.Registry
	secrets  txsecrets.Provider
}

// Option customizes a ManifestDiscoverer.
type Option func(*ManifestDiscoverer)

// WithSecrets makes the secret template function resolve through p.
func WithSecrets(p txsecrets.Provider) Option {
	return func(d *ManifestDiscoverer) { d.secrets = p }
}

// NewManifestDiscoverer creates a discoverer that instantiates units from reg.
func NewManifestDiscoverer(reg plugin.Registry, opts ...Option) *ManifestDiscoverer {
	d := &ManifestDiscoverer{registry: reg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover loads the manifest at source and returns one factory per enabled
// unit, in manifest order. Params are rendered eagerly so that a template
// error fails discovery rather than installation.
func (d *ManifestDiscoverer) Discover(ctx context.Context, source string) ([]installer.Factory, error) {
	m, err := manifest.LoadFile(source, d.registry)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{}
	var bus events.Bus
	if ic, ok := installer.InstallContextFrom(ctx); ok {
		for k, v := range ic.Parameters() {
			data[k] = v
		}
		bus = ic.Events()
		ic.Logger().Debugf("Discovered %d unit(s) in manifest '%s'", len(m.Units), source)
	}

	tracker := secrets.NewSecretTracker()
	renderer := template.NewGoRenderer(d.secrets, bus, tracker)

	var factories []installer.Factory
	for i, u := range m.Units {
		if !u.IsEnabled() {
			continue
		}
		unitFactory, err := d.registry.Get(u.Type)
		if err != nil {
			return nil, err
		}
		params, err := renderer.RenderParams(u.Params, data)
		if err != nil {
			return nil, txerrors.NewValidationError(fmt.Sprintf("unit '%s': cannot render params", u.DisplayName(i)), err)
		}
		factories = append(factories, unitInstance(unitFactory, u.DisplayName(i), u.Type, params, tracker))
	}
	return factories, nil
}

func unitInstance(factory plugin.Factory, name, unitType string, params map[string]interface{}, tracker *secrets.SecretTracker) installer.Factory {
	return func() (installer.Installer, error) {
		inst := factory()
		if inst == nil {
			return nil, fmt.Errorf("unit type '%s' produced no installer", unitType)
		}
		if inst.Base().Name == "" {
			inst.Base().Name = name
		}

		configurable, ok := inst.(plugin.Configurable)
		if !ok {
			if len(params) > 0 {
				return nil, txerrors.NewValidationError(fmt.Sprintf("unit '%s' of type '%s' takes no params", name, unitType), nil)
			}
			return inst, nil
		}

		withTracker := make(map[string]interface{}, len(params)+1)
		for k, v := range params {
			withTracker[k] = v
		}
		withTracker[secrets.TrackerParamKey] = tracker
		if err := configurable.Configure(withTracker); err != nil {
			return nil, txerrors.NewValidationError(fmt.Sprintf("unit '%s' of type '%s' rejected its params", name, unitType), err)
		}
		return inst, nil
	}
}

// ResolveComponent finds the manifest of a component given by name. Each
// directory of searchPath is tried with every ManifestExtensions entry; a name
// that already names an existing file is returned as is.
func ResolveComponent(name string, searchPath []string) (string, error) {
	if name == "" {
		return "", txerrors.NewArgumentError("component name cannot be empty", nil)
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return filepath.Abs(name)
	}

	var tried []string
	for _, dir := range searchPath {
		if dir == "" {
			continue
		}
		for _, ext := range ManifestExtensions {
			candidate := filepath.Join(dir, name+ext)
			tried = append(tried, candidate)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return filepath.Abs(candidate)
			}
		}
	}
	return "", txerrors.NewConfigError(
		fmt.Sprintf("component '%s' was not found (searched: %s)", name, strings.Join(tried, ", ")), nil)
}

// SplitSearchPath splits a list of directories joined with the OS path list
// separator.
func SplitSearchPath(list string) []string {
	if list == "" {
		return nil
	}
	return filepath.SplitList(list)
}

var _ installer.Discoverer = (*ManifestDiscoverer)(nil)

package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/gxo-labs/txinstall/internal/template"
	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/plugin"
)

// Validate performs the checks the JSON schema cannot express: unit names
// are unique, unit types are registered and templates in params parse. It
// returns every problem found.
func Validate(m *Manifest, reg plugin.Registry) []error {
	var errs []error
	names := make(map[string]int)
	// parse-only; functions are resolved at render time
	parser := template.NewGoRenderer(noSecrets{}, nil, nil)

	for i, u := range m.Units {
		label := fmt.Sprintf("unit %d", i)
		if u.Name != "" {
			label = fmt.Sprintf("unit %d ('%s')", i, u.Name)
			if prev, exists := names[u.Name]; exists {
				errs = append(errs, txerrors.NewValidationError(fmt.Sprintf("%s: duplicate unit name, first used by unit %d", label, prev), nil))
			} else {
				names[u.Name] = i
			}
		}

		if u.Type == "" {
			errs = append(errs, txerrors.NewValidationError(fmt.Sprintf("%s: 'type' is required", label), nil))
		} else if reg != nil {
			if _, err := reg.Get(u.Type); err != nil {
				errs = append(errs, txerrors.NewValidationError(fmt.Sprintf("%s: unknown unit type '%s'", label, u.Type), err))
			}
		}

		for _, tmpl := range collectTemplates(u.Params) {
			if _, err := parser.ExtractVariables(tmpl); err != nil {
				errs = append(errs, txerrors.NewValidationError(fmt.Sprintf("%s: error parsing template [%s]: %v", label, tmpl, err), err))
			}
		}
	}
	return errs
}

func collectTemplates(v interface{}) []string {
	var out []string
	switch val := v.(type) {
	case string:
		if strings.Contains(val, "{{") {
			out = append(out, val)
		}
	case map[string]interface{}:
		for _, item := range val {
			out = append(out, collectTemplates(item)...)
		}
	case []interface{}:
		for _, item := range val {
			out = append(out, collectTemplates(item)...)
		}
	}
	return out
}

// noSecrets makes the secret function known to the parser without resolving
// anything.
type noSecrets struct{}

func (noSecrets) GetSecret(context.Context, string) (string, bool, error) { return "", false, nil }

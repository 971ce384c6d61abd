package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/plugin"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaMajor is the manifest schema major version this engine reads.
const SupportedSchemaMajor = "v1"

// Load parses and validates a manifest. filePathHint is used in messages.
// When reg is not nil, every unit type must be registered in it.
func Load(manifestYAML []byte, filePathHint string, reg plugin.Registry) (*Manifest, error) {
	if len(bytes.TrimSpace(manifestYAML)) == 0 {
		return nil, txerrors.NewConfigError(fmt.Sprintf("manifest '%s' is empty", filePathHint), nil)
	}

	if err := ValidateWithSchema(manifestYAML); err != nil {
		return nil, txerrors.NewConfigError(fmt.Sprintf("manifest '%s' failed schema validation", filePathHint), err)
	}

	var m Manifest
	if err := yamlUnmarshalStrict(manifestYAML, &m); err != nil {
		return nil, txerrors.NewConfigError(fmt.Sprintf("failed to parse manifest YAML '%s'", filePathHint), err)
	}
	m.FilePath = filePathHint

	if err := checkSchemaVersion(m.SchemaVersion, filePathHint); err != nil {
		return nil, err
	}

	if errs := Validate(&m, reg); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.Error()
		}
		combined := fmt.Sprintf("manifest '%s' has %d validation error(s):\n- %s",
			filePathHint, len(messages), strings.Join(messages, "\n- "))
		return nil, txerrors.NewValidationError(combined, errs[0])
	}
	return &m, nil
}

// LoadFile reads and validates the manifest at path.
func LoadFile(path string, reg plugin.Registry) (*Manifest, error) {
	if path == "" {
		return nil, txerrors.NewConfigError("manifest path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, txerrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", path), err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, txerrors.NewConfigError(fmt.Sprintf("failed to read manifest '%s'", absPath), err)
	}
	return Load(data, absPath, reg)
}

func checkSchemaVersion(version, filePathHint string) error {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return txerrors.NewValidationError(fmt.Sprintf("manifest '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, version), nil)
	}
	if semver.Major(v) != SupportedSchemaMajor {
		return txerrors.NewValidationError(
			fmt.Sprintf("manifest '%s' schemaVersion '%s' is not compatible with engine requirement '%s'",
				filePathHint, version, SupportedSchemaMajor), nil)
	}
	return nil
}

func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(in))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}

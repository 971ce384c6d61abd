package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed manifest_schema_v1.json
var schemaV1Bytes []byte

var (
	schemaV1   *gojsonschema.Schema
	schemaOnce sync.Once
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = txerrors.NewConfigError("embedded manifest schema is empty", nil)
			return
		}
		schemaV1, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaV1Bytes))
		if schemaErr != nil {
			schemaErr = txerrors.NewConfigError("failed to compile embedded manifest schema", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidateWithSchema checks the structure of a YAML manifest document.
func ValidateWithSchema(documentYAML []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	var doc interface{}
	if err := yaml.Unmarshal(documentYAML, &doc); err != nil {
		return txerrors.NewConfigError("failed to parse manifest YAML for schema validation", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return txerrors.NewConfigError("schema validation process failed", err)
	}
	if result.Valid() {
		return nil
	}

	msg := "manifest failed JSON schema validation:"
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" || field == "" {
			field = desc.Context().String()
		}
		msg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
	}
	return txerrors.NewValidationError(msg, nil)
}

// Package paramutil decodes and checks the params a unit receives from its
// component manifest.
package paramutil

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/mitchellh/mapstructure"
)

// Decode copies params into the struct pointed to by out. Fields are matched
// by their `param` tag. Unknown params are an error, strings are converted to
// numbers and booleans, "30s" style strings become time.Duration values, and
// a string for an os.FileMode field is read as octal.
func Decode(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "param",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			octalFileModeHook,
		),
	})
	if err != nil {
		return txerrors.NewConfigError("cannot build parameter decoder", err)
	}
	if err := decoder.Decode(params); err != nil {
		return txerrors.NewValidationError("invalid unit parameters", err)
	}
	return nil
}

var fileModeType = reflect.TypeOf(os.FileMode(0))

func octalFileModeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != fileModeType || from.Kind() != reflect.String {
		return data, nil
	}
	mode, err := strconv.ParseUint(data.(string), 8, 32)
	if err != nil {
		return nil, fmt.Errorf("'%v' is not an octal file mode", data)
	}
	return os.FileMode(mode), nil
}

// CheckRequired returns a ValidationError naming the first missing key, in
// the order given.
func CheckRequired(params map[string]interface{}, required ...string) error {
	for _, key := range required {
		if v, exists := params[key]; !exists || v == nil {
			return txerrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
		}
	}
	return nil
}

// CheckExclusive fails when more than one of keys is set.
func CheckExclusive(params map[string]interface{}, keys ...string) error {
	var present []string
	for _, key := range keys {
		if _, exists := params[key]; exists {
			present = append(present, key)
		}
	}
	if len(present) > 1 {
		sort.Strings(present)
		return txerrors.NewValidationError(fmt.Sprintf("parameters '%s' and '%s' are mutually exclusive", present[0], present[1]), nil)
	}
	return nil
}

// GetOptionalString returns params[key] when it is a string. A value of any
// other type is a ValidationError.
func GetOptionalString(params map[string]interface{}, key string) (string, bool, error) {
	value, exists := params[key]
	if !exists {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, txerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}
	return s, true, nil
}

package state

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/mod/semver"
)

// FormatVersion is written into every state document.
const FormatVersion = "v1.0.0"

// SupportedFormatMajor is the document major version this serializer reads.
const SupportedFormatMajor = "v1"

// Value type tags used in state documents.
const (
	tagNull    = "null"
	tagString  = "string"
	tagBool    = "bool"
	tagInt     = "int"
	tagInt32   = "int32"
	tagInt64   = "int64"
	tagUint    = "uint"
	tagUint64  = "uint64"
	tagFloat32 = "float32"
	tagFloat64 = "float64"
	tagTime    = "time"
	tagBytes   = "bytes"
	tagMap     = "map"
	tagObject  = "object"
	tagMaps    = "maps"
	tagList    = "list"
	tagStrings = "strings"
)

//go:embed state_schema_v1.json
var schemaV1Bytes []byte

var (
	schemaV1   *gojsonschema.Schema
	schemaOnce sync.Once
	schemaErr  error
)

// loadSchema compiles the embedded document schema once.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = txerrors.NewConfigError("embedded state schema is empty", nil)
			return
		}
		schemaV1, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaV1Bytes))
		if schemaErr != nil {
			schemaErr = txerrors.NewConfigError("failed to compile embedded state schema", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// Serializer converts State Maps to and from their durable text form.
type Serializer interface {
	Serialize(m Map) ([]byte, error)
	Deserialize(data []byte) (Map, error)
}

// JSONSerializer writes State Maps as type-tagged JSON documents. Every value
// carries its Go type so that integers, floats, nils and nested maps come back
// exactly as they were written.
type JSONSerializer struct {
	// Indent produces human-readable output.
	Indent bool
}

// NewJSONSerializer returns a serializer producing indented documents.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{Indent: true}
}

type document struct {
	FormatVersion string                 `json:"formatVersion"`
	State         map[string]taggedValue `json:"state"`
}

type taggedValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Serialize encodes m. A value of an unsupported Go type is an ArgumentError.
func (s *JSONSerializer) Serialize(m Map) ([]byte, error) {
	encoded, err := encodeMap(m, "")
	if err != nil {
		return nil, err
	}
	if encoded == nil {
		encoded = map[string]taggedValue{}
	}
	doc := document{FormatVersion: FormatVersion, State: encoded}

	var data []byte
	if s.Indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, txerrors.NewArgumentError("failed to encode state document", err)
	}
	return data, nil
}

// Deserialize decodes a document produced by Serialize. Any malformed input
// is reported as a CorruptStateError.
func (s *JSONSerializer) Deserialize(data []byte) (Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, txerrors.NewCorruptStateError("state document is empty", nil)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, txerrors.NewCorruptStateError("state document is not valid JSON", err)
	}
	if !result.Valid() {
		msg := "state document failed schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			msg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return nil, txerrors.NewCorruptStateError(msg, nil)
	}

	var doc document
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, txerrors.NewCorruptStateError("failed to decode state document", err)
	}

	version := doc.FormatVersion
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) || semver.Major(version) != SupportedFormatMajor {
		return nil, txerrors.NewCorruptStateError(
			fmt.Sprintf("state document format version '%s' is not compatible with '%s'", doc.FormatVersion, SupportedFormatMajor), nil)
	}

	m, err := decodeMap(doc.State, "")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func encodeMap(m Map, path string) (map[string]taggedValue, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]taggedValue, len(m))
	for key, value := range m {
		tv, err := encodeValue(value, childPath(path, key))
		if err != nil {
			return nil, err
		}
		out[key] = tv
	}
	return out, nil
}

func tagged(tag string, v interface{}) (taggedValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return taggedValue{}, txerrors.NewArgumentError(fmt.Sprintf("failed to encode %s value", tag), err)
	}
	return taggedValue{Type: tag, Value: raw}, nil
}

func encodeValue(v interface{}, path string) (taggedValue, error) {
	switch x := v.(type) {
	case nil:
		return taggedValue{Type: tagNull}, nil
	case string:
		return tagged(tagString, x)
	case bool:
		return tagged(tagBool, x)
	case int:
		return tagged(tagInt, strconv.FormatInt(int64(x), 10))
	case int32:
		return tagged(tagInt32, strconv.FormatInt(int64(x), 10))
	case int64:
		return tagged(tagInt64, strconv.FormatInt(x, 10))
	case uint:
		return tagged(tagUint, strconv.FormatUint(uint64(x), 10))
	case uint64:
		return tagged(tagUint64, strconv.FormatUint(x, 10))
	case float32:
		return tagged(tagFloat32, strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return tagged(tagFloat64, strconv.FormatFloat(x, 'g', -1, 64))
	case time.Time:
		return tagged(tagTime, x.Format(time.RFC3339Nano))
	case []byte:
		return tagged(tagBytes, x)
	case []string:
		return tagged(tagStrings, x)
	case Map:
		nested, err := encodeMap(x, path)
		if err != nil {
			return taggedValue{}, err
		}
		return tagged(tagMap, nested)
	case map[string]interface{}:
		nested, err := encodeMap(Map(x), path)
		if err != nil {
			return taggedValue{}, err
		}
		return tagged(tagObject, nested)
	case []Map:
		if x == nil {
			return tagged(tagMaps, nil)
		}
		items := make([]map[string]taggedValue, len(x))
		for i, item := range x {
			nested, err := encodeMap(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return taggedValue{}, err
			}
			items[i] = nested
		}
		return tagged(tagMaps, items)
	case []interface{}:
		if x == nil {
			return tagged(tagList, nil)
		}
		items := make([]taggedValue, len(x))
		for i, item := range x {
			tv, err := encodeValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return taggedValue{}, err
			}
			items[i] = tv
		}
		return tagged(tagList, items)
	default:
		return taggedValue{}, txerrors.NewArgumentError(
			fmt.Sprintf("state value '%s' has unsupported type %T", path, v), nil)
	}
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeMap(m map[string]taggedValue, path string) (Map, error) {
	if m == nil {
		return nil, nil
	}
	out := make(Map, len(m))
	for key, tv := range m {
		v, err := decodeValue(tv, childPath(path, key))
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func corruptValue(tag, path string, cause error) error {
	return txerrors.NewCorruptStateError(fmt.Sprintf("invalid %s value at '%s'", tag, path), cause)
}

// decodeNumber unmarshals the quoted decimal text of a numeric value.
func decodeNumber(tv taggedValue, path string) (string, error) {
	var text string
	if err := json.Unmarshal(tv.Value, &text); err != nil {
		return "", corruptValue(tv.Type, path, err)
	}
	return text, nil
}

func decodeValue(tv taggedValue, path string) (interface{}, error) {
	switch tv.Type {
	case tagNull:
		return nil, nil

	case tagString:
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		return s, nil

	case tagBool:
		var b bool
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		return b, nil

	case tagInt, tagInt32, tagInt64:
		text, err := decodeNumber(tv, path)
		if err != nil {
			return nil, err
		}
		bits := 64
		switch tv.Type {
		case tagInt:
			bits = strconv.IntSize
		case tagInt32:
			bits = 32
		}
		n, err := strconv.ParseInt(text, 10, bits)
		if err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		switch tv.Type {
		case tagInt:
			return int(n), nil
		case tagInt32:
			return int32(n), nil
		}
		return n, nil

	case tagUint, tagUint64:
		text, err := decodeNumber(tv, path)
		if err != nil {
			return nil, err
		}
		bits := 64
		if tv.Type == tagUint {
			bits = strconv.IntSize
		}
		n, err := strconv.ParseUint(text, 10, bits)
		if err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		if tv.Type == tagUint {
			return uint(n), nil
		}
		return n, nil

	case tagFloat32, tagFloat64:
		text, err := decodeNumber(tv, path)
		if err != nil {
			return nil, err
		}
		if tv.Type == tagFloat32 {
			f, err := strconv.ParseFloat(text, 32)
			if err != nil {
				return nil, corruptValue(tv.Type, path, err)
			}
			return float32(f), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		return f, nil

	case tagTime:
		var text string
		if err := json.Unmarshal(tv.Value, &text); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		return t, nil

	case tagBytes:
		var b []byte
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		return b, nil

	case tagStrings:
		var items []string
		if err := json.Unmarshal(tv.Value, &items); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		return items, nil

	case tagMap, tagObject:
		if isNullRaw(tv.Value) && len(bytes.TrimSpace(tv.Value)) > 0 {
			if tv.Type == tagObject {
				return map[string]interface{}(nil), nil
			}
			return Map(nil), nil
		}
		var nested map[string]taggedValue
		if err := json.Unmarshal(tv.Value, &nested); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		m, err := decodeMap(nested, path)
		if err != nil {
			return nil, err
		}
		if tv.Type == tagObject {
			return map[string]interface{}(m), nil
		}
		return m, nil

	case tagMaps:
		var raws []json.RawMessage
		if err := json.Unmarshal(tv.Value, &raws); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		if raws == nil {
			return []Map(nil), nil
		}
		items := make([]Map, len(raws))
		for i, raw := range raws {
			if isNullRaw(raw) {
				continue
			}
			var nested map[string]taggedValue
			if err := json.Unmarshal(raw, &nested); err != nil {
				return nil, corruptValue(tv.Type, fmt.Sprintf("%s[%d]", path, i), err)
			}
			m, err := decodeMap(nested, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			items[i] = m
		}
		return items, nil

	case tagList:
		var raws []taggedValue
		if err := json.Unmarshal(tv.Value, &raws); err != nil {
			return nil, corruptValue(tv.Type, path, err)
		}
		if raws == nil {
			return []interface{}(nil), nil
		}
		items := make([]interface{}, len(raws))
		for i, raw := range raws {
			v, err := decodeValue(raw, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil

	default:
		return nil, txerrors.NewCorruptStateError(fmt.Sprintf("unknown value type '%s' at '%s'", tv.Type, path), nil)
	}
}

var _ Serializer = (*JSONSerializer)(nil)

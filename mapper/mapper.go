// Package mapper converts arbitrary pipeline input into the nested mapping
// shape the orchestration core works with. A Mapper must produce a
// map[string]any; using a nil mapper is a pipeline-definition defect and
// panics, it is never converted into soft context failure.
package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

// Mapper turns arbitrary input into a nested mapping.
type Mapper func(input any) (map[string]any, error)

// Apply runs the mapper against the input. A nil mapper panics with a
// configuration error.
func Apply(m Mapper, input any) (map[string]any, error) {
	if m == nil {
		panic(conveyorerrors.NewConfigurationError("mapper", "mapper is nil", nil))
	}
	return m(input)
}

// FromYAML parses a YAML document into a nested mapping. Input may be a
// []byte or string.
func FromYAML(input any) (map[string]any, error) {
	raw, err := rawBytes(input)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mapper: parsing yaml: %w", err)
	}
	return normalize(out), nil
}

// FromJSON parses a JSON document into a nested mapping. Input may be a
// []byte or string. Numbers decode as json.Number to avoid silent float
// conversion of integral identifiers.
func FromJSON(input any) (map[string]any, error) {
	raw, err := rawBytes(input)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("mapper: parsing json: %w", err)
	}
	return out, nil
}

func rawBytes(input any) ([]byte, error) {
	switch v := input.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("mapper: unsupported input type %T", input)
	}
}

// normalize rewrites yaml's map[any]any containers into map[string]any so
// the result satisfies the nested-mapping contract. yaml.v3 already decodes
// string-keyed maps as map[string]any; this covers non-string keys.
func normalize(value map[string]any) map[string]any {
	for k, v := range value {
		value[k] = normalizeValue(v)
	}
	return value
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return normalize(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[fmt.Sprintf("%v", k)] = normalizeValue(elem)
		}
		return out
	case []any:
		for i, elem := range v {
			v[i] = normalizeValue(elem)
		}
		return v
	default:
		return value
	}
}

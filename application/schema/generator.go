// Package schema generates and checks JSON schemas of structured-text
// payloads.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
}

// GenerateSchema creates a JSON schema from a Go value.
// It uses the `invopop/jsonschema` library to reflect on the value
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v interface{}) ([]byte, error) {
	return marshal(reflector().Reflect(v))
}

// ForType creates a JSON schema for values of type t, as returned by
// exports declared with a structured-text result.
func ForType(t reflect.Type) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("schema for nil type")
	}
	return marshal(reflector().ReflectFromType(t))
}

func marshal(s *jsonschema.Schema) ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return jsonBytes, nil
}

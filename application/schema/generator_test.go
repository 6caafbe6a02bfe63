package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordStats struct {
	Words   int            `json:"words"`
	Units   int            `json:"utf16_units"`
	Longest string         `json:"longest"`
	Counts  map[string]int `json:"counts,omitempty"`
	Note    *string        `json:"note,omitempty"`
}

func TestGenerateSchema_Struct(t *testing.T) {
	schema, err := GenerateSchema(wordStats{})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(schema, &decoded))

	properties, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok, "properties should be a map")
	assert.Len(t, properties, 5)
	assert.Contains(t, properties, "utf16_units")

	required, ok := decoded["required"].([]interface{})
	require.True(t, ok, "required should be an array")
	assert.ElementsMatch(t, []interface{}{"words", "utf16_units", "longest"}, required)
}

func TestGenerateSchema_NestedStruct(t *testing.T) {
	type Span struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}
	type Match struct {
		Span  Span   `json:"span"`
		Token string `json:"token"`
	}

	schema, err := GenerateSchema(Match{})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(schema, &decoded))
	assert.Contains(t, string(schema), "span")
	assert.Contains(t, string(schema), "start")
	assert.Contains(t, string(schema), "token")
}

func TestForType(t *testing.T) {
	schema, err := ForType(reflect.TypeFor[wordStats]())
	require.NoError(t, err)
	assert.Contains(t, string(schema), "longest")

	list, err := ForType(reflect.TypeFor[[]string]())
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(list, &decoded))
	assert.Equal(t, "array", decoded["type"])

	_, err = ForType(nil)
	assert.Error(t, err)
}

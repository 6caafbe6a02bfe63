package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParamType is the wire type of an exported function parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamText   ParamType = "json"
	ParamBool   ParamType = "bool"
	ParamInt32  ParamType = "int32"
	ParamUint32 ParamType = "uint32"
	ParamHandle ParamType = "ptr"
	ParamSize   ParamType = "size"
)

// CType returns the C spelling of the parameter type.
func (p ParamType) CType() (string, error) {
	switch p {
	case ParamString:
		return "const param_string*", nil
	case ParamText:
		return "const param_json*", nil
	case ParamBool:
		return "param_bool", nil
	case ParamInt32:
		return "param_int", nil
	case ParamUint32:
		return "param_uint", nil
	case ParamHandle:
		return "const param_ptr*", nil
	case ParamSize:
		return "size_t", nil
	default:
		return "", fmt.Errorf("unknown parameter type %q", string(p))
	}
}

// Param declares one parameter of an exported function.
type Param struct {
	Name string    `json:"name" yaml:"name" validate:"required,c_ident"`
	Type ParamType `json:"type" yaml:"type" validate:"required,oneof=string json bool int32 uint32 ptr size"`
}

// Declaration describes one function exported across the boundary.
type Declaration struct {
	// Schema is the JSON schema of the structured-text payload, for KindText returns.
	Schema  json.RawMessage `json:"schema,omitempty" yaml:"-"`
	Name    string          `json:"name" yaml:"name" validate:"required,c_ident"`
	Doc     string          `json:"doc,omitempty" yaml:"doc,omitempty"`
	Params  []Param         `json:"params,omitempty" yaml:"params,omitempty" validate:"dive"`
	Returns Kind            `json:"returns" yaml:"returns"`
}

// Signature renders the declaration as name(type name, ...) -> kind.
func (d Declaration) Signature() string {
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		parts = append(parts, string(p.Type)+" "+p.Name)
	}
	return fmt.Sprintf("%s(%s) -> %s", d.Name, strings.Join(parts, ", "), d.Returns)
}

// LibraryManifest describes a native library built on the envelope protocol.
type LibraryManifest struct {
	Name              string        `json:"name" yaml:"name" validate:"required,c_ident"`
	Namespace         string        `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Version           string        `json:"version,omitempty" yaml:"version,omitempty"`
	CallingConvention string        `json:"calling_convention,omitempty" yaml:"calling_convention,omitempty" validate:"omitempty,oneof=__cdecl __stdcall"`
	Exports           []Declaration `json:"exports" yaml:"exports" validate:"dive"`
}

// DefaultCallingConvention is used when a manifest does not name one.
const DefaultCallingConvention = "__cdecl"

// Convention returns the manifest's calling convention or the default.
func (m LibraryManifest) Convention() string {
	if m.CallingConvention == "" {
		return DefaultCallingConvention
	}
	return m.CallingConvention
}

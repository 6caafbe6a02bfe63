package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
)

// PayloadValidator checks structured-text payloads against the schema their
// declaration carries. Compiled schemas are cached per function name.
type PayloadValidator struct {
	compiled map[string]*jsonschema.Schema
	mu       sync.Mutex
}

// NewPayloadValidator creates an empty validator.
func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks data against decl's schema. Declarations without a schema
// accept any well-formed JSON.
func (v *PayloadValidator) Validate(decl entities.Declaration, data []byte) error {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return &abierrors.ValidationError{Field: decl.Name, Err: fmt.Errorf("payload is not JSON: %w", err)}
	}
	if len(decl.Schema) == 0 {
		return nil
	}

	sch, err := v.compile(decl)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return &abierrors.ValidationError{Field: decl.Name, Err: err}
	}
	return nil
}

func (v *PayloadValidator) compile(decl entities.Declaration) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[decl.Name]; ok {
		return sch, nil
	}

	url := "nativeabi:///" + decl.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(decl.Schema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", decl.Name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", decl.Name, err)
	}
	v.compiled[decl.Name] = sch
	return sch, nil
}

// Package schema wraps JSON Schema compilation and validation for agent
// input/output contracts. Schemas are compiled once at agent activation and
// reused for every turn.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Validator is a compiled JSON Schema ready for repeated validation.
type Validator struct {
	schema *jsonschema.Schema
	raw    json.RawMessage
}

// Compile compiles raw schema bytes into a reusable Validator. A nil or
// empty schema yields a nil Validator, which accepts everything.
func Compile(raw json.RawMessage) (*Validator, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	s, err := compiler.Compile([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Validator{schema: s, raw: raw}, nil
}

// Raw returns the original schema document.
func (v *Validator) Raw() json.RawMessage {
	if v == nil {
		return nil
	}
	return v.raw
}

// Validate checks data against the compiled schema. A nil Validator
// accepts any value.
func (v *Validator) Validate(data any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	result := v.schema.Validate(data)
	if !result.IsValid() {
		return &ValidationError{Detail: fmt.Sprintf("%s", result.Error())}
	}
	return nil
}

// ValidateJSON parses raw JSON and validates the decoded value.
func (v *Validator) ValidateJSON(raw []byte) error {
	if v == nil || v.schema == nil {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return &ValidationError{Detail: fmt.Sprintf("not valid JSON: %v", err)}
	}
	return v.Validate(data)
}

// ValidationError reports a schema violation.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", e.Detail)
}

package setter

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/entry-config-v1.json
var entryConfigSchemaJSON string

// Validator checks the record array of a persisted entry configuration.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("entry-config-v1.json",
		strings.NewReader(entryConfigSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("entry-config-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

func (v *Validator) ValidateRecords(data []byte) error {
	var records interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrMalformedRecord, err)
	}

	if err := v.schema.Validate(records); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	return nil
}

package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/pagescribe/internal/entity"
)

// RecordSchema returns the JSON Schema every <stem>.json sidecar must satisfy.
// Fields the naming model adds are allowed and not constrained.
func RecordSchema() map[string]any {
	stringArray := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			entity.KeyFileName:        map[string]any{"type": "string", "minLength": 1},
			entity.KeyFileNameHistory: stringArray,
			entity.KeyPagesPaths:      stringArray,
			entity.KeyJSONFilePath:    map[string]any{"type": "string"},
		},
		"required":             []string{entity.KeyFileName, entity.KeyPagesPaths, entity.KeyJSONFilePath},
		"additionalProperties": true,
	}
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func recordSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = compileSchema(RecordSchema())
	})
	return compiledSchema, compileErr
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateRecordJSON validates raw sidecar bytes against RecordSchema.
func ValidateRecordJSON(data []byte) error {
	schema, err := recordSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

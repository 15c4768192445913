package processor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema is the shape every extraction response must have.
var resultSchema = map[string]any{
	"$schema":  "https://json-schema.org/draft/2020-12/schema",
	"type":     "object",
	"required": []any{"transactions"},
	"properties": map[string]any{
		"transactions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"date", "amount", "direction"},
				"properties": map[string]any{
					"id":          map[string]any{"type": "string"},
					"date":        map[string]any{"type": "string", "minLength": 1},
					"merchant":    map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"amount":      map[string]any{"type": "number"},
					"direction":   map[string]any{"enum": []any{"debit", "credit"}},
					"category":    map[string]any{"type": "string"},
					"subcategory": map[string]any{"type": "string"},
				},
			},
		},
		"transactionCount": map[string]any{"type": "integer", "minimum": 0},
		"processingTime":   map[string]any{"type": "number", "minimum": 0},
	},
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateResult checks raw against schema.
func validateResult(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/ticktie/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const boxDescription = "Bounding box [ymin, xmin, ymax, xmax], each coordinate an integer normalized to 0-1000 relative to the page."

// ResponseSchema returns the JSON schema for an extraction answer: one object per field key
// with a nullable string "value" and an integer array "box_2d".
func ResponseSchema(fields []models.FieldDefinition) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := properties[f.Key]; dup {
			continue
		}
		properties[f.Key] = map[string]any{
			"type":        "object",
			"description": fmt.Sprintf("The %q field.", f.Name),
			"properties": map[string]any{
				"value": map[string]any{
					"type":        []string{"string", "null"},
					"description": fmt.Sprintf("Text of %q as it appears in the document, or null if absent.", f.Name),
				},
				"box_2d": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": boxDescription,
				},
			},
			"required": []string{"value", "box_2d"},
		}
		required = append(required, f.Key)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Entry-level schemas used to validate each answer independently of the others.
var (
	valueSchema = mustCompile("value.json", map[string]any{
		"type": []string{"string", "number", "null"},
	})
	boxSchema = mustCompile("box_2d.json", map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "integer"},
		"minItems": 4,
		"maxItems": 4,
	})
)

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func mustCompile(name string, schemaMap map[string]any) *jsonschema.Schema {
	s, err := compileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return s
}

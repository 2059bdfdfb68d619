package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildBudgetEntriesSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing the budget_entries payload the extraction workflow
// emits. A completed workflow whose payload fails this check arrived but is
// unusable, which is distinct from never arriving.
func BuildBudgetEntriesSchema() map[string]any {
	entry := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"year":            map[string]any{"type": "integer"},
			"department":      map[string]any{"type": "string"},
			"category":        map[string]any{"type": "string"},
			"subcategory":     map[string]any{"type": []string{"string", "null"}},
			"amount_usd":      map[string]any{"type": "number"},
			"fund_source":     map[string]any{"type": []string{"string", "null"}},
			"geographic_area": map[string]any{"type": []string{"string", "null"}},
			"fiscal_period":   map[string]any{"type": []string{"string", "null"}},
			"purpose":         map[string]any{"type": []string{"string", "null"}},
		},
		"required": []string{"year", "department", "amount_usd"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"budget_entries": map[string]any{
				"type":  "array",
				"items": entry,
			},
		},
		"required": []string{"budget_entries"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
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

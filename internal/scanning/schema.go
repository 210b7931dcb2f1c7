package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema describes a usable ProcessReceiptResponse. Presence of at least
// one of items/summary is checked separately since both may be null.
func responseSchema() map[string]any {
	nullableString := map[string]any{"type": []string{"string", "null"}}
	number := map[string]any{"type": "number"}

	item := map[string]any{
		"type":     "object",
		"required": []string{"name", "quantity", "price"},
		"properties": map[string]any{
			"name":     map[string]any{"type": "string"},
			"quantity": number,
			"price":    number,
			"category": nullableString,
		},
	}

	summary := map[string]any{
		"type":     []string{"object", "null"},
		"required": []string{"merchant_name", "total_amount", "date", "currency"},
		"properties": map[string]any{
			"merchant_name": map[string]any{"type": "string"},
			"total_amount":  number,
			"tax_amount":    map[string]any{"type": []string{"number", "null"}},
			"date":          map[string]any{"type": "string"},
			"currency":      map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items":            map[string]any{"type": []string{"array", "null"}, "items": item},
			"summary":          summary,
			"wallet_pass_link": nullableString,
			"status":           nullableString,
			"message":          nullableString,
		},
	}
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(responseSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt_response.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("receipt_response.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// validateResponse checks a decoded JSON document against the response schema
func validateResponse(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

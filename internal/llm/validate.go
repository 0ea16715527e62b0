package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

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

// DecodeLineItems validates a raw service response and decodes it into typed
// items. Anything that is not a JSON array of schema-conforming objects is an
// invalid response shape. The UNKNOWN sentinel contract is enforced here too:
// matchedProductName and sku must carry the sentinel together, never one
// without the other.
func DecodeLineItems(raw []byte) ([]ExtractedItem, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("invalid response shape: %w", err)
	}
	if _, ok := probe.([]any); !ok {
		return nil, fmt.Errorf("invalid response shape: expected a JSON array")
	}

	if err := ValidateJSONAgainstSchema(BuildLineItemsJSONSchema(), raw); err != nil {
		return nil, err
	}

	var items []ExtractedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}

	for i := range items {
		if err := checkSentinelPairing(&items[i]); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if items[i].UnitOfMeasure == "" {
			items[i].UnitOfMeasure = "pcs"
		}
		if items[i].TotalQuantity == 0 {
			items[i].TotalQuantity = items[i].Quantity
		}
	}
	return items, nil
}

func checkSentinelPairing(it *ExtractedItem) error {
	nameUnknown := it.MatchedProductName == MatchUnknown
	skuUnknown := it.SKU == MatchUnknown
	if nameUnknown != skuUnknown {
		return fmt.Errorf("mismatched UNKNOWN sentinels: matchedProductName=%q sku=%q",
			it.MatchedProductName, it.SKU)
	}
	return nil
}

package llm

// BuildLineItemsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the model as a structured-output constraint and
// also use it locally to validate the response.
func BuildLineItemsJSONSchema() map[string]any {
	vertexProp := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"x": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"y": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"x", "y"},
	}

	itemProps := map[string]any{
		"matchedProductName": map[string]any{"type": "string", "minLength": 1},
		"originalName":       map[string]any{"type": "string"},
		"quantity":           map[string]any{"type": "number"},
		"unitPrice":          map[string]any{"type": "number"},
		"totalPrice":         map[string]any{"type": "number"},
		"sku":                map[string]any{"type": "string", "minLength": 1},
		"totalQuantity":      map[string]any{"type": "number"},
		"unitOfMeasure":      map[string]any{"type": "string", "minLength": 1},
		"boundingBox": map[string]any{
			"type":     "array",
			"items":    vertexProp,
			"minItems": 4,
			"maxItems": 4,
		},
	}
	required := []string{
		"matchedProductName", "originalName", "quantity", "unitPrice",
		"totalPrice", "sku", "totalQuantity", "unitOfMeasure",
	}

	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           itemProps,
			"required":             required,
		},
	}
}

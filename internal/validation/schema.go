package validation

import "encoding/json"

// matchesSchema checks a response body against the declared output schema.
// The engine supports the JSON Schema subset candidate services actually
// publish: type, properties, required and items.
func matchesSchema(schema json.RawMessage, body []byte) bool {
	var s map[string]interface{}
	if err := json.Unmarshal(schema, &s); err != nil {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return false
	}
	return matchValue(s, v)
}

func matchValue(schema map[string]interface{}, value interface{}) bool {
	if t, ok := schema["type"].(string); ok {
		if !matchType(t, value) {
			return false
		}
	}

	if obj, ok := value.(map[string]interface{}); ok {
		if required, ok := schema["required"].([]interface{}); ok {
			for _, r := range required {
				name, ok := r.(string)
				if !ok {
					continue
				}
				if _, present := obj[name]; !present {
					return false
				}
			}
		}
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			for name, sub := range props {
				subSchema, ok := sub.(map[string]interface{})
				if !ok {
					continue
				}
				child, present := obj[name]
				if !present {
					continue
				}
				if !matchValue(subSchema, child) {
					return false
				}
			}
		}
	}

	if arr, ok := value.([]interface{}); ok {
		if items, ok := schema["items"].(map[string]interface{}); ok {
			for _, child := range arr {
				if !matchValue(items, child) {
					return false
				}
			}
		}
	}

	return true
}

func matchType(t string, value interface{}) bool {
	switch t {
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

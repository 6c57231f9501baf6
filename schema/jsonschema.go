package schema

import (
	"github.com/tluyben/crmflow/types"
)

// JSONSchema renders the schema as a JSON Schema document. Backends use it
// as a generation hint; it is never used for enforcement.
func (s *Schema) JSONSchema() map[string]any {
	return objectSchema(s.props, "")
}

func objectSchema(props []types.Property, description string) map[string]any {
	properties := make(map[string]any, len(props))
	required := make([]string, 0, len(props))
	for _, p := range props {
		properties[p.Name] = propertySchema(p)
		if !p.Optional {
			required = append(required, p.Name)
		}
	}
	out := map[string]any{
		"type":                 types.TypeObject,
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	if description != "" {
		out["description"] = description
	}
	return out
}

func propertySchema(p types.Property) map[string]any {
	switch p.Type {
	case types.TypeObject:
		return objectSchema(p.Properties, p.Description)
	case types.TypeArray:
		out := withDescription(map[string]any{"type": types.TypeArray}, p.Description)
		if p.Items != nil {
			out["items"] = propertySchema(*p.Items)
		}
		return out
	}

	out := withDescription(map[string]any{"type": p.Type}, p.Description)
	if len(p.Enum) > 0 {
		out["enum"] = append([]string(nil), p.Enum...)
	}
	if p.MinLength > 0 {
		out["minLength"] = p.MinLength
	}
	return out
}

func withDescription(m map[string]any, description string) map[string]any {
	if description != "" {
		m["description"] = description
	}
	return m
}

package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/tluyben/crmflow/types"
)

// Validate checks value against the schema. On success it returns the
// normalized object: declared fields only, numbers as float64. On failure
// it returns every violation found and a nil object.
func (s *Schema) Validate(value any) (map[string]any, Violations) {
	var violations Violations
	obj, ok := asObject(value)
	if !ok {
		violations = append(violations, types.Violation{
			Reason: fmt.Sprintf("expected object, got %s", typeName(value)),
		})
		return nil, violations
	}

	out := validateObject(s.fields, obj, "", &violations)
	if len(violations) > 0 {
		return nil, violations
	}
	return out, nil
}

func validateObject(fields []*field, obj map[string]any, path string, violations *Violations) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		name := joinPath(path, f.prop.Name)
		raw, present := obj[f.prop.Name]
		if !present {
			if !f.prop.Optional {
				*violations = append(*violations, types.Violation{Field: name, Reason: "missing required field"})
			}
			continue
		}
		if v, ok := validateValue(f, raw, name, violations); ok {
			out[f.prop.Name] = v
		}
	}
	return out
}

func validateValue(f *field, raw any, path string, violations *Violations) (any, bool) {
	fail := func(reason string) (any, bool) {
		*violations = append(*violations, types.Violation{Field: path, Reason: reason})
		return nil, false
	}
	expected := func() (any, bool) {
		return fail(fmt.Sprintf("expected %s, got %s", f.prop.Type, typeName(raw)))
	}

	var value any
	switch f.prop.Type {
	case types.TypeString:
		s, ok := raw.(string)
		if !ok {
			return expected()
		}
		if f.prop.MinLength > 0 && utf8.RuneCountInString(s) < f.prop.MinLength {
			if f.prop.Message != "" {
				return fail(f.prop.Message)
			}
			return fail(fmt.Sprintf("must be at least %d characters", f.prop.MinLength))
		}
		if len(f.prop.Enum) > 0 && !contains(f.prop.Enum, s) {
			return fail(fmt.Sprintf("must be one of: %s", strings.Join(f.prop.Enum, ", ")))
		}
		value = s

	case types.TypeNumber:
		n, ok := asNumber(raw)
		if !ok {
			return expected()
		}
		value = n

	case types.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return expected()
		}
		value = b

	case types.TypeArray:
		elems, ok := asSlice(raw)
		if !ok {
			return expected()
		}
		before := len(*violations)
		out := make([]any, 0, len(elems))
		for i, elem := range elems {
			if v, ok := validateValue(f.items, elem, fmt.Sprintf("%s[%d]", path, i), violations); ok {
				out = append(out, v)
			}
		}
		if len(*violations) > before {
			return nil, false
		}
		value = out

	case types.TypeObject:
		obj, ok := asObject(raw)
		if !ok {
			return expected()
		}
		before := len(*violations)
		out := validateObject(f.fields, obj, path, violations)
		if len(*violations) > before {
			return nil, false
		}
		value = out
	}

	if f.check != nil {
		passed, err := runCheck(f.check, value)
		if err != nil {
			return fail(fmt.Sprintf("check error: %v", err))
		}
		if !passed {
			if f.prop.Message != "" {
				return fail(f.prop.Message)
			}
			return fail(fmt.Sprintf("failed check %q", f.prop.Check))
		}
	}
	return value, true
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case string:
		return types.TypeString
	case bool:
		return types.TypeBoolean
	}
	if _, ok := asNumber(v); ok {
		return types.TypeNumber
	}
	if _, ok := asObject(v); ok {
		return types.TypeObject
	}
	if _, ok := asSlice(v); ok {
		return types.TypeArray
	}
	return fmt.Sprintf("%T", v)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

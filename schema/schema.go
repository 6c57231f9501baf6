// Package schema compiles flow field declarations and validates values
// against them.
//
// A compiled Schema is immutable and safe for concurrent use. Validation
// collects every violation instead of stopping at the first one, so callers
// can show all field errors at once.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/tluyben/crmflow/types"
)

// Schema is a compiled, read-only object schema.
type Schema struct {
	fields []*field
	props  []types.Property
}

type field struct {
	prop   types.Property
	check  *goja.Program
	items  *field
	fields []*field
}

// Violations is the list of field failures produced by one validation.
type Violations []types.Violation

func (v Violations) String() string {
	parts := make([]string, 0, len(v))
	for _, violation := range v {
		if violation.Field == "" {
			parts = append(parts, violation.Reason)
			continue
		}
		parts = append(parts, violation.Field+": "+violation.Reason)
	}
	return strings.Join(parts, "; ")
}

// Fields returns the violated field paths in order.
func (v Violations) Fields() []string {
	out := make([]string, 0, len(v))
	for _, violation := range v {
		out = append(out, violation.Field)
	}
	return out
}

// Compile checks the declarations and prepares them for validation.
// Every field needs a name, a known type and a description.
func Compile(props []types.Property) (*Schema, error) {
	fields, err := compileFields(props, "")
	if err != nil {
		return nil, err
	}
	return &Schema{fields: fields, props: cloneProperties(props)}, nil
}

func compileFields(props []types.Property, parent string) ([]*field, error) {
	seen := make(map[string]bool, len(props))
	fields := make([]*field, 0, len(props))
	for _, prop := range props {
		if prop.Name == "" {
			return nil, fmt.Errorf("schema %s: property without a name", displayPath(parent))
		}
		if seen[prop.Name] {
			return nil, fmt.Errorf("schema %s: duplicate property %q", displayPath(parent), prop.Name)
		}
		seen[prop.Name] = true

		f, err := compileField(prop, joinPath(parent, prop.Name))
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func compileField(prop types.Property, path string) (*field, error) {
	if strings.TrimSpace(prop.Description) == "" {
		return nil, fmt.Errorf("schema %s: missing description", path)
	}
	if prop.MinLength < 0 {
		return nil, fmt.Errorf("schema %s: negative min-length", path)
	}
	if prop.Type != types.TypeString && (len(prop.Enum) > 0 || prop.MinLength > 0) {
		return nil, fmt.Errorf("schema %s: enum and min-length apply to strings only", path)
	}

	f := &field{prop: prop}
	switch prop.Type {
	case types.TypeString, types.TypeNumber, types.TypeBoolean:
		if prop.Items != nil || len(prop.Properties) > 0 {
			return nil, fmt.Errorf("schema %s: %s cannot declare items or properties", path, prop.Type)
		}
	case types.TypeArray:
		if prop.Items == nil {
			return nil, fmt.Errorf("schema %s: array without items", path)
		}
		items := *prop.Items
		if items.Description == "" {
			items.Description = prop.Description
		}
		sub, err := compileField(items, path+"[]")
		if err != nil {
			return nil, err
		}
		f.items = sub
	case types.TypeObject:
		sub, err := compileFields(prop.Properties, path)
		if err != nil {
			return nil, err
		}
		f.fields = sub
	default:
		return nil, fmt.Errorf("schema %s: unknown type %q", path, prop.Type)
	}

	if prop.Check != "" {
		prog, err := compileCheck(path, prop.Check)
		if err != nil {
			return nil, fmt.Errorf("schema %s: invalid check: %w", path, err)
		}
		f.check = prog
	}
	return f, nil
}

// Has reports whether name is a top-level field.
func (s *Schema) Has(name string) bool {
	for _, f := range s.fields {
		if f.prop.Name == name {
			return true
		}
	}
	return false
}

// Fields returns the top-level field names in declaration order.
func (s *Schema) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.prop.Name)
	}
	return names
}

// Required returns the sorted names of required top-level fields.
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.fields {
		if !f.prop.Optional {
			names = append(names, f.prop.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Properties returns a copy of the declarations the schema was compiled from.
func (s *Schema) Properties() []types.Property {
	return cloneProperties(s.props)
}

func cloneProperties(props []types.Property) []types.Property {
	if props == nil {
		return nil
	}
	out := make([]types.Property, len(props))
	for i, p := range props {
		out[i] = cloneProperty(p)
	}
	return out
}

func cloneProperty(p types.Property) types.Property {
	c := p
	if p.Enum != nil {
		c.Enum = append([]string(nil), p.Enum...)
	}
	if p.Items != nil {
		items := cloneProperty(*p.Items)
		c.Items = &items
	}
	c.Properties = cloneProperties(p.Properties)
	return c
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

package flow

import (
	"fmt"
	"strings"

	"github.com/tluyben/crmflow/prompt"
	"github.com/tluyben/crmflow/schema"
	"github.com/tluyben/crmflow/types"
)

// Spec is an immutable, validated flow definition. It holds no per-request
// state and may be shared by any number of concurrent executions.
type Spec struct {
	def      types.Flow
	input    *schema.Schema
	output   *schema.Schema
	template *prompt.Template
}

// NewSpec compiles a flow definition. Every placeholder in the prompt must
// name a declared input field.
func NewSpec(def types.Flow) (*Spec, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("flow definition without a name")
	}
	switch def.Model {
	case "", "high", "low":
	default:
		return nil, fmt.Errorf("flow %s: invalid model %q (want high or low)", def.Name, def.Model)
	}
	if strings.TrimSpace(def.Prompt) == "" {
		return nil, fmt.Errorf("flow %s: empty prompt", def.Name)
	}
	if len(def.Output) == 0 {
		return nil, fmt.Errorf("flow %s: output schema has no fields", def.Name)
	}

	input, err := schema.Compile(def.Input)
	if err != nil {
		return nil, fmt.Errorf("flow %s: input: %w", def.Name, err)
	}
	output, err := schema.Compile(def.Output)
	if err != nil {
		return nil, fmt.Errorf("flow %s: output: %w", def.Name, err)
	}
	tmpl, err := prompt.Parse(def.Prompt)
	if err != nil {
		return nil, fmt.Errorf("flow %s: prompt: %w", def.Name, err)
	}
	for _, name := range tmpl.Fields() {
		if !input.Has(name) {
			return nil, fmt.Errorf("flow %s: prompt placeholder {{%s}} references unknown input field", def.Name, name)
		}
	}

	def.Input = input.Properties()
	def.Output = output.Properties()
	return &Spec{def: def, input: input, output: output, template: tmpl}, nil
}

// MustSpec is like NewSpec but panics on error. It is meant for built-in
// definitions.
func MustSpec(def types.Flow) *Spec {
	s, err := NewSpec(def)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Spec) Name() string { return s.def.Name }
func (s *Spec) Description() string { return s.def.Description }
func (s *Spec) Model() string { return s.def.Model }
func (s *Spec) SystemPrompt() string { return s.def.SystemPrompt }
func (s *Spec) Input() *schema.Schema { return s.input }
func (s *Spec) Output() *schema.Schema { return s.output }
func (s *Spec) Template() *prompt.Template { return s.template }

// Definition returns a copy of the definition the spec was built from.
func (s *Spec) Definition() types.Flow {
	def := s.def
	def.Input = s.input.Properties()
	def.Output = s.output.Properties()
	return def
}

// Render renders the prompt for an already validated input.
func (s *Spec) Render(input map[string]any) string {
	return s.template.Render(input)
}

// Description is the JSON view of a spec, for listings and describe calls.
type Description struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Model        string         `json:"model,omitempty"`
	Placeholders []string       `json:"placeholders"`
	Input        map[string]any `json:"input"`
	Output       map[string]any `json:"output"`
}

// Describe returns the spec's public shape.
func (s *Spec) Describe() Description {
	return Description{
		Name:         s.def.Name,
		Description:  s.def.Description,
		Model:        s.def.Model,
		Placeholders: s.template.Fields(),
		Input:        s.input.JSONSchema(),
		Output:       s.output.JSONSchema(),
	}
}

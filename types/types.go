package types

// Property describes one field of a flow's input or output schema.
type Property struct {
	Name        string     `yaml:"name" json:"name"`
	Type        string     `yaml:"type" json:"type"`
	Description string     `yaml:"description" json:"description"`
	Optional    bool       `yaml:"optional,omitempty" json:"optional,omitempty"`
	Enum        []string   `yaml:"enum,omitempty" json:"enum,omitempty"`
	MinLength   int        `yaml:"min-length,omitempty" json:"min-length,omitempty"`
	Message     string     `yaml:"message,omitempty" json:"message,omitempty"`
	Check       string     `yaml:"check,omitempty" json:"check,omitempty"`
	Items       *Property  `yaml:"items,omitempty" json:"items,omitempty"`
	Properties  []Property `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Flow is the on-disk definition of a flow.
type Flow struct {
	Name         string     `yaml:"name" json:"name"`
	Description  string     `yaml:"description" json:"description"`
	Model        string     `yaml:"model" json:"model"`
	Input        []Property `yaml:"input" json:"input"`
	Output       []Property `yaml:"output" json:"output"`
	SystemPrompt string     `yaml:"system-prompt" json:"system-prompt"`
	Prompt       string     `yaml:"prompt" json:"prompt"`
}

// Violation is a single field-level validation failure.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Property types understood by the schema package.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

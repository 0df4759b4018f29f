package schema

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field defines a single payload field.
//
// Fields support two declaration styles:
//
//	Shorthand (scalar): buyer_region: string!
//	Long form (mapping): price:
//	                        type: double!
//	                        min: 0
//
// Type names: string, bool, int32, int64, float, double
// Append "!" to mark a field as required.
type Field struct {
	// Type is the internal type tag: "string", "boolean", or "number".
	Type string `yaml:"type"`

	// Kind specifies numeric precision: int32, int64, float, double.
	Kind string `yaml:"-"`

	Required bool `yaml:"required,omitempty"`

	// Enum restricts values to a specific set (for strings and numbers).
	Enum []interface{} `yaml:"enum,omitempty"`

	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	MinLength *int   `yaml:"minLength,omitempty"`
	MaxLength *int   `yaml:"maxLength,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`

	compiledPattern *regexp.Regexp `yaml:"-"`
}

// UnmarshalYAML supports both shorthand and long-form field declarations.
func (f *Field) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return f.parseTypeString(value.Value)
	}

	// Decode via alias to avoid recursing into this method.
	type fieldAlias Field
	var alias fieldAlias
	if err := value.Decode(&alias); err != nil {
		return err
	}
	*f = Field(alias)

	if f.Type == "" {
		return fmt.Errorf("field missing 'type'")
	}
	return f.parseTypeString(f.Type)
}

// parseTypeString parses a user-facing type name like "int64!" and sets
// Type, Kind, and (if "!" is present) Required on the receiver.
func (f *Field) parseTypeString(s string) error {
	if strings.HasSuffix(s, "!") {
		f.Required = true
		s = strings.TrimSuffix(s, "!")
	}

	switch s {
	case "string":
		f.Type = "string"
	case "bool", "boolean":
		f.Type = "boolean"
	case "int32", "int64", "float", "double":
		f.Type = "number"
		f.Kind = s
	case "number":
		// Already normalized (long form re-parse).
		f.Type = "number"
	default:
		return fmt.Errorf("unsupported type %q (must be: string, bool, int32, int64, float, double)", s)
	}
	return nil
}

// Validate checks if a field definition is structurally valid.
func (f *Field) Validate(path string) error {
	switch f.Type {
	case "string":
		return f.validateStringField()
	case "boolean":
		if f.MinLength != nil || f.MaxLength != nil || f.Pattern != "" || f.Min != nil || f.Max != nil || len(f.Enum) > 0 {
			return fmt.Errorf("boolean fields do not support constraints")
		}
		return nil
	case "number":
		return f.validateNumberField()
	default:
		return fmt.Errorf("unsupported type %q", f.Type)
	}
}

func (f *Field) validateStringField() error {
	if f.MinLength != nil && *f.MinLength < 0 {
		return fmt.Errorf("minLength cannot be negative")
	}
	if f.MaxLength != nil && *f.MaxLength < 0 {
		return fmt.Errorf("maxLength cannot be negative")
	}
	if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
		return fmt.Errorf("minLength (%d) cannot exceed maxLength (%d)", *f.MinLength, *f.MaxLength)
	}
	if f.Min != nil || f.Max != nil {
		return fmt.Errorf("string fields do not support min/max constraints")
	}

	if f.Pattern != "" {
		if len(f.Pattern) > 1000 {
			return fmt.Errorf("pattern too long (max 1000 chars)")
		}
		compiled, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		f.compiledPattern = compiled
	}

	for i, val := range f.Enum {
		if _, ok := val.(string); !ok {
			return fmt.Errorf("enum[%d]: expected string, got %T", i, val)
		}
	}
	return nil
}

func (f *Field) validateNumberField() error {
	switch f.Kind {
	case "int32", "int64", "float", "double":
	default:
		return fmt.Errorf("invalid number kind %q (must be: int32, int64, float, double)", f.Kind)
	}

	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("min (%v) cannot exceed max (%v)", *f.Min, *f.Max)
	}

	for i, val := range f.Enum {
		switch val.(type) {
		case int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("enum[%d]: expected number, got %T", i, val)
		}
	}

	if f.MinLength != nil || f.MaxLength != nil || f.Pattern != "" {
		return fmt.Errorf("number fields do not support length or pattern constraints")
	}
	return nil
}

// String returns a human-readable description of the field type.
func (f *Field) String() string {
	parts := []string{f.Type}
	if f.Kind != "" {
		parts = append(parts, fmt.Sprintf("(%s)", f.Kind))
	}
	if f.Required {
		parts = append(parts, "required")
	}
	if len(f.Enum) > 0 {
		parts = append(parts, fmt.Sprintf("enum[%d]", len(f.Enum)))
	}
	return strings.Join(parts, " ")
}

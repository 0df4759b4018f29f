package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PayloadSchema describes the fields a change record payload must carry before the
// aggregator folds it. Records that fail validation are classified as poison.
type PayloadSchema struct {
	Name        string            `yaml:"name"`
	Version     int               `yaml:"version"`
	Description string            `yaml:"description,omitempty"`
	StrictMode  bool              `yaml:"strictMode,omitempty"`
	Fields      map[string]*Field `yaml:"fields"`

	// Fingerprint is the SHA-256 of the raw definition; computed on Parse.
	Fingerprint string `yaml:"-"`
}

// defaultCartSchema is the cart-action document shape emitted by the sample feed.
const defaultCartSchema = `
name: cart_action
version: 1
description: Purchase funnel interaction on a shopping cart.
fields:
  cart_id: int64!
  action:
    type: string!
    enum: [Viewed, Added, Purchased]
  item:
    type: string!
    minLength: 1
  price:
    type: double!
    min: 0
  buyer_region:
    type: string!
    minLength: 1
`

// ComputeFingerprint calculates SHA-256 hash of the definition.
func ComputeFingerprint(definition []byte) string {
	hash := sha256.Sum256(definition)
	return hex.EncodeToString(hash[:])
}

// Parse decodes and structurally validates a YAML payload schema.
func Parse(definition []byte) (*PayloadSchema, error) {
	var s PayloadSchema
	if err := yaml.Unmarshal(definition, &s); err != nil {
		return nil, fmt.Errorf("failed to parse payload schema: %w", err)
	}
	if err := s.validateSpec(); err != nil {
		return nil, fmt.Errorf("invalid payload schema: %w", err)
	}
	s.Fingerprint = ComputeFingerprint(definition)
	return &s, nil
}

// Load reads a payload schema from path. An empty path yields the built-in cart schema.
func Load(path string) (*PayloadSchema, error) {
	if path == "" {
		return DefaultCartSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload schema %s: %w", path, err)
	}
	return Parse(data)
}

// DefaultCartSchema returns the built-in cart-action payload schema.
func DefaultCartSchema() *PayloadSchema {
	s, err := Parse([]byte(defaultCartSchema))
	if err != nil {
		panic(fmt.Sprintf("schema: built-in cart schema is invalid: %v", err))
	}
	return s
}

// validateSpec checks that the schema definition itself is well formed.
func (s *PayloadSchema) validateSpec() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema must define at least one field")
	}

	for name, field := range s.Fields {
		if field == nil {
			return fmt.Errorf("field %q: type cannot be empty", name)
		}
		if err := field.Validate(name); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}

	return nil
}

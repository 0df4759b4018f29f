package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Validate checks a decoded payload against the schema. It returns nil, a
// *ValidationError (strict mode unknown fields) or a *MultiValidationError.
func (s *PayloadSchema) Validate(data map[string]interface{}) error {
	if data == nil {
		return &ValidationError{Schema: s.Name, Version: s.Version, Message: "payload is empty"}
	}

	if s.StrictMode {
		var unknownFields []string
		for key := range data {
			if _, exists := s.Fields[key]; !exists {
				unknownFields = append(unknownFields, key)
			}
		}
		if len(unknownFields) > 0 {
			sort.Strings(unknownFields)
			return NewUnknownFieldsError(s.Name, s.Version, unknownFields)
		}
	}

	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []*ValidationError
	for _, fieldName := range names {
		fieldSpec := s.Fields[fieldName]
		value, exists := data[fieldName]

		if !exists {
			if fieldSpec.Required {
				errs = append(errs, NewRequiredFieldError(s.Name, s.Version, fieldName))
			}
			continue
		}

		if err := s.validateField(fieldName, fieldSpec, value); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}

func (s *PayloadSchema) fieldError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Schema:  s.Name,
		Version: s.Version,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func (s *PayloadSchema) validateField(fieldName string, spec *Field, value interface{}) *ValidationError {
	if value == nil {
		if spec.Required {
			return s.fieldError(fieldName, "required field cannot be null")
		}
		return nil
	}

	switch spec.Type {
	case "string":
		return s.validateString(fieldName, spec, value)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return NewTypeMismatchError(s.Name, s.Version, fieldName, "boolean", jsonTypeName(value))
		}
		return nil
	case "number":
		return s.validateNumber(fieldName, spec, value)
	default:
		return s.fieldError(fieldName, "unknown field type: %s", spec.Type)
	}
}

func (s *PayloadSchema) validateString(fieldName string, spec *Field, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return NewTypeMismatchError(s.Name, s.Version, fieldName, "string", jsonTypeName(value))
	}

	if len(spec.Enum) > 0 {
		found := false
		for _, allowed := range spec.Enum {
			if allowedStr, ok := allowed.(string); ok && allowedStr == str {
				found = true
				break
			}
		}
		if !found {
			return s.fieldError(fieldName, "value %q not in enum %v", str, spec.Enum)
		}
	}

	length := len(str)
	if spec.MinLength != nil && length < *spec.MinLength {
		return s.fieldError(fieldName, "string length %d is less than minimum %d", length, *spec.MinLength)
	}
	if spec.MaxLength != nil && length > *spec.MaxLength {
		return s.fieldError(fieldName, "string length %d exceeds maximum %d", length, *spec.MaxLength)
	}
	if spec.compiledPattern != nil && !spec.compiledPattern.MatchString(str) {
		return s.fieldError(fieldName, "string does not match pattern %q", spec.Pattern)
	}
	return nil
}

func (s *PayloadSchema) validateNumber(fieldName string, spec *Field, value interface{}) *ValidationError {
	num, ok := toFloat(value)
	if !ok {
		return NewTypeMismatchError(s.Name, s.Version, fieldName, "number", jsonTypeName(value))
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return s.fieldError(fieldName, "value %v is not a finite number", num)
	}

	switch spec.Kind {
	case "int32":
		if num != math.Trunc(num) {
			return s.fieldError(fieldName, "expected integer, got float with fractional part")
		}
		if num < math.MinInt32 || num > math.MaxInt32 {
			return s.fieldError(fieldName, "value %v out of range for int32 (min: -2147483648, max: 2147483647)", num)
		}
	case "int64":
		if num != math.Trunc(num) {
			return s.fieldError(fieldName, "expected integer, got float with fractional part")
		}
		// float64 can't represent every int64 exactly; this catches obvious overflows.
		if num < math.MinInt64 || num > math.MaxInt64 {
			return s.fieldError(fieldName, "value %v out of range for int64", num)
		}
	case "float":
		if num < -math.MaxFloat32 || num > math.MaxFloat32 {
			return s.fieldError(fieldName, "value %v out of range for float32", num)
		}
	case "double":
	default:
		return s.fieldError(fieldName, "unknown number kind: %s", spec.Kind)
	}

	if len(spec.Enum) > 0 {
		found := false
		for _, allowed := range spec.Enum {
			if allowedNum, ok := toFloat(allowed); ok && allowedNum == num {
				found = true
				break
			}
		}
		if !found {
			return s.fieldError(fieldName, "value %v not in enum %v", num, spec.Enum)
		}
	}

	if spec.Min != nil && num < *spec.Min {
		return s.fieldError(fieldName, "value %v is less than minimum %v", num, *spec.Min)
	}
	if spec.Max != nil && num > *spec.Max {
		return s.fieldError(fieldName, "value %v exceeds maximum %v", num, *spec.Max)
	}
	return nil
}

// toFloat accepts the numeric shapes produced by encoding/json (with and
// without UseNumber), yaml.v3 and hand-built payloads.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// jsonTypeName returns a human-readable type name for JSON values.
func jsonTypeName(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case bool:
		return "bool"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Package validation validates JSON documents against JSON Schema using gojsonschema.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON Schema. It is safe for concurrent use.
type Schema struct {
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]*Schema{}
)

// Compile parses and compiles a schema document. Compiled schemas are cached
// by their source text.
func Compile(schema json.RawMessage) (*Schema, error) {
	key := string(schema)

	cacheMu.RLock()
	s, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}
	s = &Schema{raw: schema, compiled: compiled}

	cacheMu.Lock()
	cache[key] = s
	cacheMu.Unlock()
	return s, nil
}

// MustCompile is Compile for package-level schema literals.
func MustCompile(schema string) *Schema {
	s, err := Compile(json.RawMessage(schema))
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema source.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(document []byte) (*ValidationResult, error) {
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("document is not valid JSON: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return vr, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// Summary joins all error messages into one line.
func (vr *ValidationResult) Summary() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

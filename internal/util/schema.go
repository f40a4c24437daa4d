package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://searchagent.local/tool/parameters.schema.json"

// ValidationError reports the first argument that does not match a tool's
// parameter schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var reflector = &jsonschema.Reflector{
	Anonymous:                 true,
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
}

// CreateSchema derives an object schema from the exported fields of a struct.
// Fields without omitempty are required. Descriptions come from the
// jsonschema_description tag.
func CreateSchema(structType any) map[string]any {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}

	t := reflect.TypeOf(structType)
	if t == nil {
		return empty
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return empty
	}

	raw, err := json.Marshal(reflector.ReflectFromType(t))
	if err != nil {
		return empty
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return empty
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// Validator checks decoded tool arguments against a compiled schema.
type Validator struct {
	schema   *validator.Schema
	required []string
}

// NewValidator compiles schema. A nil or empty schema accepts everything.
func NewValidator(schema map[string]any) (*Validator, error) {
	if len(schema) == 0 {
		return &Validator{}, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: compiled, required: requiredFields(schema)}, nil
}

// Validate reports the first mismatch as a *ValidationError.
func (v *Validator) Validate(params map[string]any) error {
	for _, name := range v.required {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}
	if v.schema == nil {
		return nil
	}

	doc, err := normalize(params)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	err = v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Message: err.Error()}
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	field := strings.TrimPrefix(verr.InstanceLocation, "/")
	return &ValidationError{Field: field, Value: params[field], Message: verr.Message}
}

// ValidateParameters compiles schema and validates params against it. Schemas
// that fail to compile are not enforced.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	v, err := NewValidator(schema)
	if err != nil {
		return nil
	}
	return v.Validate(params)
}

// normalize converts params to the plain JSON value space the validator
// understands ([]string becomes []any, ints become json.Number).
func normalize(params map[string]any) (any, error) {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// requiredFields accepts both []string (schemas built in Go) and []any
// (schemas decoded from JSON).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/procdocs/sopgen/pkg/schema"
)

// metadataSchemaJSON is the JSON Schema for document Metadata validation.
// Embedded as a constant to avoid filesystem dependencies.
const metadataSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://procdocs.dev/schemas/metadata.json",
  "type": "object",
  "properties": {
    "process_name": { "type": "string" },
    "process_code": { "type": "string" },
    "issued_by": { "type": "string" },
    "release_date": { "type": "string" },
    "process_owner": { "type": "string" },
    "purpose": { "type": "string" },
    "scope": { "type": "string" },
    "inputs": { "type": "string" },
    "outputs": { "type": "string" },
    "lane_names": {
      "type": "array",
      "items": { "type": "string" }
    },
    "abbreviations_list": {
      "type": "array",
      "items": { "$ref": "#/$defs/abbreviation" }
    },
    "references_list": {
      "type": "array",
      "items": { "$ref": "#/$defs/reference" }
    },
    "general_policies_list": {
      "type": "array",
      "items": { "$ref": "#/$defs/policy" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "abbreviation": {
      "type": "object",
      "required": ["term", "definition"],
      "properties": {
        "term": { "type": "string", "minLength": 1 },
        "definition": { "type": "string" }
      },
      "additionalProperties": false
    },
    "reference": {
      "type": "object",
      "required": ["ref", "document"],
      "properties": {
        "ref": { "type": "string", "minLength": 1 },
        "document": { "type": "string" }
      },
      "additionalProperties": false
    },
    "policy": {
      "type": "object",
      "required": ["ref", "policy"],
      "properties": {
        "ref": { "type": "string", "minLength": 1 },
        "policy": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	metadataSchema *jsonschema.Schema

	// mu guards the cache for dynamic request schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the metadata schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newSchemaCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(metadataSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal metadata schema: %w", err)
	}
	if err := c.AddResource("https://procdocs.dev/schemas/metadata.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add metadata schema resource: %w", err)
	}

	metaSchema, err := c.Compile("https://procdocs.dev/schemas/metadata.json")
	if err != nil {
		return nil, fmt.Errorf("compile metadata schema: %w", err)
	}

	return &JSONSchemaValidator{
		metadataSchema: metaSchema,
		cache:          make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateMetadata validates caller-supplied Metadata against the metadata JSON Schema.
func (v *JSONSchemaValidator) ValidateMetadata(meta *schema.Metadata) error {
	if meta == nil {
		return schema.NewError(schema.ErrCodeValidation, "metadata is nil")
	}

	doc, err := toJSONValue(meta)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize metadata").WithCause(err)
	}

	if err := v.metadataSchema.Validate(doc); err != nil {
		return toSOPError(err)
	}

	// Structural checks that JSON Schema cannot express: duplicate abbreviation terms.
	seen := make(map[string]struct{}, len(meta.Abbreviations))
	for _, ab := range meta.Abbreviations {
		if _, exists := seen[ab.Term]; exists {
			return schema.NewError(schema.ErrCodeValidation,
				fmt.Sprintf("duplicate abbreviation term %q", ab.Term))
		}
		seen[ab.Term] = struct{}{}
	}

	return nil
}

// ValidateRequest validates request data against a JSON Schema provided as raw bytes.
// The schema is compiled and cached for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateRequest(input map[string]any, reqSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "request is nil")
	}
	if len(reqSchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(reqSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid request schema").WithCause(err)
	}

	// Convert input to JSON-compatible value (json.Number for numbers).
	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize request").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toSOPError(err)
	}

	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions in the compiler.
	url := fmt.Sprintf("procdocs://request-schema/%d", len(v.cache))

	// Use a fresh compiler per dynamic schema to avoid resource collision.
	c := newSchemaCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// newSchemaCompiler creates a Compiler with format assertions enabled.
func newSchemaCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSOPError converts a jsonschema.ValidationError into a SOPError with
// clear, actionable messages.
func toSOPError(err error) *schema.SOPError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

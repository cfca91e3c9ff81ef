package validation

import (
	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// DocumentValidator orchestrates the two-stage validation pipeline:
// 1. Structural (metadata against JSON Schema)
// 2. Semantic (step numbers, flow endpoints, gateway wiring)
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewDocumentValidator creates a DocumentValidator.
func NewDocumentValidator() (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural metadata errors short-circuit: the semantic stage is skipped.
// meta may be nil when the caller supplies no overrides.
func (dv *DocumentValidator) Validate(m *bpmn.Model, meta *schema.Metadata) *schema.ValidationResult {
	if m == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "diagram model is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := &schema.ValidationResult{}
	if meta != nil {
		result = validateStructural(dv.jsonSchema, meta)
		if !result.Valid() {
			return result
		}
	}

	// Stage 2: Semantic.
	result.Merge(validateModel(m))

	return result
}

// ValidateMetadata satisfies the Validator interface.
func (dv *DocumentValidator) ValidateMetadata(meta *schema.Metadata) error {
	return dv.jsonSchema.ValidateMetadata(meta)
}

// ValidateRequest delegates to the underlying JSONSchemaValidator.
func (dv *DocumentValidator) ValidateRequest(input map[string]any, reqSchema []byte) error {
	return dv.jsonSchema.ValidateRequest(input, reqSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateMetadata, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, meta *schema.Metadata) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateMetadata(meta)
	if err == nil {
		return result
	}

	sopErr, ok := err.(*schema.SOPError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if sopErr.Details != nil {
		if violations, ok := sopErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, sopErr.Message)
	return result
}

var _ Validator = (*DocumentValidator)(nil)

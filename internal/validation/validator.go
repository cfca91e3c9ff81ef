package validation

import "github.com/procdocs/sopgen/pkg/schema"

// Validator checks generation inputs before synthesis.
// Uses JSON Schema Draft 2020-12 for metadata and request validation.
type Validator interface {
	ValidateMetadata(meta *schema.Metadata) error
	ValidateRequest(input map[string]any, reqSchema []byte) error
}

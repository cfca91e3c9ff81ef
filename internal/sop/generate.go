// Package sop turns a parsed BPMN model into an ordered standard operating
// procedure: numbered step records with routing text, gateway case rows,
// RACI assignments, and an SLA merge plan.
package sop

import (
	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// Defaults for header fields nobody supplied.
const (
	defaultIssuedBy    = "Business Excellence"
	defaultReleaseDate = "TBD"
)

// Generate parses a BPMN document and produces the full SOP context.
// Caller-supplied metadata wins field by field; empty fields fall back to
// values extracted from the diagram.
func Generate(xmlData []byte, meta schema.Metadata) (*schema.SOPContext, error) {
	m, err := bpmn.Parse(xmlData)
	if err != nil {
		return nil, err
	}

	g := newGenerator(m)
	steps := g.synthesizeSteps()
	merges := planSLAMerges(steps)
	auto := extractMetadata(m)

	name := fallback(meta.ProcessName, auto.ProcessName)
	code := fallback(meta.ProcessCode, auto.ProcessCode)
	refs := meta.References
	if len(refs) == 0 {
		refs = defaultReferences(auto.LaneNames, name, code)
	}

	ctx := &schema.SOPContext{
		ProcessName:     name,
		ProcessCode:     code,
		IssuedBy:        fallback(meta.IssuedBy, defaultIssuedBy),
		ReleaseDate:     fallback(meta.ReleaseDate, defaultReleaseDate),
		ProcessOwner:    meta.ProcessOwner,
		Purpose:         fallback(meta.Purpose, auto.Purpose),
		Scope:           fallback(meta.Scope, auto.Scope),
		Inputs:          fallback(meta.Inputs, auto.Inputs),
		Outputs:         fallback(meta.Outputs, auto.Outputs),
		Abbreviations:   firstNonEmpty(meta.Abbreviations, auto.Abbreviations),
		References:      refs,
		GeneralPolicies: firstNonEmpty(meta.GeneralPolicies, auto.GeneralPolicies),
		Steps:           steps,
		Merges:          merges,
	}
	return ctx, nil
}

// ExtractMetadata parses a BPMN document and returns only the header fields
// extractable from the diagram, without generating step rows.
func ExtractMetadata(xmlData []byte) (schema.Metadata, error) {
	m, err := bpmn.Parse(xmlData)
	if err != nil {
		return schema.Metadata{}, err
	}
	return extractMetadata(m), nil
}

func fallback(value, auto string) string {
	if value != "" {
		return value
	}
	return auto
}

func firstNonEmpty[T any](value, auto []T) []T {
	if len(value) > 0 {
		return value
	}
	return auto
}

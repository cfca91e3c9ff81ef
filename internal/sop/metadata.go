package sop

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// extractMetadata pulls the document header fields out of the diagram:
// participant name and documentation, scope and policy documentation blocks,
// the version tag, extension properties as abbreviations, lane names, and
// the auto-numbered process inputs/outputs.
func extractMetadata(m *bpmn.Model) schema.Metadata {
	md := schema.Metadata{
		ProcessName: m.ParticipantName,
		ProcessCode: m.VersionTag,
		Purpose:     m.ParticipantDoc,
		Scope:       m.Scope,
		Inputs:      processInputs(m),
		Outputs:     processOutputs(m),
	}

	for _, p := range m.Properties {
		if p.Name == "" && p.Value == "" {
			continue
		}
		md.Abbreviations = append(md.Abbreviations, schema.Abbreviation{
			Term:       p.Name,
			Definition: p.Value,
		})
	}

	for _, id := range m.LaneOrder {
		if l := m.Lanes[id]; l != nil && l.Name != "" {
			md.LaneNames = append(md.LaneNames, l.Name)
		}
	}

	for i, policy := range m.Policies {
		if policy == "" {
			continue
		}
		md.GeneralPolicies = append(md.GeneralPolicies, schema.Policy{
			Ref:    fmt.Sprintf("%d", i+1),
			Policy: policy,
		})
	}

	return md
}

// defaultReferences builds the reference-approval rows used when the caller
// supplies none: one approval row per lane, then a row for the process
// diagram itself.
func defaultReferences(laneNames []string, processName, processCode string) []schema.Reference {
	var refs []schema.Reference
	for _, lane := range laneNames {
		refs = append(refs, schema.Reference{Ref: "N/A", Document: lane + " Approval"})
	}
	if processName != "" || processCode != "" {
		refs = append(refs, schema.Reference{
			Ref:      "DGM-" + processCode,
			Document: strings.TrimSpace(processName + " Process Diagram"),
		})
	}
	return refs
}

// processInputs lists start events as numbered inputs, ordered the same way
// "Input N" references are numbered. An unnamed start event borrows the name
// of its first named outgoing flow.
func processInputs(m *bpmn.Model) string {
	numbers := startEventNumbers(m)

	type input struct {
		num  int
		name string
	}
	var inputs []input
	for id, n := range numbers {
		ev := m.Events[id]
		if ev == nil {
			continue
		}
		name := ev.Name
		if name == "" {
			for _, flowID := range ev.Outgoing {
				if f, ok := m.Flows[flowID]; ok && f.Name != "" {
					name = f.Name
					break
				}
			}
		}
		if name != "" {
			inputs = append(inputs, input{num: n, name: name})
		}
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].num < inputs[j].num })

	var lines []string
	for _, in := range inputs {
		lines = append(lines, fmt.Sprintf("%d. %s", in.num, in.name))
	}
	return strings.Join(lines, "\n")
}

// processOutputs lists named end events as numbered outputs in document order.
func processOutputs(m *bpmn.Model) string {
	var lines []string
	for _, id := range m.EventOrder {
		ev := m.Events[id]
		if ev == nil || ev.Type != bpmn.EventEnd || ev.Name == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, ev.Name))
	}
	return strings.Join(lines, "\n")
}

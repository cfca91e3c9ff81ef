package validation

import (
	"fmt"
	"sort"

	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// validateModel performs semantic analysis on a parsed diagram.
// Checks: numbered tasks present, step numbers unique, flow endpoints
// resolvable, gateways wired, lanes assigned, split branches labeled.
func validateModel(m *bpmn.Model) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	validateStepNumbers(m, result)
	validateFlowEndpoints(m, result)
	validateGateways(m, result)

	return result
}

// validateStepNumbers checks that at least one task carries a step number
// and that no two tasks share one. Unnumbered tasks are skipped with a
// warning since they never become SOP rows.
func validateStepNumbers(m *bpmn.Model, result *schema.ValidationResult) {
	byNumber := make(map[string][]string)
	numbered := 0

	for _, id := range sortedTaskIDs(m) {
		task := m.Tasks[id]
		if task.Number == "" {
			result.AddWarning(schema.ElementPath("tasks", id), schema.ErrCodeValidation,
				fmt.Sprintf("task %q has no step number prefix and will be omitted", task.Name))
			continue
		}
		numbered++
		byNumber[task.Number] = append(byNumber[task.Number], id)

		if task.LaneID == "" {
			result.AddWarning(schema.ElementPath("tasks", id), schema.ErrCodeValidation,
				fmt.Sprintf("step %s is outside every lane; responsibility renders as unreadable", task.Number))
		}
	}

	if numbered == 0 {
		result.AddError("tasks", schema.ErrCodeValidation, "diagram contains no numbered tasks")
		return
	}

	for _, num := range sortedKeys(byNumber) {
		ids := byNumber[num]
		if len(ids) > 1 {
			result.AddError(schema.ElementPath("tasks", ids[1]), schema.ErrCodeValidation,
				fmt.Sprintf("step number %s is used by %d tasks", num, len(ids)))
		}
	}
}

// validateFlowEndpoints checks that every sequence flow connects known nodes.
func validateFlowEndpoints(m *bpmn.Model, result *schema.ValidationResult) {
	nodes := nodeIDSet(m)

	for _, id := range sortedFlowIDs(m) {
		flow := m.Flows[id]
		if !nodes[flow.Source] {
			result.AddError(schema.ElementPath("flows", id), schema.ErrCodeMissingReference,
				fmt.Sprintf("flow references unknown source %q", flow.Source))
		}
		if !nodes[flow.Target] {
			result.AddError(schema.ElementPath("flows", id), schema.ErrCodeMissingReference,
				fmt.Sprintf("flow references unknown target %q", flow.Target))
		}
	}
}

// validateGateways checks that gateways have outgoing flows and that
// exclusive splits carry branch labels (unlabeled branches render as a
// placeholder condition).
func validateGateways(m *bpmn.Model, result *schema.ValidationResult) {
	for _, id := range sortedGatewayIDs(m) {
		gw := m.Gateways[id]
		if len(gw.Outgoing) == 0 {
			result.AddError(schema.ElementPath("gateways", id), schema.ErrCodeValidation,
				"gateway has no outgoing flows")
			continue
		}

		if gw.Type != bpmn.GatewayXOR || len(gw.Outgoing) < 2 {
			continue
		}
		for _, flowID := range gw.Outgoing {
			flow, ok := m.Flows[flowID]
			if !ok || flow.Name != "" {
				continue
			}
			// Branches to end events take a default label, so only task
			// and gateway targets are worth flagging.
			if _, isEnd := m.Events[flow.Target]; isEnd {
				continue
			}
			result.AddWarning(schema.ElementPath("flows", flowID), schema.ErrCodeUnresolvedLabel,
				fmt.Sprintf("exclusive branch from gateway %s has no condition label", id))
		}
	}
}

// nodeIDSet collects every node ID a flow may legally reference.
func nodeIDSet(m *bpmn.Model) map[string]bool {
	nodes := make(map[string]bool)
	for id := range m.Tasks {
		nodes[id] = true
	}
	for id := range m.Gateways {
		nodes[id] = true
	}
	for id := range m.Events {
		nodes[id] = true
	}
	for id := range m.Subprocesses {
		nodes[id] = true
	}
	for _, events := range m.Boundary {
		for _, be := range events {
			nodes[be.ID] = true
		}
	}
	return nodes
}

func sortedTaskIDs(m *bpmn.Model) []string {
	ids := make([]string, 0, len(m.Tasks))
	for id := range m.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedFlowIDs(m *bpmn.Model) []string {
	ids := make([]string, 0, len(m.Flows))
	for id := range m.Flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedGatewayIDs(m *bpmn.Model) []string {
	ids := make([]string, 0, len(m.Gateways))
	for id := range m.Gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

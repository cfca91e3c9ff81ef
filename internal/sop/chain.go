package sop

import (
	"fmt"
	"strings"

	"github.com/procdocs/sopgen/internal/bpmn"
)

// processSuffix appends " Process" unless the name already ends with it.
func processSuffix(name string) string {
	if strings.HasSuffix(strings.ToLower(name), "process") {
		return ""
	}
	return " Process"
}

// routingVerb classifies a destination step relative to the current one.
// The threshold is inclusive: a self-loop is a revert.
func routingVerb(targetStep, currentStep string) string {
	if currentStep != "" && num(targetStep) <= num(currentStep) {
		return "Revert"
	}
	return "Proceed"
}

// predecessorIntermediateEvent returns the name of an intermediate event
// directly preceding the task, or "".
func (g *generator) predecessorIntermediateEvent(taskID string) string {
	task, ok := g.m.Tasks[taskID]
	if !ok {
		return ""
	}
	for _, flowID := range task.Incoming {
		flow, ok := g.m.Flows[flowID]
		if !ok {
			continue
		}
		if ev, ok := g.m.Events[flow.Source]; ok && ev.Type == bpmn.EventIntermediate && ev.Name != "" {
			return ev.Name
		}
	}
	return ""
}

// intermediateBeforeSubprocess returns the name of an intermediate event
// directly preceding a subprocess, or "".
func (g *generator) intermediateBeforeSubprocess(subprocessID string) string {
	sp, ok := g.m.Subprocesses[subprocessID]
	if !ok {
		return ""
	}
	for _, flowID := range sp.Incoming {
		flow, ok := g.m.Flows[flowID]
		if !ok {
			continue
		}
		if ev, ok := g.m.Events[flow.Source]; ok && ev.Type == bpmn.EventIntermediate && ev.Name != "" {
			return ev.Name
		}
	}
	return ""
}

// intermediateChain renders a task whose successor is an intermediate event
// as one composite routing sentence. Handled shapes:
//
//	Task → Event → Subprocess → ...   "Wait for E and Then Start P Process Then Proceed to Step N"
//	Task → Event → Gateway → Tasks    "Wait for E and Then Proceed to Step X and Step Y"
//	Task → Event → Task               "Wait for E and Then Proceed/Revert to Step N"
//	Task → Event → End                "Wait for E, then Process Ends (X)"
//
// Returns "" when the task's first successor is not an intermediate event.
// This check takes priority over ordinary routing.
func (g *generator) intermediateChain(taskID, currentStep string) string {
	targets := g.targetsOf(taskID)
	if len(targets) == 0 || targets[0].Kind != kindIntermediate {
		return ""
	}

	event, ok := g.m.Events[targets[0].Value]
	if !ok {
		return ""
	}

	// Event names that already begin with a wait phrase keep it verbatim
	// ("Wait for Wait for time" reads badly).
	waitPrefix := "Wait for "
	lower := strings.ToLower(event.Name)
	if strings.HasPrefix(lower, "wait for ") || strings.HasPrefix(lower, "wait until ") {
		waitPrefix = ""
	}
	wait := waitPrefix + event.Name

	eventTargets := g.targetsOf(event.ID)
	if len(eventTargets) == 0 {
		return wait
	}
	first := eventTargets[0]

	switch first.Kind {
	case kindSubprocess:
		sp, ok := g.m.Subprocesses[first.Value]
		if !ok {
			return wait
		}
		name := sp.Name + processSuffix(sp.Name)
		spTargets := g.targetsOf(sp.ID)
		if len(spTargets) > 0 && spTargets[0].Kind == kindTask {
			next := spTargets[0].Value
			return fmt.Sprintf("%s and Then Start %s Then %s to Step %s", wait, name, routingVerb(next, currentStep), next)
		}
		if len(spTargets) > 0 && spTargets[0].Kind == kindEnd {
			return fmt.Sprintf("%s and Then Start %s, then Process Ends (%s)", wait, name, spTargets[0].Value)
		}
		return fmt.Sprintf("%s and Then Start %s", wait, name)

	case kindGateway:
		gw, ok := g.m.Gateways[first.Value]
		if !ok {
			return wait
		}
		gwTargets := g.targetsOf(gw.ID)

		if (gw.Type == bpmn.GatewayAND || gw.Type == bpmn.GatewayOR) && len(gw.Outgoing) > 1 {
			var steps []string
			for _, t := range gwTargets {
				if t.Kind == kindTask {
					steps = append(steps, t.Value)
				}
			}
			if len(steps) > 0 {
				steps = sortedUniqueSteps(steps)
				return fmt.Sprintf("%s and Then Proceed to Step %s", wait, strings.Join(steps, connectorFor(gw.Type)))
			}
		}

		// XOR or other gateway shape: take the first task or end target.
		for _, t := range gwTargets {
			if t.Kind == kindTask {
				return fmt.Sprintf("%s and Then %s to Step %s", wait, routingVerb(t.Value, currentStep), t.Value)
			}
			if t.Kind == kindEnd {
				return fmt.Sprintf("%s, then Process Ends (%s)", wait, t.Value)
			}
		}
		return wait

	case kindTask:
		return fmt.Sprintf("%s and Then %s to Step %s", wait, routingVerb(first.Value, currentStep), first.Value)

	case kindEnd:
		return fmt.Sprintf("%s, then Process Ends (%s)", wait, first.Value)
	}

	return wait
}

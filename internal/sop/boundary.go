package sop

import (
	"fmt"

	"github.com/procdocs/sopgen/internal/bpmn"
)

// boundaryTexts phrases every named boundary event attached to a task.
// An interrupting event reads "If <condition>, stop the activity and
// proceed to step T". A non-interrupting one reads "If <condition>,
// proceed to step T and complete the activity, then proceed to step U",
// where U is the task's normal successor (resolved through one gateway
// hop), or "then Process Ends (<name>)" when the normal path ends.
//
// Condition phrasing depends on the event kind: timers read "performing the
// activity took more than <name>", everything else "<name> during performing
// the activity".
func (g *generator) boundaryTexts(taskID string) []string {
	events := g.m.Boundary[taskID]
	if len(events) == 0 {
		return nil
	}

	var texts []string
	for _, b := range events {
		if b.Name == "" {
			continue
		}

		// Resolve where the boundary path leads.
		targetStep := ""
		if len(b.Outgoing) > 0 {
			if flow, ok := g.m.Flows[b.Outgoing[0]]; ok {
				if t, ok := g.m.Tasks[flow.Target]; ok {
					targetStep = t.Number
				}
			}
		}
		if targetStep == "" {
			continue
		}

		var condition string
		if b.Kind == bpmn.BoundaryTimer {
			condition = fmt.Sprintf("performing the activity took more than %s", b.Name)
		} else {
			condition = fmt.Sprintf("%s during performing the activity", b.Name)
		}

		if b.Interrupting {
			texts = append(texts, fmt.Sprintf(
				"If %s, stop the activity and proceed to step %s", condition, targetStep))
			continue
		}

		// Non-interrupting: find the normal next step, following at most
		// one gateway hop.
		normalNext := ""
		normalEnds := false
		endName := ""
	resolve:
		for _, t := range g.targetsOf(taskID) {
			switch t.Kind {
			case kindTask:
				normalNext = t.Value
				break resolve
			case kindGateway:
				for _, gt := range g.targetsOf(t.Value) {
					if gt.Kind == kindTask {
						normalNext = gt.Value
						break
					}
					if gt.Kind == kindEnd {
						normalEnds = true
						endName = gt.Value
						break
					}
				}
				break resolve
			case kindEnd:
				normalEnds = true
				endName = t.Value
				break resolve
			}
		}

		switch {
		case normalNext != "":
			texts = append(texts, fmt.Sprintf(
				"If %s, proceed to step %s and complete the activity, then proceed to step %s",
				condition, targetStep, normalNext))
		case normalEnds:
			texts = append(texts, fmt.Sprintf(
				"If %s, proceed to step %s and complete the activity, then Process Ends (%s)",
				condition, targetStep, endName))
		default:
			texts = append(texts, fmt.Sprintf(
				"If %s, proceed to step %s and complete the activity", condition, targetStep))
		}
	}
	return texts
}
